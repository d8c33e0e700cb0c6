package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/akarpov87/taskhive/internal/common"
	"github.com/akarpov87/taskhive/internal/dbx"
	"github.com/akarpov87/taskhive/internal/syncmodel"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres implements RowStore over a dbx.DBTX (*sql.DB or *sql.Tx) using
// the pgx stdlib driver. All SQL is generated from the closed table
// registry, so only whitelisted tables and columns ever reach the database.
type Postgres struct {
	db dbx.DBTX
}

// NewPostgres constructs a store bound to the given DBTX.
func NewPostgres(db dbx.DBTX) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Get(ctx context.Context, table syncmodel.Table, id string) (syncmodel.Record, error) {
	info, ok := syncmodel.Lookup(table)
	if !ok {
		return nil, fmt.Errorf("%w: unknown table %q", common.ErrMalformedChange, table)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, strings.Join(info.Columns, ", "), info.Table)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	defer rows.Close()

	recs, err := scanRecords(info, rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, common.ErrNotFound
	}
	return recs[0], nil
}

func (s *Postgres) Select(ctx context.Context, table syncmodel.Table, filters ...Filter) ([]syncmodel.Record, error) {
	info, ok := syncmodel.Lookup(table)
	if !ok {
		return nil, fmt.Errorf("%w: unknown table %q", common.ErrMalformedChange, table)
	}

	where, args, err := buildWhere(info, filters)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s%s`, strings.Join(info.Columns, ", "), info.Table, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	defer rows.Close()

	return scanRecords(info, rows)
}

func (s *Postgres) Insert(ctx context.Context, table syncmodel.Table, rec syncmodel.Record) error {
	info, ok := syncmodel.Lookup(table)
	if !ok {
		return fmt.Errorf("%w: unknown table %q", common.ErrMalformedChange, table)
	}

	cols := make([]string, 0, len(info.Columns))
	placeholders := make([]string, 0, len(info.Columns))
	args := make([]any, 0, len(info.Columns))
	for _, c := range info.Columns {
		v, present := rec[c]
		if !present {
			continue
		}
		cols = append(cols, c)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, v)
	}
	if len(cols) == 0 {
		return fmt.Errorf("%w: empty record for %s", common.ErrMalformedChange, table)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		info.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return mapPgError(table, err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, table syncmodel.Table, id string, rec syncmodel.Record) error {
	info, ok := syncmodel.Lookup(table)
	if !ok {
		return fmt.Errorf("%w: unknown table %q", common.ErrMalformedChange, table)
	}

	sets := make([]string, 0, len(info.Columns))
	args := make([]any, 0, len(info.Columns)+1)
	for _, c := range info.Columns {
		// id is immutable, created_at belongs to the row's first write
		if c == "id" || c == "created_at" {
			continue
		}
		v, present := rec[c]
		if !present {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", c, len(args)))
	}
	if len(sets) == 0 {
		return fmt.Errorf("%w: empty update for %s", common.ErrMalformedChange, table)
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, info.Table, strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapPgError(table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, table syncmodel.Table, id string) error {
	info, ok := syncmodel.Lookup(table)
	if !ok {
		return fmt.Errorf("%w: unknown table %q", common.ErrMalformedChange, table)
	}

	// children go with the row via ON DELETE CASCADE in the schema
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, info.Table), id)
	if err != nil {
		return mapPgError(table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func buildWhere(info syncmodel.Info, filters []Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	allowed := make(map[string]struct{}, len(info.Columns))
	for _, c := range info.Columns {
		allowed[c] = struct{}{}
	}

	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		if _, ok := allowed[f.Column]; !ok {
			return "", nil, fmt.Errorf("unknown column %q on %s", f.Column, info.Table)
		}
		args = append(args, f.Value)
		switch f.Op {
		case OpEq:
			conds = append(conds, fmt.Sprintf("%s = $%d", f.Column, len(args)))
		case OpGte:
			conds = append(conds, fmt.Sprintf("%s >= $%d", f.Column, len(args)))
		case OpIn:
			conds = append(conds, fmt.Sprintf("%s = ANY($%d)", f.Column, len(args)))
		default:
			return "", nil, fmt.Errorf("unsupported filter op %d", f.Op)
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func scanRecords(info syncmodel.Info, rows *sql.Rows) ([]syncmodel.Record, error) {
	var result []syncmodel.Record
	for rows.Next() {
		vals := make([]any, len(info.Columns))
		ptrs := make([]any, len(info.Columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(syncmodel.Record, len(info.Columns))
		for i, c := range info.Columns {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = vals[i]
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// mapPgError turns unique and foreign-key violations into the shared
// constraint sentinel; everything else passes through wrapped.
func mapPgError(table syncmodel.Table, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503":
			return fmt.Errorf("%w on %s: %s", common.ErrConstraintViolation, table, pgErr.Code)
		}
	}
	return fmt.Errorf("db error on %s: %w", table, err)
}
