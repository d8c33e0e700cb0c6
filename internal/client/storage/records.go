package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/akarpov87/taskhive/internal/common"
	"github.com/akarpov87/taskhive/internal/dbx"
	"github.com/akarpov87/taskhive/internal/syncmodel"
)

// RecordRepository stores local copies of synced rows. Each row keeps its
// full payload as JSON plus the server updated_at in epoch milliseconds,
// which is what last-write-wins merging compares against.
type RecordRepository struct {
	db dbx.DBTX
}

func NewRecordRepository(db dbx.DBTX) *RecordRepository {
	return &RecordRepository{db: db}
}

// Get returns the stored record, or common.ErrNotFound.
func (r *RecordRepository) Get(ctx context.Context, table syncmodel.Table, id string) (syncmodel.Record, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE table_name = ? AND id = ?`, string(table), id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s/%s: %w", table, id, err)
	}

	var rec syncmodel.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s/%s: %w", table, id, err)
	}
	return rec, nil
}

// Upsert writes rec unconditionally, stamping it with updatedAtMs.
func (r *RecordRepository) Upsert(ctx context.Context, table syncmodel.Table, rec syncmodel.Record, updatedAtMs int64) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO records (table_name, id, updated_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(table_name, id) DO UPDATE SET updated_at = excluded.updated_at, payload = excluded.payload
	`, string(table), rec.ID(), updatedAtMs, payload)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s/%s: %w", table, rec.ID(), err)
	}
	return nil
}

// Merge applies a server row using last-write-wins: the write happens only
// if the server timestamp is strictly newer than the stored one. A row that
// does not exist locally is always written. Returns whether the row landed.
func (r *RecordRepository) Merge(ctx context.Context, table syncmodel.Table, rec syncmodel.Record, updatedAtMs int64) (bool, error) {
	var localMs int64
	err := r.db.QueryRowContext(ctx,
		`SELECT updated_at FROM records WHERE table_name = ? AND id = ?`, string(table), rec.ID()).Scan(&localMs)
	switch {
	case err == sql.ErrNoRows:
		// fall through to write
	case err != nil:
		return false, fmt.Errorf("failed to read record %s/%s: %w", table, rec.ID(), err)
	default:
		if updatedAtMs <= localMs {
			return false, nil
		}
	}

	if err := r.Upsert(ctx, table, rec, updatedAtMs); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the local copy. Deleting an absent row is a no-op.
func (r *RecordRepository) Delete(ctx context.Context, table syncmodel.Table, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE table_name = ? AND id = ?`, string(table), id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s/%s: %w", table, id, err)
	}
	return nil
}

// List returns every stored record for a table, decoded.
func (r *RecordRepository) List(ctx context.Context, table syncmodel.Table) ([]syncmodel.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT payload FROM records WHERE table_name = ? ORDER BY id`, string(table))
	if err != nil {
		return nil, fmt.Errorf("failed to list records for %s: %w", table, err)
	}
	defer rows.Close()

	var result []syncmodel.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		var rec syncmodel.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record row: %w", err)
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}

	return result, nil
}
