package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/akarpov87/taskhive/internal/common"
	"github.com/akarpov87/taskhive/internal/syncmodel"
	"github.com/jackc/pgx/v5/pgconn"
)

func newStoreWithMock(t *testing.T) (*Postgres, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgres(db), mock, db
}

var tagColumns = []string{"id", "workspace_id", "name", "color", "created_at", "updated_at"}

func TestPostgres_Get_Success(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(tagColumns).AddRow("tag1", "ws1", "urgent", "#f00", now, now)
	mock.ExpectQuery(`(?s)^SELECT .* FROM tags WHERE id = \$1$`).
		WithArgs("tag1").
		WillReturnRows(rows)

	rec, err := s.Get(context.Background(), syncmodel.TableTags, "tag1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec.ID() != "tag1" || rec.GetString("name") != "urgent" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestPostgres_Get_NotFound(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT .* FROM tags WHERE id = \$1$`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(tagColumns))

	_, err := s.Get(context.Background(), syncmodel.TableTags, "nope")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgres_Get_UnknownTable(t *testing.T) {
	s, _, db := newStoreWithMock(t)
	defer db.Close()

	_, err := s.Get(context.Background(), syncmodel.Table("bogus"), "id1")
	if !errors.Is(err, common.ErrMalformedChange) {
		t.Fatalf("expected malformed change, got %v", err)
	}
}

func TestPostgres_Insert_UniqueViolation(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT INTO tags .*VALUES`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.Insert(context.Background(), syncmodel.TableTags,
		syncmodel.Record{"id": "tag1", "workspace_id": "ws1", "name": "urgent"})
	if !errors.Is(err, common.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}

func TestPostgres_Insert_FKViolation(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT INTO projects .*VALUES`).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := s.Insert(context.Background(), syncmodel.TableProjects,
		syncmodel.Record{"id": "p1", "workspace_id": "missing", "name": "X"})
	if !errors.Is(err, common.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}

func TestPostgres_Insert_SkipsUnknownColumns(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT INTO tags \(id, workspace_id, name\) VALUES \(\$1, \$2, \$3\)$`).
		WithArgs("tag1", "ws1", "urgent").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Insert(context.Background(), syncmodel.TableTags,
		syncmodel.Record{"id": "tag1", "workspace_id": "ws1", "name": "urgent", "hacker_field": "x"})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_Update_NoRows(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE tags SET `).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Update(context.Background(), syncmodel.TableTags, "nope", syncmodel.Record{"name": "renamed"})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgres_Update_SkipsIDAndCreatedAt(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE tags SET name = \$1 WHERE id = \$2$`).
		WithArgs("renamed", "tag1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Update(context.Background(), syncmodel.TableTags, "tag1",
		syncmodel.Record{"id": "hijack", "created_at": "2020-01-01", "name": "renamed"})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_Delete(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE FROM tags WHERE id = \$1$`).
		WithArgs("tag1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Delete(context.Background(), syncmodel.TableTags, "tag1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	mock.ExpectExec(`^DELETE FROM tags WHERE id = \$1$`).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Delete(context.Background(), syncmodel.TableTags, "gone"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgres_Select_RejectsUnknownColumn(t *testing.T) {
	s, _, db := newStoreWithMock(t)
	defer db.Close()

	_, err := s.Select(context.Background(), syncmodel.TableTags, Eq("evil; DROP TABLE", "x"))
	if err == nil {
		t.Fatalf("expected error for unknown filter column")
	}
}

func TestPostgres_Select_ByteSlicesBecomeStrings(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(tagColumns).
		AddRow([]byte("tag1"), []byte("ws1"), []byte("urgent"), nil, nil, nil)
	mock.ExpectQuery(`(?s)^SELECT .* FROM tags WHERE workspace_id = \$1$`).
		WithArgs("ws1").
		WillReturnRows(rows)

	got, err := s.Select(context.Background(), syncmodel.TableTags, Eq("workspace_id", "ws1"))
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if len(got) != 1 || got[0].ID() != "tag1" {
		t.Fatalf("unexpected result: %v", got)
	}
}
