// Package storage is the client's local persistence layer: synced record
// copies, the outbound change queue and a small metadata table, all in one
// SQLite database.
package storage

import (
	"context"
	"database/sql"

	"github.com/akarpov87/taskhive/internal/client/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Repositories bundles the client-side repositories sharing one database.
type Repositories struct {
	Records  *RecordRepository
	Queue    *QueueRepository
	Metadata *MetadataRepository
	DB       *sql.DB
}

// RunMigrations applies the embedded client migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (or creates) the local database at dsn, migrates it
// and returns the repositories bound to it.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite works best with a single connection; this also keeps an
	// in-memory database on one shared handle
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	repos := &Repositories{
		Records:  NewRecordRepository(db),
		Queue:    NewQueueRepository(db),
		Metadata: NewMetadataRepository(db),
		DB:       db,
	}
	return repos, nil
}
