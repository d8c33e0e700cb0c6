package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/akarpov87/taskhive/internal/dbx"
	"github.com/akarpov87/taskhive/internal/syncmodel"
)

// PendingChange is a queued local change with its stable queue position.
type PendingChange struct {
	Seq    int64
	Change syncmodel.LocalChange
}

// QueueRepository is the outbound change queue. Changes are appended in
// commit order and removed individually once the server accepts them, so a
// partially rejected push leaves only the rejected entries queued.
type QueueRepository struct {
	db dbx.DBTX
}

func NewQueueRepository(db dbx.DBTX) *QueueRepository {
	return &QueueRepository{db: db}
}

// Append adds a change to the tail of the queue.
func (r *QueueRepository) Append(ctx context.Context, ch syncmodel.LocalChange) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO pending_changes (table_name, local_id, change) VALUES (?, ?, ?)`,
		string(ch.Table), ch.ID, payload)
	if err != nil {
		return fmt.Errorf("failed to append change: %w", err)
	}
	return nil
}

// List returns all queued changes in append order.
func (r *QueueRepository) List(ctx context.Context) ([]PendingChange, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, change FROM pending_changes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	defer rows.Close()

	var result []PendingChange
	for rows.Next() {
		var pc PendingChange
		var payload []byte
		if err := rows.Scan(&pc.Seq, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan pending change: %w", err)
		}
		if err := json.Unmarshal(payload, &pc.Change); err != nil {
			return nil, fmt.Errorf("failed to decode pending change: %w", err)
		}
		result = append(result, pc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending changes: %w", err)
	}

	return result, nil
}

// RemoveSeqs deletes the given queue entries.
func (r *QueueRepository) RemoveSeqs(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}

	placeholders := make([]string, len(seqs))
	args := make([]any, len(seqs))
	for i, s := range seqs {
		placeholders[i] = "?"
		args[i] = s
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_changes WHERE seq IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to remove pending changes: %w", err)
	}
	return nil
}

// Count returns the number of queued changes.
func (r *QueueRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_changes`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return n, nil
}

// Clear empties the queue.
func (r *QueueRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes`)
	if err != nil {
		return fmt.Errorf("failed to clear pending changes: %w", err)
	}
	return nil
}
