package syncer

import (
	"context"

	"github.com/akarpov87/taskhive/internal/client/storage"
	"github.com/akarpov87/taskhive/internal/syncmodel"
)

// applyPull merges a pull response into records, the record repository bound
// to the caller's transaction. Rows are applied in the registry's
// parent-first order, last-write-wins per row: a server row only replaces
// the local copy when its updated_at is newer. Applying the same response
// twice is a no-op.
func (o *Orchestrator) applyPull(ctx context.Context, records *storage.RecordRepository, resp *syncmodel.PullResponse) error {
	for _, table := range syncmodel.Tables() {
		for _, rc := range resp.Changes[table] {
			rec := rc.Created
			if rec == nil {
				rec = rc.Updated
			}
			if rec == nil {
				continue
			}

			ms := resp.Timestamp
			if t, ok := rec.UpdatedAt(); ok {
				ms = t.UnixMilli()
			}

			applied, err := records.Merge(ctx, table, rec, ms)
			if err != nil {
				return err
			}
			if !applied {
				o.logger.Debug(ctx, "pull row skipped by newer local copy",
					"table", string(table), "id", rc.ID)
			}
		}
	}
	return nil
}
