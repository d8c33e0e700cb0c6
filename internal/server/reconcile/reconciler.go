// Package reconcile applies pushed client batches to the server store. Each
// change is authorized, normalized and applied independently; failures are
// collected as per-item rejections and never abort the batch.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/akarpov87/taskhive/internal/common"
	"github.com/akarpov87/taskhive/internal/logging"
	"github.com/akarpov87/taskhive/internal/server/perm"
	"github.com/akarpov87/taskhive/internal/server/store"
	"github.com/akarpov87/taskhive/internal/syncmodel"
)

type Reconciler struct {
	store  store.RowStore
	perm   *perm.Evaluator
	logger logging.Logger
}

func NewReconciler(s store.RowStore, p *perm.Evaluator, l logging.Logger) *Reconciler {
	return &Reconciler{store: s, perm: p, logger: l.With("module", "reconcile")}
}

// Apply processes every change in the batch and returns the local ids of
// the ones that were not applied. Replaying an already-applied batch is
// safe: creates collide with the primary key and land in the rejected set
// instead of duplicating rows.
func (r *Reconciler) Apply(ctx context.Context, userID string, changes []syncmodel.LocalChange) []string {
	var rejected []string
	for i := range changes {
		ch := &changes[i]
		if err := r.applyOne(ctx, userID, ch); err != nil {
			r.logger.Debug(ctx, "change rejected",
				"table", string(ch.Table), "id", ch.ID, "reason", err.Error())
			rejected = append(rejected, ch.ID)
		}
	}
	return rejected
}

func (r *Reconciler) applyOne(ctx context.Context, userID string, ch *syncmodel.LocalChange) error {
	op, err := ch.Op()
	if err != nil {
		return err
	}
	info, ok := syncmodel.Lookup(ch.Table)
	if !ok {
		return fmt.Errorf("%w: unknown table %q", common.ErrMalformedChange, ch.Table)
	}

	switch op {
	case syncmodel.OpCreate:
		return r.create(ctx, userID, info, ch)
	case syncmodel.OpUpdate:
		return r.update(ctx, userID, info, ch)
	default:
		return r.delete(ctx, userID, ch)
	}
}

func (r *Reconciler) create(ctx context.Context, userID string, info syncmodel.Info, ch *syncmodel.LocalChange) error {
	rec := ch.Created.Clone()
	rec.StripLocalFields()

	// an earlier partial push may already have assigned a server id; it
	// travels back as server_id and takes precedence over the local id
	if sid := rec.GetString("server_id"); sid != "" {
		rec["id"] = sid
	} else if rec.ID() == "" {
		rec["id"] = ch.ID
	}
	delete(rec, "server_id")

	if err := rec.NormalizeTimestamps(info.TimestampFields); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedChange, err)
	}
	// every stored row carries created_at/updated_at; a client that omits
	// them gets server time, so the row stays visible to watermark pulls
	now := time.Now().UTC()
	for _, f := range []string{"created_at", "updated_at"} {
		if v, ok := rec[f]; !ok || v == nil {
			rec[f] = now
		}
	}
	if !r.perm.CanWrite(ctx, userID, ch.Table, rec.ID(), rec) {
		return common.ErrPermissionDenied
	}
	return r.store.Insert(ctx, ch.Table, rec)
}

func (r *Reconciler) update(ctx context.Context, userID string, info syncmodel.Info, ch *syncmodel.LocalChange) error {
	rec := ch.Updated.Clone()
	rec.StripLocalFields()
	// identifiers are server-owned: neither the local id nor server_id is
	// ever written as a column
	delete(rec, "id")
	delete(rec, "server_id")

	if err := rec.NormalizeTimestamps(info.TimestampFields); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedChange, err)
	}

	targetID := ch.TargetID()
	if !r.perm.CanWrite(ctx, userID, ch.Table, targetID, rec) {
		return common.ErrPermissionDenied
	}
	return r.store.Update(ctx, ch.Table, targetID, rec)
}

func (r *Reconciler) delete(ctx context.Context, userID string, ch *syncmodel.LocalChange) error {
	targetID := ch.TargetID()
	// a missing row fails the permission walk, so deleting a row that no
	// longer exists lands in the rejected set rather than erroring the batch
	if !r.perm.CanWrite(ctx, userID, ch.Table, targetID, nil) {
		return common.ErrPermissionDenied
	}
	return r.store.Delete(ctx, ch.Table, targetID)
}
