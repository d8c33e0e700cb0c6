// Package services holds the server-side application services behind the
// HTTP layer: the sync endpoints (push/pull) and attachment presigning.
package services

import (
	"context"
	"time"

	"github.com/akarpov87/taskhive/internal/logging"
	"github.com/akarpov87/taskhive/internal/server/extract"
	"github.com/akarpov87/taskhive/internal/server/reconcile"
	"github.com/akarpov87/taskhive/internal/syncmodel"
)

// SyncService implements the push/pull operations of the sync protocol.
type SyncService struct {
	reconciler *reconcile.Reconciler
	extractor  *extract.Extractor
	logger     logging.Logger
}

func NewSyncService(r *reconcile.Reconciler, e *extract.Extractor, l logging.Logger) *SyncService {
	return &SyncService{reconciler: r, extractor: e, logger: l.With("module", "sync")}
}

// Push applies a batch of client changes for userID. Rejected local ids are
// reported back in the response; an empty batch yields an empty response.
func (s *SyncService) Push(ctx context.Context, userID string, req *syncmodel.PushRequest) (*syncmodel.PushResponse, error) {
	rejected := s.reconciler.Apply(ctx, userID, req.Changes)
	if len(rejected) > 0 {
		s.logger.Info(ctx, "push completed with rejections",
			"user_id", userID, "total", len(req.Changes), "rejected", len(rejected))
	}
	return &syncmodel.PushResponse{ExperimentalRejectedIDs: rejected}, nil
}

// Pull extracts all rows visible to userID changed since the client's
// watermark. The response timestamp is captured before extraction so a
// write landing mid-extraction is re-delivered on the next pull rather
// than lost.
func (s *SyncService) Pull(ctx context.Context, userID string, req *syncmodel.PullRequest) (*syncmodel.PullResponse, error) {
	ts := time.Now().UnixMilli()
	since := time.UnixMilli(req.LastPulledAt).UTC()

	changes, err := s.extractor.Changes(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	return &syncmodel.PullResponse{Changes: changes, Timestamp: ts}, nil
}
