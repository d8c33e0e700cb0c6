// Package syncer drives the client sync cycle: push queued local changes,
// pull server changes, advance the watermark. At most one cycle runs at a
// time; triggers arriving mid-cycle coalesce into a single follow-up run.
package syncer

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/akarpov87/taskhive/internal/client/storage"
	"github.com/akarpov87/taskhive/internal/client/transport"
	"github.com/akarpov87/taskhive/internal/dbx"
	"github.com/akarpov87/taskhive/internal/logging"
	"github.com/akarpov87/taskhive/internal/syncmodel"
)

// State is the orchestrator's externally visible phase.
type State int

const (
	StateIdle State = iota
	StatePushing
	StatePulling
)

func (s State) String() string {
	switch s {
	case StatePushing:
		return "pushing"
	case StatePulling:
		return "pulling"
	default:
		return "idle"
	}
}

const watermarkKey = "last_pulled_at"

// Status is a snapshot of the orchestrator for callers and CLIs.
type Status struct {
	State        State
	Pending      int
	LastPulledAt int64
	LastError    error
}

type Orchestrator struct {
	client           transport.Client
	repos            *storage.Repositories
	logger           logging.Logger
	schemaVersion    int
	pendingThreshold int

	mu      sync.Mutex
	state   State
	running bool
	rerun   bool
	lastErr error
}

func NewOrchestrator(client transport.Client, repos *storage.Repositories, schemaVersion, pendingThreshold int, l logging.Logger) *Orchestrator {
	return &Orchestrator{
		client:           client,
		repos:            repos,
		logger:           l.With("module", "syncer"),
		schemaVersion:    schemaVersion,
		pendingThreshold: pendingThreshold,
	}
}

// Trigger runs one sync cycle. If a cycle is already in flight the call
// returns immediately and the running cycle re-runs once more when it
// finishes; any number of triggers during a cycle collapse into one re-run.
func (o *Orchestrator) Trigger(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.rerun = true
		o.mu.Unlock()
		return nil
	}
	o.running = true
	o.mu.Unlock()

	var err error
	for {
		err = o.runCycle(ctx)

		o.mu.Lock()
		o.lastErr = err
		if !o.rerun || err != nil {
			o.running = false
			o.rerun = false
			o.state = StateIdle
			o.mu.Unlock()
			return err
		}
		o.rerun = false
		o.mu.Unlock()
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// runCycle pushes then pulls. Any failure aborts the cycle immediately and
// leaves all local state as it was; the next trigger simply retries.
func (o *Orchestrator) runCycle(ctx context.Context) error {
	o.setState(StatePushing)
	if err := o.push(ctx); err != nil {
		o.logger.Warn(ctx, "push failed", "error", err.Error())
		return err
	}

	o.setState(StatePulling)
	if err := o.pull(ctx); err != nil {
		o.logger.Warn(ctx, "pull failed", "error", err.Error())
		return err
	}

	return nil
}

func (o *Orchestrator) push(ctx context.Context) error {
	pending, err := o.repos.Queue.List(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	watermark, err := o.watermark(ctx)
	if err != nil {
		return err
	}

	changes := make([]syncmodel.LocalChange, len(pending))
	for i, pc := range pending {
		changes[i] = pc.Change
	}

	resp, err := o.client.Push(ctx, &syncmodel.PushRequest{
		Changes:      changes,
		LastPulledAt: watermark,
	})
	if err != nil {
		return err
	}

	rejected := make(map[string]bool, len(resp.ExperimentalRejectedIDs))
	for _, id := range resp.ExperimentalRejectedIDs {
		rejected[id] = true
	}

	// only accepted entries leave the queue; rejected ones stay put for the
	// app to inspect or amend
	var accepted []int64
	for _, pc := range pending {
		if !rejected[pc.Change.ID] {
			accepted = append(accepted, pc.Seq)
		}
	}
	if err := o.repos.Queue.RemoveSeqs(ctx, accepted); err != nil {
		return err
	}

	if len(rejected) > 0 {
		o.logger.Info(ctx, "push partially rejected",
			"accepted", len(accepted), "rejected", len(rejected))
	}

	return nil
}

func (o *Orchestrator) pull(ctx context.Context) error {
	watermark, err := o.watermark(ctx)
	if err != nil {
		return err
	}

	resp, err := o.client.Pull(ctx, &syncmodel.PullRequest{
		LastPulledAt:  watermark,
		SchemaVersion: o.schemaVersion,
	})
	if err != nil {
		return err
	}

	// apply and watermark advance commit together; a crash mid-apply leaves
	// the old watermark and the next cycle re-pulls the same window
	return dbx.WithTx(ctx, o.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := o.applyPull(ctx, storage.NewRecordRepository(tx), resp); err != nil {
			return err
		}
		// the watermark only moves after the whole response has been
		// applied, and never backwards
		if resp.Timestamp > watermark {
			return storage.NewMetadataRepository(tx).Set(ctx, watermarkKey,
				[]byte(strconv.FormatInt(resp.Timestamp, 10)))
		}
		return nil
	})
}

func (o *Orchestrator) watermark(ctx context.Context) (int64, error) {
	raw, err := o.repos.Metadata.Get(ctx, watermarkKey)
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, errors.New("corrupt watermark value")
	}
	return ms, nil
}

// NotifyLocalChange queues a change made by the app. When the queue grows
// past the configured threshold a sync is kicked off in the background
// without waiting for the periodic timer.
func (o *Orchestrator) NotifyLocalChange(ctx context.Context, ch syncmodel.LocalChange) error {
	if err := o.repos.Queue.Append(ctx, ch); err != nil {
		return err
	}

	if o.pendingThreshold <= 0 {
		return nil
	}
	n, err := o.repos.Queue.Count(ctx)
	if err != nil {
		return err
	}
	if n >= o.pendingThreshold {
		go func() {
			bg := context.WithoutCancel(ctx)
			if err := o.Trigger(bg); err != nil {
				o.logger.Warn(bg, "threshold-triggered sync failed", "error", err.Error())
			}
		}()
	}
	return nil
}

// Run triggers a cycle at every interval tick until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Trigger(ctx); err != nil {
				o.logger.Warn(ctx, "periodic sync failed", "error", err.Error())
			}
		}
	}
}

// Status reports the current phase, queue depth and watermark.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	o.mu.Lock()
	st := Status{State: o.state, LastError: o.lastErr}
	o.mu.Unlock()

	n, err := o.repos.Queue.Count(ctx)
	if err != nil {
		return st, err
	}
	st.Pending = n

	wm, err := o.watermark(ctx)
	if err != nil {
		return st, err
	}
	st.LastPulledAt = wm

	return st, nil
}

// Reset wipes all local sync state: records, queue and watermark. The next
// cycle starts from scratch and re-pulls everything.
func (o *Orchestrator) Reset(ctx context.Context) error {
	for _, t := range syncmodel.Tables() {
		rows, err := o.repos.Records.List(ctx, t)
		if err != nil {
			return err
		}
		for _, rec := range rows {
			if err := o.repos.Records.Delete(ctx, t, rec.ID()); err != nil {
				return err
			}
		}
	}
	if err := o.repos.Queue.Clear(ctx); err != nil {
		return err
	}
	return o.repos.Metadata.Clear(ctx)
}
