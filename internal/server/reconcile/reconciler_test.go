package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akarpov87/taskhive/internal/common"
	"github.com/akarpov87/taskhive/internal/logging"
	"github.com/akarpov87/taskhive/internal/server/perm"
	"github.com/akarpov87/taskhive/internal/server/store"
	"github.com/akarpov87/taskhive/internal/syncmodel"
)

func newReconcilerFixture(t *testing.T) (*Reconciler, *store.InMemory) {
	t.Helper()
	s := store.NewInMemory()
	ctx := context.Background()

	seed := []struct {
		table syncmodel.Table
		rec   syncmodel.Record
	}{
		{syncmodel.TableWorkspaces, syncmodel.Record{"id": "ws1", "name": "Acme", "owner_id": "u1"}},
		{syncmodel.TableWorkspaceMembers, syncmodel.Record{"id": "m1", "workspace_id": "ws1", "user_id": "u1", "role": "owner"}},
		{syncmodel.TableProjects, syncmodel.Record{"id": "p1", "workspace_id": "ws1", "name": "Site"}},
		{syncmodel.TableTasks, syncmodel.Record{"id": "t1", "project_id": "p1", "title": "Build"}},
	}
	for _, f := range seed {
		if err := s.Insert(ctx, f.table, f.rec); err != nil {
			t.Fatalf("seed %s/%s: %v", f.table, f.rec.ID(), err)
		}
	}

	logger := logging.NewDiscardLogger()
	return NewReconciler(s, perm.NewEvaluator(s, logger), logger), s
}

func TestApply_CreateUpdateDelete(t *testing.T) {
	t.Parallel()
	r, s := newReconcilerFixture(t)
	ctx := context.Background()

	batch := []syncmodel.LocalChange{
		{Table: syncmodel.TableTasks, ID: "t2", Created: syncmodel.Record{
			"id": "t2", "project_id": "p1", "title": "Second", "updated_at": float64(1700000000000),
		}},
		{Table: syncmodel.TableTasks, ID: "t1", Updated: syncmodel.Record{
			"title": "Renamed",
		}},
	}

	rejected := r.Apply(ctx, "u1", batch)
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejections: %v", rejected)
	}

	created, err := s.Get(ctx, syncmodel.TableTasks, "t2")
	if err != nil {
		t.Fatalf("created row missing: %v", err)
	}
	if created.GetString("title") != "Second" {
		t.Fatalf("unexpected created row: %v", created)
	}

	updated, _ := s.Get(ctx, syncmodel.TableTasks, "t1")
	if updated.GetString("title") != "Renamed" {
		t.Fatalf("update not applied: %v", updated)
	}

	rejected = r.Apply(ctx, "u1", []syncmodel.LocalChange{
		{Table: syncmodel.TableTasks, ID: "t2", Deleted: true},
	})
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejections: %v", rejected)
	}
	if _, err := s.Get(ctx, syncmodel.TableTasks, "t2"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("deleted row still present")
	}
}

func TestApply_PartialBatch(t *testing.T) {
	t.Parallel()
	r, s := newReconcilerFixture(t)
	ctx := context.Background()

	batch := []syncmodel.LocalChange{
		// fine
		{Table: syncmodel.TableTasks, ID: "ok-1", Created: syncmodel.Record{"id": "ok-1", "project_id": "p1", "title": "A"}},
		// permission denied: outsider's project does not exist
		{Table: syncmodel.TableTasks, ID: "bad-perm", Created: syncmodel.Record{"id": "bad-perm", "project_id": "p-evil", "title": "B"}},
		// malformed: no op set
		{Table: syncmodel.TableTasks, ID: "bad-op"},
		// unknown table
		{Table: syncmodel.Table("bogus"), ID: "bad-table", Deleted: true},
		// fine again: rejections must not abort the rest of the batch
		{Table: syncmodel.TableTasks, ID: "ok-2", Created: syncmodel.Record{"id": "ok-2", "project_id": "p1", "title": "C"}},
	}

	rejected := r.Apply(ctx, "u1", batch)
	if len(rejected) != 3 {
		t.Fatalf("expected 3 rejections, got %v", rejected)
	}
	want := map[string]bool{"bad-perm": true, "bad-op": true, "bad-table": true}
	for _, id := range rejected {
		if !want[id] {
			t.Fatalf("unexpected rejected id %q in %v", id, rejected)
		}
	}

	for _, id := range []string{"ok-1", "ok-2"} {
		if _, err := s.Get(ctx, syncmodel.TableTasks, id); err != nil {
			t.Fatalf("accepted row %s missing: %v", id, err)
		}
	}
}

func TestApply_MixedRejectionKinds(t *testing.T) {
	t.Parallel()
	r, s := newReconcilerFixture(t)
	ctx := context.Background()

	// a second workspace u1 is not a member of
	foreign := []struct {
		table syncmodel.Table
		rec   syncmodel.Record
	}{
		{syncmodel.TableWorkspaces, syncmodel.Record{"id": "ws2", "name": "Other", "owner_id": "u9"}},
		{syncmodel.TableWorkspaceMembers, syncmodel.Record{"id": "m9", "workspace_id": "ws2", "user_id": "u9", "role": "owner"}},
		{syncmodel.TableProjects, syncmodel.Record{"id": "p2", "workspace_id": "ws2", "name": "Theirs"}},
	}
	for _, f := range foreign {
		if err := s.Insert(ctx, f.table, f.rec); err != nil {
			t.Fatalf("seed %s/%s: %v", f.table, f.rec.ID(), err)
		}
	}

	batch := []syncmodel.LocalChange{
		{Table: syncmodel.TableTasks, ID: "fine-1", Created: syncmodel.Record{"id": "fine-1", "project_id": "p1", "title": "A"}},
		// project exists but lives in a workspace u1 has no membership in
		{Table: syncmodel.TableTasks, ID: "denied", Created: syncmodel.Record{"id": "denied", "project_id": "p2", "title": "B"}},
		{Table: syncmodel.TableTasks, ID: "fine-2", Created: syncmodel.Record{"id": "fine-2", "project_id": "p1", "title": "C"}},
		// collides with the seeded t1 primary key
		{Table: syncmodel.TableTasks, ID: "dup-1", Created: syncmodel.Record{"id": "t1", "project_id": "p1", "title": "D"}},
		{Table: syncmodel.TableSubtasks, ID: "fine-3", Created: syncmodel.Record{"id": "fine-3", "task_id": "t1", "title": "E"}},
	}

	rejected := r.Apply(ctx, "u1", batch)
	if len(rejected) != 2 {
		t.Fatalf("expected 2 rejections, got %v", rejected)
	}
	want := map[string]bool{"denied": true, "dup-1": true}
	for _, id := range rejected {
		if !want[id] {
			t.Fatalf("unexpected rejected id %q in %v", id, rejected)
		}
	}

	for _, id := range []string{"fine-1", "fine-2"} {
		if _, err := s.Get(ctx, syncmodel.TableTasks, id); err != nil {
			t.Fatalf("accepted row %s missing: %v", id, err)
		}
	}
	if _, err := s.Get(ctx, syncmodel.TableSubtasks, "fine-3"); err != nil {
		t.Fatalf("accepted subtask missing: %v", err)
	}
	if _, err := s.Get(ctx, syncmodel.TableTasks, "denied"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("denied create must not reach the store")
	}
	if rec, _ := s.Get(ctx, syncmodel.TableTasks, "t1"); rec.GetString("title") != "Build" {
		t.Fatalf("duplicate create damaged the existing row: %v", rec)
	}
}

func TestApply_ReplayIsIdempotent(t *testing.T) {
	t.Parallel()
	r, s := newReconcilerFixture(t)
	ctx := context.Background()

	batch := []syncmodel.LocalChange{
		{Table: syncmodel.TableTasks, ID: "t9", Created: syncmodel.Record{"id": "t9", "project_id": "p1", "title": "Once"}},
	}

	if rejected := r.Apply(ctx, "u1", batch); len(rejected) != 0 {
		t.Fatalf("first apply rejected: %v", rejected)
	}

	// the client re-sends the same batch after losing the response; the
	// create collides with the primary key and is reported rejected, but
	// the row survives untouched
	rejected := r.Apply(ctx, "u1", batch)
	if len(rejected) != 1 || rejected[0] != "t9" {
		t.Fatalf("replayed create should be rejected, got %v", rejected)
	}

	rec, err := s.Get(ctx, syncmodel.TableTasks, "t9")
	if err != nil || rec.GetString("title") != "Once" {
		t.Fatalf("row damaged by replay: %v %v", rec, err)
	}
}

func TestApply_ServerIDPromotion(t *testing.T) {
	t.Parallel()
	r, s := newReconcilerFixture(t)
	ctx := context.Background()

	batch := []syncmodel.LocalChange{
		{Table: syncmodel.TableTasks, ID: "local-7", Created: syncmodel.Record{
			"id": "local-7", "server_id": "srv-7", "project_id": "p1", "title": "Promoted",
		}},
	}

	if rejected := r.Apply(ctx, "u1", batch); len(rejected) != 0 {
		t.Fatalf("apply rejected: %v", rejected)
	}

	rec, err := s.Get(ctx, syncmodel.TableTasks, "srv-7")
	if err != nil {
		t.Fatalf("row should exist under the server id: %v", err)
	}
	if _, ok := rec["server_id"]; ok {
		t.Fatalf("server_id must not be stored as a column")
	}
	if _, err := s.Get(ctx, syncmodel.TableTasks, "local-7"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("row must not exist under the local id")
	}
}

func TestApply_StripsLocalBookkeeping(t *testing.T) {
	t.Parallel()
	r, s := newReconcilerFixture(t)
	ctx := context.Background()

	batch := []syncmodel.LocalChange{
		{Table: syncmodel.TableTasks, ID: "t3", Created: syncmodel.Record{
			"id": "t3", "project_id": "p1", "title": "X",
			"is_dirty": true, "synced_at": 123, "local_id": "l-3",
		}},
	}
	if rejected := r.Apply(ctx, "u1", batch); len(rejected) != 0 {
		t.Fatalf("apply rejected: %v", rejected)
	}

	rec, _ := s.Get(ctx, syncmodel.TableTasks, "t3")
	for _, f := range []string{"is_dirty", "synced_at", "local_id"} {
		if _, ok := rec[f]; ok {
			t.Fatalf("local field %q reached the store", f)
		}
	}
}

func TestApply_CreateBackfillsTimestamps(t *testing.T) {
	t.Parallel()
	r, s := newReconcilerFixture(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	rejected := r.Apply(ctx, "u1", []syncmodel.LocalChange{
		{Table: syncmodel.TableTasks, ID: "t5", Created: syncmodel.Record{
			"id": "t5", "project_id": "p1", "title": "No stamps",
		}},
	})
	if len(rejected) != 0 {
		t.Fatalf("apply rejected: %v", rejected)
	}

	rec, err := s.Get(ctx, syncmodel.TableTasks, "t5")
	if err != nil {
		t.Fatalf("created row missing: %v", err)
	}
	for _, f := range []string{"created_at", "updated_at"} {
		if _, ok := rec[f].(time.Time); !ok {
			t.Fatalf("%s not stamped on insert: %v", f, rec[f])
		}
	}

	// without the stamp the row would never match a watermark query
	rows, err := s.Select(ctx, syncmodel.TableTasks, store.Gte("updated_at", before))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	found := false
	for _, row := range rows {
		if row.ID() == "t5" {
			found = true
		}
	}
	if !found {
		t.Fatalf("stamped row should be visible to changed-since queries")
	}
}

func TestApply_MalformedTimestamp(t *testing.T) {
	t.Parallel()
	r, _ := newReconcilerFixture(t)
	ctx := context.Background()

	rejected := r.Apply(ctx, "u1", []syncmodel.LocalChange{
		{Table: syncmodel.TableTasks, ID: "t4", Created: syncmodel.Record{
			"id": "t4", "project_id": "p1", "title": "X", "due_date": "yesterday-ish",
		}},
	})
	if len(rejected) != 1 || rejected[0] != "t4" {
		t.Fatalf("unparseable timestamp should reject the change, got %v", rejected)
	}
}

func TestApply_DeleteMissingRowRejected(t *testing.T) {
	t.Parallel()
	r, _ := newReconcilerFixture(t)
	ctx := context.Background()

	rejected := r.Apply(ctx, "u1", []syncmodel.LocalChange{
		{Table: syncmodel.TableTasks, ID: "ghost", Deleted: true},
	})
	if len(rejected) != 1 || rejected[0] != "ghost" {
		t.Fatalf("delete of a missing row should land in the rejected set, got %v", rejected)
	}
}

func TestApply_WorkspaceTakeoverRejected(t *testing.T) {
	t.Parallel()
	r, s := newReconcilerFixture(t)
	ctx := context.Background()

	// a non-member pushes an update claiming ownership of ws1 in the body;
	// the stored owner wins and the change lands in the rejected set
	rejected := r.Apply(ctx, "outsider", []syncmodel.LocalChange{
		{Table: syncmodel.TableWorkspaces, ID: "ws1", Updated: syncmodel.Record{
			"owner_id": "outsider", "name": "pwned",
		}},
	})
	if len(rejected) != 1 || rejected[0] != "ws1" {
		t.Fatalf("ownership claim in the body should be rejected, got %v", rejected)
	}

	rec, err := s.Get(ctx, syncmodel.TableWorkspaces, "ws1")
	if err != nil {
		t.Fatalf("workspace missing: %v", err)
	}
	if rec.GetString("owner_id") != "u1" || rec.GetString("name") != "Acme" {
		t.Fatalf("workspace row damaged: %v", rec)
	}
}

func TestApply_UpdateTargetsServerID(t *testing.T) {
	t.Parallel()
	r, s := newReconcilerFixture(t)
	ctx := context.Background()

	rejected := r.Apply(ctx, "u1", []syncmodel.LocalChange{
		{Table: syncmodel.TableTasks, ID: "local-1", ServerID: "t1", Updated: syncmodel.Record{"title": "Via server id"}},
	})
	if len(rejected) != 0 {
		t.Fatalf("apply rejected: %v", rejected)
	}

	rec, _ := s.Get(ctx, syncmodel.TableTasks, "t1")
	if rec.GetString("title") != "Via server id" {
		t.Fatalf("update via server id not applied: %v", rec)
	}
}
