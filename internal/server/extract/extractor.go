// Package extract builds the pull side of the sync protocol: everything a
// user may see that changed since their watermark, grouped by table.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/akarpov87/taskhive/internal/logging"
	"github.com/akarpov87/taskhive/internal/server/store"
	"github.com/akarpov87/taskhive/internal/syncmodel"
)

type Extractor struct {
	store  store.RowStore
	logger logging.Logger
}

func NewExtractor(s store.RowStore, l logging.Logger) *Extractor {
	return &Extractor{store: s, logger: l.With("module", "extract")}
}

// Changes returns the rows changed at or after since, scoped to the
// caller's accessible workspaces. Rows whose created_at is later than since
// are tagged as creations, the rest as updates. Tables with nothing to
// report are omitted from the map; deletions are not reported (there is no
// tombstone table).
func (e *Extractor) Changes(ctx context.Context, userID string, since time.Time) (map[syncmodel.Table][]syncmodel.RowChange, error) {
	scope, err := e.resolveScope(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make(map[syncmodel.Table][]syncmodel.RowChange)
	for _, table := range syncmodel.Tables() {
		rows, err := e.tableRows(ctx, userID, table, scope, since)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", table, err)
		}
		changes := tagRows(table, rows, since)
		if len(changes) > 0 {
			out[table] = changes
		}
	}

	e.logger.Debug(ctx, "extracted changes", "user_id", userID, "tables", len(out))
	return out, nil
}

// accessScope is the caller's reachable id sets, resolved top-down once per
// pull: workspaces from membership, then projects, then tasks.
type accessScope struct {
	workspaceIDs []string
	projectIDs   []string
	taskIDs      []string
}

func (e *Extractor) resolveScope(ctx context.Context, userID string) (*accessScope, error) {
	scope := &accessScope{}

	memberships, err := e.store.Select(ctx, syncmodel.TableWorkspaceMembers, store.Eq("user_id", userID))
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		if wsID := m.GetString("workspace_id"); wsID != "" {
			scope.workspaceIDs = append(scope.workspaceIDs, wsID)
		}
	}
	if len(scope.workspaceIDs) == 0 {
		return scope, nil
	}

	projects, err := e.store.Select(ctx, syncmodel.TableProjects, store.In("workspace_id", scope.workspaceIDs))
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		scope.projectIDs = append(scope.projectIDs, p.ID())
	}
	if len(scope.projectIDs) == 0 {
		return scope, nil
	}

	tasks, err := e.store.Select(ctx, syncmodel.TableTasks, store.In("project_id", scope.projectIDs))
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		scope.taskIDs = append(scope.taskIDs, t.ID())
	}
	return scope, nil
}

// tableRows queries one table with the scoping appropriate to its kind.
// A table whose scoping id-set is empty is skipped entirely.
func (e *Extractor) tableRows(ctx context.Context, userID string, table syncmodel.Table, scope *accessScope, since time.Time) ([]syncmodel.Record, error) {
	info, _ := syncmodel.Lookup(table)
	changed := store.Gte("updated_at", since)

	switch info.Kind {
	case syncmodel.KindSelf:
		return e.store.Select(ctx, table, store.Eq("id", userID), changed)

	case syncmodel.KindWorkspaceRoot:
		if len(scope.workspaceIDs) == 0 {
			return nil, nil
		}
		return e.store.Select(ctx, table, store.In("id", scope.workspaceIDs), changed)

	case syncmodel.KindWorkspaceChild, syncmodel.KindAdminGated:
		if len(scope.workspaceIDs) == 0 {
			return nil, nil
		}
		return e.store.Select(ctx, table, store.In("workspace_id", scope.workspaceIDs), changed)

	case syncmodel.KindProjectChild:
		if len(scope.projectIDs) == 0 {
			return nil, nil
		}
		return e.store.Select(ctx, table, store.In("project_id", scope.projectIDs), changed)

	case syncmodel.KindTaskChild:
		var rows []syncmodel.Record
		if len(scope.taskIDs) > 0 {
			var err error
			rows, err = e.store.Select(ctx, table, store.In("task_id", scope.taskIDs), changed)
			if err != nil {
				return nil, err
			}
		}
		if info.PersonalUserColumn == "" {
			return rows, nil
		}
		// personal-data exception: own rows come along even when the task's
		// workspace is out of reach
		own, err := e.store.Select(ctx, table, store.Eq(info.PersonalUserColumn, userID), changed)
		if err != nil {
			return nil, err
		}
		return mergeByID(rows, own), nil

	case syncmodel.KindTaskTag:
		if len(scope.taskIDs) == 0 {
			return nil, nil
		}
		return e.store.Select(ctx, table, store.In("task_id", scope.taskIDs), changed)

	case syncmodel.KindActivityLog:
		var rows []syncmodel.Record
		if len(scope.workspaceIDs) > 0 {
			var err error
			rows, err = e.store.Select(ctx, table, store.In("workspace_id", scope.workspaceIDs), changed)
			if err != nil {
				return nil, err
			}
		}
		own, err := e.store.Select(ctx, table, store.Eq("user_id", userID), changed)
		if err != nil {
			return nil, err
		}
		return mergeByID(rows, own), nil
	}

	return nil, nil
}

// tagRows classifies each row as a creation or an update relative to the
// watermark, so the client can insert vs. merge without re-deriving it.
func tagRows(table syncmodel.Table, rows []syncmodel.Record, since time.Time) []syncmodel.RowChange {
	changes := make([]syncmodel.RowChange, 0, len(rows))
	for _, rec := range rows {
		rc := syncmodel.RowChange{Table: table, ID: rec.ID()}
		createdAt, err := syncmodel.AsTime(rec["created_at"])
		if err == nil && createdAt.After(since) {
			rc.Created = rec
		} else {
			rc.Updated = rec
		}
		changes = append(changes, rc)
	}
	return changes
}

func mergeByID(a, b []syncmodel.Record) []syncmodel.Record {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a))
	for _, rec := range a {
		seen[rec.ID()] = struct{}{}
	}
	for _, rec := range b {
		if _, dup := seen[rec.ID()]; !dup {
			a = append(a, rec)
		}
	}
	return a
}
