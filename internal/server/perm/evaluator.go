// Package perm implements the per-record permission evaluator. Every
// decision walks the containment hierarchy (workspace membership → project
// → task → child entity) up to an authorization root; the path is resolved
// from the store on each check rather than cached, so a reparented or
// deleted ancestor takes effect immediately.
package perm

import (
	"context"

	"github.com/akarpov87/taskhive/internal/logging"
	"github.com/akarpov87/taskhive/internal/server/store"
	"github.com/akarpov87/taskhive/internal/syncmodel"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Evaluator struct {
	store  store.RowStore
	logger logging.Logger
}

func NewEvaluator(s store.RowStore, l logging.Logger) *Evaluator {
	return &Evaluator{store: s, logger: l.With("module", "perm")}
}

// CanAccess reports whether userID may operate on the given row. rec may be
// nil when only the id is known. The check never errors: missing rows and
// unresolvable containment paths fail closed.
func (e *Evaluator) CanAccess(ctx context.Context, userID string, table syncmodel.Table, recordID string, rec syncmodel.Record) bool {
	info, ok := syncmodel.Lookup(table)
	if !ok {
		return false
	}

	switch info.Kind {
	case syncmodel.KindSelf:
		if id := recordOrBodyID(recordID, rec); id != "" {
			return id == userID
		}
		return false

	case syncmodel.KindWorkspaceRoot:
		// ownership comes from the stored row; the body only names an owner
		// on creates. Non-owners fall through to the membership check.
		if owner := e.resolveField(ctx, table, recordID, rec, "owner_id"); owner == userID {
			return true
		}
		wsID := recordOrBodyID(recordID, rec)
		return wsID != "" && e.isMember(ctx, wsID, userID)

	case syncmodel.KindWorkspaceChild:
		wsID := e.resolveField(ctx, table, recordID, rec, "workspace_id")
		return wsID != "" && e.isMember(ctx, wsID, userID)

	case syncmodel.KindAdminGated:
		return e.canTouchMembership(ctx, userID, recordID, rec)

	case syncmodel.KindProjectChild:
		projectID := e.resolveField(ctx, table, recordID, rec, "project_id")
		wsID := e.workspaceOfProject(ctx, projectID)
		return wsID != "" && e.isMember(ctx, wsID, userID)

	case syncmodel.KindTaskChild:
		// personal-data exception: the row's own user keeps access to an
		// existing row even without workspace membership
		if info.PersonalUserColumn != "" && recordID != "" {
			if stored, err := e.store.Get(ctx, table, recordID); err == nil {
				if stored.GetString(info.PersonalUserColumn) == userID {
					return true
				}
			}
		}
		taskID := e.resolveField(ctx, table, recordID, rec, "task_id")
		wsID := e.workspaceOfTask(ctx, taskID)
		return wsID != "" && e.isMember(ctx, wsID, userID)

	case syncmodel.KindTaskTag:
		taskID := e.resolveField(ctx, table, recordID, rec, "task_id")
		tagID := e.resolveField(ctx, table, recordID, rec, "tag_id")
		taskWs := e.workspaceOfTask(ctx, taskID)
		tagWs := e.resolveField(ctx, syncmodel.TableTags, tagID, nil, "workspace_id")
		return taskWs != "" && tagWs != "" &&
			e.isMember(ctx, taskWs, userID) && e.isMember(ctx, tagWs, userID)

	case syncmodel.KindActivityLog:
		if actor := e.resolveField(ctx, table, recordID, rec, "user_id"); actor == userID {
			return true
		}
		wsID := e.resolveField(ctx, table, recordID, rec, "workspace_id")
		return wsID != "" && e.isMember(ctx, wsID, userID)
	}

	return false
}

// CanWrite is CanAccess with the stricter activity-log rule: a log row may
// only be written by the actor it is attributed to.
func (e *Evaluator) CanWrite(ctx context.Context, userID string, table syncmodel.Table, recordID string, rec syncmodel.Record) bool {
	info, ok := syncmodel.Lookup(table)
	if !ok {
		return false
	}
	if info.Kind == syncmodel.KindActivityLog {
		return e.resolveField(ctx, table, recordID, rec, "user_id") == userID
	}
	return e.CanAccess(ctx, userID, table, recordID, rec)
}

// canTouchMembership gates workspace_members mutations: owners and admins
// manage memberships; additionally, a workspace owner may insert their own
// membership row when bootstrapping a new workspace.
func (e *Evaluator) canTouchMembership(ctx context.Context, userID, recordID string, rec syncmodel.Record) bool {
	wsID := e.resolveField(ctx, syncmodel.TableWorkspaceMembers, recordID, rec, "workspace_id")
	if wsID == "" {
		return false
	}

	target := e.resolveField(ctx, syncmodel.TableWorkspaceMembers, recordID, rec, "user_id")
	if target == userID {
		if ws, err := e.store.Get(ctx, syncmodel.TableWorkspaces, wsID); err == nil {
			if ws.GetString("owner_id") == userID {
				return true
			}
		}
	}

	role, ok := e.memberRole(ctx, wsID, userID)
	return ok && (role == RoleOwner || role == RoleAdmin)
}

func (e *Evaluator) isMember(ctx context.Context, workspaceID, userID string) bool {
	_, ok := e.memberRole(ctx, workspaceID, userID)
	return ok
}

func (e *Evaluator) memberRole(ctx context.Context, workspaceID, userID string) (string, bool) {
	if workspaceID == "" || userID == "" {
		return "", false
	}
	rows, err := e.store.Select(ctx, syncmodel.TableWorkspaceMembers,
		store.Eq("workspace_id", workspaceID), store.Eq("user_id", userID))
	if err != nil || len(rows) == 0 {
		return "", false
	}
	return rows[0].GetString("role"), true
}

func (e *Evaluator) workspaceOfProject(ctx context.Context, projectID string) string {
	return e.resolveField(ctx, syncmodel.TableProjects, projectID, nil, "workspace_id")
}

func (e *Evaluator) workspaceOfTask(ctx context.Context, taskID string) string {
	projectID := e.resolveField(ctx, syncmodel.TableTasks, taskID, nil, "project_id")
	return e.workspaceOfProject(ctx, projectID)
}

// resolveField returns the named column for the row, preferring the stored
// row over the submitted body so a crafted payload cannot relocate a record
// into a workspace the caller controls. The body is consulted only when the
// row does not exist yet (creates).
func (e *Evaluator) resolveField(ctx context.Context, table syncmodel.Table, recordID string, rec syncmodel.Record, column string) string {
	if recordID != "" {
		if stored, err := e.store.Get(ctx, table, recordID); err == nil {
			if v := stored.GetString(column); v != "" {
				return v
			}
			return ""
		}
	}
	return rec.GetString(column)
}

func recordOrBodyID(recordID string, rec syncmodel.Record) string {
	if id := rec.ID(); id != "" {
		return id
	}
	return recordID
}
