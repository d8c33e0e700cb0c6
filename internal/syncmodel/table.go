// Package syncmodel defines the shared vocabulary of the sync protocol:
// the closed set of syncable tables, the generic record payload, queued
// local changes, and the push/pull wire types.
package syncmodel

// Table identifies one of the syncable tables.
type Table string

const (
	TableProfiles         Table = "profiles"
	TableWorkspaces       Table = "workspaces"
	TableWorkspaceMembers Table = "workspace_members"
	TableProjects         Table = "projects"
	TableTags             Table = "tags"
	TableTasks            Table = "tasks"
	TableSubtasks         Table = "subtasks"
	TableComments         Table = "comments"
	TableTaskTags         Table = "task_tags"
	TableAttachments      Table = "attachments"
	TableTimeEntries      Table = "time_entries"
	TableActivityLogs     Table = "activity_logs"
)

// Kind selects the containment-resolution strategy for a table. Permission
// checks and pull scoping dispatch on it with exhaustive switches, so adding
// a table without deciding its strategy does not compile quietly.
type Kind int

const (
	// KindSelf scopes rows to the user whose id equals the row id (profiles).
	KindSelf Kind = iota
	// KindWorkspaceRoot is the authorization root (workspaces).
	KindWorkspaceRoot
	// KindWorkspaceChild rows carry workspace_id directly (projects, tags).
	KindWorkspaceChild
	// KindAdminGated mutations require an owner/admin role (workspace_members).
	KindAdminGated
	// KindProjectChild rows resolve project_id -> workspace_id (tasks).
	KindProjectChild
	// KindTaskChild rows resolve task_id -> project_id -> workspace_id
	// (subtasks, comments, attachments, time_entries).
	KindTaskChild
	// KindTaskTag junction rows must resolve on both the task and tag side.
	KindTaskTag
	// KindActivityLog rows are writable by their actor only.
	KindActivityLog
)

// Info describes one syncable table: its resolution strategy, the column
// set accepted over the wire, and which columns hold timestamps.
type Info struct {
	Table Table
	Kind  Kind

	// Columns is the full whitelist; payload keys outside it are dropped at
	// the storage boundary.
	Columns []string

	// TimestampFields are normalized to UTC time values on push.
	TimestampFields []string

	// ParentColumn/ParentTable describe the containment edge walked upward
	// during permission resolution. Empty for root and self-scoped tables.
	ParentColumn string
	ParentTable  Table

	// PersonalUserColumn marks tables where the row's own user keeps
	// read/update/delete access regardless of workspace membership.
	PersonalUserColumn string
}

var baseTimestamps = []string{"created_at", "updated_at"}

var registry = map[Table]Info{
	TableProfiles: {
		Table:           TableProfiles,
		Kind:            KindSelf,
		Columns:         []string{"id", "email", "full_name", "avatar_url", "timezone", "created_at", "updated_at"},
		TimestampFields: baseTimestamps,
	},
	TableWorkspaces: {
		Table:           TableWorkspaces,
		Kind:            KindWorkspaceRoot,
		Columns:         []string{"id", "name", "description", "color", "owner_id", "created_at", "updated_at"},
		TimestampFields: baseTimestamps,
	},
	TableWorkspaceMembers: {
		Table:           TableWorkspaceMembers,
		Kind:            KindAdminGated,
		Columns:         []string{"id", "workspace_id", "user_id", "role", "joined_at", "created_at", "updated_at"},
		TimestampFields: []string{"created_at", "updated_at", "joined_at"},
		ParentColumn:    "workspace_id",
		ParentTable:     TableWorkspaces,
	},
	TableProjects: {
		Table:           TableProjects,
		Kind:            KindWorkspaceChild,
		Columns:         []string{"id", "workspace_id", "name", "description", "color", "status", "created_at", "updated_at"},
		TimestampFields: baseTimestamps,
		ParentColumn:    "workspace_id",
		ParentTable:     TableWorkspaces,
	},
	TableTags: {
		Table:           TableTags,
		Kind:            KindWorkspaceChild,
		Columns:         []string{"id", "workspace_id", "name", "color", "created_at", "updated_at"},
		TimestampFields: baseTimestamps,
		ParentColumn:    "workspace_id",
		ParentTable:     TableWorkspaces,
	},
	TableTasks: {
		Table:           TableTasks,
		Kind:            KindProjectChild,
		Columns:         []string{"id", "project_id", "title", "description", "status", "priority", "position", "assignee_id", "due_date", "completed_at", "created_at", "updated_at"},
		TimestampFields: []string{"created_at", "updated_at", "due_date", "completed_at"},
		ParentColumn:    "project_id",
		ParentTable:     TableProjects,
	},
	TableSubtasks: {
		Table:           TableSubtasks,
		Kind:            KindTaskChild,
		Columns:         []string{"id", "task_id", "title", "completed", "position", "created_at", "updated_at"},
		TimestampFields: baseTimestamps,
		ParentColumn:    "task_id",
		ParentTable:     TableTasks,
	},
	TableComments: {
		Table:           TableComments,
		Kind:            KindTaskChild,
		Columns:         []string{"id", "task_id", "user_id", "body", "created_at", "updated_at"},
		TimestampFields: baseTimestamps,
		ParentColumn:    "task_id",
		ParentTable:     TableTasks,
	},
	TableTaskTags: {
		Table:           TableTaskTags,
		Kind:            KindTaskTag,
		Columns:         []string{"id", "task_id", "tag_id", "created_at", "updated_at"},
		TimestampFields: baseTimestamps,
		ParentColumn:    "task_id",
		ParentTable:     TableTasks,
	},
	TableAttachments: {
		Table:           TableAttachments,
		Kind:            KindTaskChild,
		Columns:         []string{"id", "task_id", "user_id", "file_name", "file_size", "mime_type", "storage_key", "created_at", "updated_at"},
		TimestampFields: baseTimestamps,
		ParentColumn:    "task_id",
		ParentTable:     TableTasks,
	},
	TableTimeEntries: {
		Table:              TableTimeEntries,
		Kind:               KindTaskChild,
		Columns:            []string{"id", "task_id", "user_id", "description", "start_time", "end_time", "duration_seconds", "created_at", "updated_at"},
		TimestampFields:    []string{"created_at", "updated_at", "start_time", "end_time"},
		ParentColumn:       "task_id",
		ParentTable:        TableTasks,
		PersonalUserColumn: "user_id",
	},
	TableActivityLogs: {
		Table:              TableActivityLogs,
		Kind:               KindActivityLog,
		Columns:            []string{"id", "workspace_id", "user_id", "entity_type", "entity_id", "action", "details", "created_at", "updated_at"},
		TimestampFields:    baseTimestamps,
		ParentColumn:       "workspace_id",
		ParentTable:        TableWorkspaces,
		PersonalUserColumn: "user_id",
	},
}

// tableOrder fixes the iteration order for pull extraction so parents are
// reported before their children.
var tableOrder = []Table{
	TableProfiles,
	TableWorkspaces,
	TableWorkspaceMembers,
	TableProjects,
	TableTags,
	TableTasks,
	TableSubtasks,
	TableComments,
	TableTaskTags,
	TableAttachments,
	TableTimeEntries,
	TableActivityLogs,
}

// Tables returns every syncable table in a stable parent-first order.
func Tables() []Table {
	out := make([]Table, len(tableOrder))
	copy(out, tableOrder)
	return out
}

// Lookup resolves a table identifier against the closed registry.
// Unknown names report ok=false; callers treat that as a malformed change.
func Lookup(t Table) (Info, bool) {
	info, ok := registry[t]
	return info, ok
}
