package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/akarpov87/taskhive/internal/common"
	"github.com/akarpov87/taskhive/internal/syncmodel"
)

// cascadeRefs lists the child edges removed along with a deleted row,
// mirroring the ON DELETE CASCADE constraints in the Postgres schema.
var cascadeRefs = map[syncmodel.Table][]struct {
	child  syncmodel.Table
	column string
}{
	syncmodel.TableWorkspaces: {
		{syncmodel.TableWorkspaceMembers, "workspace_id"},
		{syncmodel.TableProjects, "workspace_id"},
		{syncmodel.TableTags, "workspace_id"},
		{syncmodel.TableActivityLogs, "workspace_id"},
	},
	syncmodel.TableProjects: {
		{syncmodel.TableTasks, "project_id"},
	},
	syncmodel.TableTasks: {
		{syncmodel.TableSubtasks, "task_id"},
		{syncmodel.TableComments, "task_id"},
		{syncmodel.TableTaskTags, "task_id"},
		{syncmodel.TableAttachments, "task_id"},
		{syncmodel.TableTimeEntries, "task_id"},
	},
	syncmodel.TableTags: {
		{syncmodel.TableTaskTags, "tag_id"},
	},
}

// InMemory is a RowStore over plain maps. It enforces the same invariants
// as the Postgres schema (primary-key uniqueness, containment foreign
// keys, delete cascades), which makes it a faithful double in tests.
type InMemory struct {
	mu   sync.RWMutex
	data map[syncmodel.Table]map[string]syncmodel.Record
}

func NewInMemory() *InMemory {
	data := make(map[syncmodel.Table]map[string]syncmodel.Record)
	for _, t := range syncmodel.Tables() {
		data[t] = make(map[string]syncmodel.Record)
	}
	return &InMemory{data: data}
}

func (s *InMemory) Get(_ context.Context, table syncmodel.Table, id string) (syncmodel.Record, error) {
	if _, ok := syncmodel.Lookup(table); !ok {
		return nil, fmt.Errorf("%w: unknown table %q", common.ErrMalformedChange, table)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[table][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemory) Select(_ context.Context, table syncmodel.Table, filters ...Filter) ([]syncmodel.Record, error) {
	if _, ok := syncmodel.Lookup(table); !ok {
		return nil, fmt.Errorf("%w: unknown table %q", common.ErrMalformedChange, table)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []syncmodel.Record
	for _, rec := range s.data[table] {
		ok, err := matches(rec, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, rec.Clone())
		}
	}
	return result, nil
}

func (s *InMemory) Insert(ctx context.Context, table syncmodel.Table, rec syncmodel.Record) error {
	info, ok := syncmodel.Lookup(table)
	if !ok {
		return fmt.Errorf("%w: unknown table %q", common.ErrMalformedChange, table)
	}
	id := rec.ID()
	if id == "" {
		return fmt.Errorf("%w: missing id for %s", common.ErrMalformedChange, table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[table][id]; exists {
		return fmt.Errorf("%w on %s: duplicate id %s", common.ErrConstraintViolation, table, id)
	}
	if err := s.checkForeignKeys(info, rec); err != nil {
		return err
	}
	s.data[table][id] = rec.Clone()
	return nil
}

func (s *InMemory) Update(_ context.Context, table syncmodel.Table, id string, rec syncmodel.Record) error {
	info, ok := syncmodel.Lookup(table)
	if !ok {
		return fmt.Errorf("%w: unknown table %q", common.ErrMalformedChange, table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.data[table][id]
	if !found {
		return common.ErrNotFound
	}
	merged := existing.Clone()
	for k, v := range rec {
		if k == "id" || k == "created_at" {
			continue
		}
		merged[k] = v
	}
	if err := s.checkForeignKeys(info, merged); err != nil {
		return err
	}
	s.data[table][id] = merged
	return nil
}

func (s *InMemory) Delete(_ context.Context, table syncmodel.Table, id string) error {
	if _, ok := syncmodel.Lookup(table); !ok {
		return fmt.Errorf("%w: unknown table %q", common.ErrMalformedChange, table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.data[table][id]; !found {
		return common.ErrNotFound
	}
	s.cascadeDelete(table, id)
	return nil
}

// cascadeDelete removes the row and, depth-first, every child row reachable
// through the cascade edges. Caller holds the write lock.
func (s *InMemory) cascadeDelete(table syncmodel.Table, id string) {
	delete(s.data[table], id)
	for _, ref := range cascadeRefs[table] {
		var childIDs []string
		for childID, rec := range s.data[ref.child] {
			if rec.GetString(ref.column) == id {
				childIDs = append(childIDs, childID)
			}
		}
		for _, childID := range childIDs {
			s.cascadeDelete(ref.child, childID)
		}
	}
}

// checkForeignKeys verifies the containment edge (and the tag side of the
// task_tags junction) references live rows. Caller holds the lock.
func (s *InMemory) checkForeignKeys(info syncmodel.Info, rec syncmodel.Record) error {
	if info.ParentColumn != "" {
		if parentID := rec.GetString(info.ParentColumn); parentID != "" {
			if _, ok := s.data[info.ParentTable][parentID]; !ok {
				return fmt.Errorf("%w on %s: missing %s %s", common.ErrConstraintViolation, info.Table, info.ParentTable, parentID)
			}
		}
	}
	if info.Kind == syncmodel.KindTaskTag {
		if tagID := rec.GetString("tag_id"); tagID != "" {
			if _, ok := s.data[syncmodel.TableTags][tagID]; !ok {
				return fmt.Errorf("%w on %s: missing tag %s", common.ErrConstraintViolation, info.Table, tagID)
			}
		}
	}
	return nil
}

func matches(rec syncmodel.Record, filters []Filter) (bool, error) {
	for _, f := range filters {
		v, present := rec[f.Column]
		switch f.Op {
		case OpEq:
			if !present || !valueEq(v, f.Value) {
				return false, nil
			}
		case OpGte:
			if !present || v == nil {
				return false, nil
			}
			have, err := syncmodel.AsTime(v)
			if err != nil {
				return false, nil
			}
			want, err := syncmodel.AsTime(f.Value)
			if err != nil {
				return false, err
			}
			if have.Before(want) {
				return false, nil
			}
		case OpIn:
			values, ok := f.Value.([]string)
			if !ok {
				return false, fmt.Errorf("OpIn filter on %s requires []string", f.Column)
			}
			sv, _ := v.(string)
			found := false
			for _, candidate := range values {
				if sv == candidate {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported filter op %d", f.Op)
		}
	}
	return true, nil
}

func valueEq(a, b any) bool {
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	return reflect.DeepEqual(a, b)
}
