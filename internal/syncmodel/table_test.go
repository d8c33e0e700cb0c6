package syncmodel

import "testing"

func TestLookup_UnknownTable(t *testing.T) {
	t.Parallel()

	if _, ok := Lookup(Table("not_a_table")); ok {
		t.Fatalf("unknown table should not resolve")
	}
}

func TestRegistry_Integrity(t *testing.T) {
	t.Parallel()

	tables := Tables()
	if len(tables) != 12 {
		t.Fatalf("expected 12 syncable tables, got %d", len(tables))
	}

	for _, table := range tables {
		info, ok := Lookup(table)
		if !ok {
			t.Fatalf("table %q missing from registry", table)
		}
		if info.Table != table {
			t.Fatalf("table %q: registry self-reference mismatch", table)
		}

		cols := map[string]bool{}
		for _, c := range info.Columns {
			if cols[c] {
				t.Fatalf("table %q: duplicate column %q", table, c)
			}
			cols[c] = true
		}
		for _, required := range []string{"id", "created_at", "updated_at"} {
			if !cols[required] {
				t.Fatalf("table %q: missing required column %q", table, required)
			}
		}
		for _, ts := range info.TimestampFields {
			if !cols[ts] {
				t.Fatalf("table %q: timestamp field %q not in column set", table, ts)
			}
		}

		if info.ParentColumn != "" {
			if !cols[info.ParentColumn] {
				t.Fatalf("table %q: parent column %q not in column set", table, info.ParentColumn)
			}
			if _, ok := Lookup(info.ParentTable); !ok {
				t.Fatalf("table %q: parent table %q not registered", table, info.ParentTable)
			}
		}
		if info.PersonalUserColumn != "" && !cols[info.PersonalUserColumn] {
			t.Fatalf("table %q: personal column %q not in column set", table, info.PersonalUserColumn)
		}
	}
}

func TestTables_ParentFirstOrder(t *testing.T) {
	t.Parallel()

	pos := map[Table]int{}
	for i, table := range Tables() {
		pos[table] = i
	}

	for _, table := range Tables() {
		info, _ := Lookup(table)
		if info.ParentColumn == "" {
			continue
		}
		if pos[info.ParentTable] >= pos[table] {
			t.Fatalf("table %q ordered before its parent %q", table, info.ParentTable)
		}
	}
}
