//go:build integration
// +build integration

package integration

import (
	"testing"

	"github.com/tordrt/schemasync/internal/schema"
)

// verifyTablesExist checks that all expected tables are present in s.
func verifyTablesExist(t *testing.T, s *schema.Schema, expectedTables []string) {
	t.Helper()

	for _, name := range expectedTables {
		if _, ok := s.Table(name); !ok {
			t.Errorf("expected table %s not found in schema", name)
		}
	}
}

// verifyColumns checks that expected columns exist in table.
func verifyColumns(t *testing.T, table *schema.Table, expectedColumns []string) {
	t.Helper()

	for _, name := range expectedColumns {
		if _, ok := table.Column(name); !ok {
			t.Errorf("expected column %s not found in %s table", name, table.Name)
		}
	}
}

// verifyPrimaryKey checks that table has the expected primary key columns.
func verifyPrimaryKey(t *testing.T, table *schema.Table, expectedPK []string) {
	t.Helper()

	got := table.PrimaryKeyColumns()
	if len(got) != len(expectedPK) {
		t.Errorf("expected primary key %v, got %v", expectedPK, got)
		return
	}
	for i, pk := range expectedPK {
		if got[i] != pk {
			t.Errorf("expected primary key %v, got %v", expectedPK, got)
			return
		}
	}
}

// verifyForeignKey checks that a foreign key relationship exists from
// tableName.sourceColumn to targetTable.
func verifyForeignKey(t *testing.T, s *schema.Schema, tableName, sourceColumn, targetTable string) {
	t.Helper()

	table, ok := s.Table(tableName)
	if !ok {
		t.Fatalf("table %s not found", tableName)
		return
	}

	for _, c := range table.Constraints {
		if c.Kind != schema.ForeignKey || c.Reference == nil {
			continue
		}
		if c.Reference.TargetTable == targetTable && len(c.Columns) > 0 && c.Columns[0] == sourceColumn {
			return
		}
	}

	t.Errorf("expected foreign key from %s.%s to %s not found", tableName, sourceColumn, targetTable)
}

// verifyIndex checks that an index exists with the expected columns.
func verifyIndex(t *testing.T, s *schema.Schema, tableName, indexName string, expectedColumns []string) {
	t.Helper()

	table, ok := s.Table(tableName)
	if !ok {
		t.Fatalf("table %s not found", tableName)
		return
	}

	for _, idx := range table.Indexes {
		if idx.Name != indexName {
			continue
		}
		if len(idx.Columns) != len(expectedColumns) {
			t.Errorf("expected index %s on %v, got %v", indexName, expectedColumns, idx.Columns)
			return
		}
		for i, col := range expectedColumns {
			if idx.Columns[i] != col {
				t.Errorf("expected index %s on %v, got %v", indexName, expectedColumns, idx.Columns)
				return
			}
		}
		return
	}

	t.Errorf("expected index %s on %s table not found", indexName, tableName)
}
