package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaTablesSortedByName(t *testing.T) {
	s := New()
	s.AddTable(Table{Name: "zebra"})
	s.AddTable(Table{Name: "alpha"})
	s.AddTable(Table{Name: "mango"})

	names := s.TableNames()
	assert.Equal(t, []string{"alpha", "mango", "zebra"}, names)

	tables := s.Tables()
	assert.Equal(t, "alpha", tables[0].Name)
	assert.Equal(t, "zebra", tables[2].Name)
}

func TestTablePrimaryKeyColumns(t *testing.T) {
	table := Table{
		Columns: []Column{
			{Name: "tenant_id", PrimaryKey: true},
			{Name: "id", PrimaryKey: true},
			{Name: "label"},
		},
	}
	assert.Equal(t, []string{"tenant_id", "id"}, table.PrimaryKeyColumns())
}

func TestColumnNormalizedDefaultCollapsesWhitespace(t *testing.T) {
	a := Column{Default: "now()"}
	b := Column{Default: "  now()  "}
	assert.Equal(t, a.NormalizedDefault(), b.NormalizedDefault())
}

func TestSchemaAddTableReplacesByName(t *testing.T) {
	s := New()
	s.AddTable(Table{Name: "t", Columns: []Column{{Name: "a"}}})
	s.AddTable(Table{Name: "t", Columns: []Column{{Name: "b"}}})

	table, ok := s.Table("t")
	assert.True(t, ok)
	assert.Len(t, table.Columns, 1)
	assert.Equal(t, "b", table.Columns[0].Name)
	assert.Equal(t, 1, s.Len())
}
