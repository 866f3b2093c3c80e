package differ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemasync/internal/schema"
)

func schemaWithTables(tables ...schema.Table) *schema.Schema {
	s := schema.New()
	for _, t := range tables {
		s.AddTable(t)
	}
	return s
}

func TestDiffSchemasAddedTable(t *testing.T) {
	current := schema.New()
	desired := schemaWithTables(schema.Table{
		Name: "widgets",
		Columns: []schema.Column{
			{Name: "id", Type: "BIGINT", PrimaryKey: true, Nullable: false},
		},
	})

	d := DiffSchemas(current, desired)
	require.Len(t, d.AddedTables, 1)
	assert.Equal(t, "widgets", d.AddedTables[0].Name)
	assert.False(t, d.IsEmpty())
}

func TestDiffSchemasDroppedTableWarns(t *testing.T) {
	current := schemaWithTables(schema.Table{Name: "widgets"})
	desired := schema.New()

	d := DiffSchemas(current, desired)
	require.Len(t, d.DroppedTables, 1)
	require.Len(t, d.Warnings, 1)
	assert.Contains(t, d.Warnings[0], "widgets")
	assert.True(t, d.HasDestructiveChange())
}

func TestDiffSchemasIdenticalSchemasAreEmpty(t *testing.T) {
	table := schema.Table{
		Name: "t",
		Columns: []schema.Column{
			{Name: "id", Type: "BIGINT", PrimaryKey: true},
			{Name: "label", Type: "TEXT", Nullable: true},
		},
	}
	current := schemaWithTables(table)
	desired := schemaWithTables(table)

	d := DiffSchemas(current, desired)
	assert.True(t, d.IsEmpty())
}

func TestDiffColumnAddedAndDropped(t *testing.T) {
	current := schemaWithTables(schema.Table{
		Name: "t",
		Columns: []schema.Column{
			{Name: "id", Type: "BIGINT", PrimaryKey: true},
			{Name: "legacy", Type: "TEXT", Nullable: true},
		},
	})
	desired := schemaWithTables(schema.Table{
		Name: "t",
		Columns: []schema.Column{
			{Name: "id", Type: "BIGINT", PrimaryKey: true},
			{Name: "label", Type: "TEXT", Nullable: true},
		},
	})

	d := DiffSchemas(current, desired)
	require.Len(t, d.ModifiedTables, 1)
	td := d.ModifiedTables[0]
	require.Len(t, td.AddedColumns, 1)
	assert.Equal(t, "label", td.AddedColumns[0].Name)
	require.Len(t, td.DroppedColumns, 1)
	assert.Equal(t, "legacy", td.DroppedColumns[0].Name)
	assert.True(t, d.HasDestructiveChange())
}

func TestDiffColumnSafeWideningProducesNoWarning(t *testing.T) {
	current := schemaWithTables(schema.Table{
		Name:    "t",
		Columns: []schema.Column{{Name: "id", Type: "SMALLINT"}},
	})
	desired := schemaWithTables(schema.Table{
		Name:    "t",
		Columns: []schema.Column{{Name: "id", Type: "INTEGER"}},
	})

	d := DiffSchemas(current, desired)
	require.Len(t, d.ModifiedTables, 1)
	require.Len(t, d.ModifiedTables[0].ModifiedColumns, 1)
	assert.Empty(t, d.Warnings)
}

func TestDiffColumnUnsafeTypeChangeWarns(t *testing.T) {
	current := schemaWithTables(schema.Table{
		Name:    "t",
		Columns: []schema.Column{{Name: "id", Type: "TEXT"}},
	})
	desired := schemaWithTables(schema.Table{
		Name:    "t",
		Columns: []schema.Column{{Name: "id", Type: "INTEGER"}},
	})

	d := DiffSchemas(current, desired)
	require.Len(t, d.Warnings, 1)
	assert.Contains(t, d.Warnings[0], "not a recognized safe widening")
}

func TestDiffColumnBecomingNotNullWarns(t *testing.T) {
	current := schemaWithTables(schema.Table{
		Name:    "t",
		Columns: []schema.Column{{Name: "note", Type: "TEXT", Nullable: true}},
	})
	desired := schemaWithTables(schema.Table{
		Name:    "t",
		Columns: []schema.Column{{Name: "note", Type: "TEXT", Nullable: false}},
	})

	d := DiffSchemas(current, desired)
	require.Len(t, d.Warnings, 1)
	assert.Contains(t, d.Warnings[0], "NOT NULL")
}

func TestDiffForeignKeyTargetNotUniqueWarns(t *testing.T) {
	current := schema.New()
	desired := schemaWithTables(
		schema.Table{
			Name:    "users",
			Columns: []schema.Column{{Name: "id", Type: "BIGINT"}, {Name: "email", Type: "TEXT"}},
		},
		schema.Table{
			Name:    "orders",
			Columns: []schema.Column{{Name: "id", Type: "BIGINT", PrimaryKey: true}, {Name: "user_email", Type: "TEXT"}},
			Constraints: []schema.Constraint{
				{
					Name:    "orders_user_email_fkey",
					Kind:    schema.ForeignKey,
					Columns: []string{"user_email"},
					Reference: &schema.ForeignKeyRef{
						TargetTable:   "users",
						TargetColumns: []string{"email"},
					},
				},
			},
		},
	)

	d := DiffSchemas(current, desired)
	require.NotEmpty(t, d.Warnings)
	assert.Contains(t, d.Warnings[0], "not unique")
}

func TestDiffSerialColumnRoundTripIsEmpty(t *testing.T) {
	// Simulates a SERIAL column as the parser produces it (desired) against
	// the same column as the introspector would read it back off a live
	// database (current): both carry the same nextval() default and NOT
	// NULL, so the diff must be empty.
	makeOrders := func() schema.Table {
		return schema.Table{
			Name: "orders",
			Columns: []schema.Column{
				{Name: "id", Type: "INTEGER", Nullable: false, Default: "nextval('orders_id_seq'::regclass)", PrimaryKey: true},
			},
		}
	}
	current := schemaWithTables(makeOrders())
	desired := schemaWithTables(makeOrders())

	d := DiffSchemas(current, desired)
	assert.True(t, d.IsEmpty())
}

func TestDiffSchemasIsDeterministic(t *testing.T) {
	current := schema.New()
	desired := schemaWithTables(
		schema.Table{Name: "b", Columns: []schema.Column{{Name: "id", Type: "BIGINT"}}},
		schema.Table{Name: "a", Columns: []schema.Column{{Name: "id", Type: "BIGINT"}}},
	)

	d1 := DiffSchemas(current, desired)
	d2 := DiffSchemas(current, desired)
	require.Equal(t, len(d1.AddedTables), len(d2.AddedTables))
	for i := range d1.AddedTables {
		assert.Equal(t, d1.AddedTables[i].Name, d2.AddedTables[i].Name)
	}
}

