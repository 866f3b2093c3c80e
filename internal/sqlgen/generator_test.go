package sqlgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemasync/internal/differ"
	"github.com/tordrt/schemasync/internal/schema"
)

func TestGenerateCreateTable(t *testing.T) {
	d := differ.Diff{
		AddedTables: []schema.Table{
			{
				Name: "widgets",
				Columns: []schema.Column{
					{Name: "id", Type: "BIGINT", Nullable: false},
					{Name: "label", Type: "TEXT", Nullable: true, Default: "'unnamed'"},
				},
				Constraints: []schema.Constraint{
					{Kind: schema.PrimaryKey, Columns: []string{"id"}},
				},
				Indexes: []schema.Index{
					{Name: "widgets_label_idx", Columns: []string{"label"}},
				},
			},
		},
	}

	ddl := Generate(d)
	assert.Contains(t, ddl, `CREATE TABLE "widgets"`)
	assert.Contains(t, ddl, `"id" BIGINT NOT NULL`)
	assert.Contains(t, ddl, `DEFAULT 'unnamed'`)
	assert.Contains(t, ddl, "PRIMARY KEY (\"id\")")
	assert.Contains(t, ddl, `CREATE INDEX "widgets_label_idx" ON "widgets" ("label")`)
}

func TestGenerateOrderingDropsFKBeforeTargetTable(t *testing.T) {
	// orders.user_id FK to users, and users is being dropped: the FK drop
	// (step 1) must precede the table drop (step 3).
	d := differ.Diff{
		DroppedTables: []schema.Table{{Name: "users"}},
		ModifiedTables: []differ.TableDiff{
			{
				Name: "orders",
				DroppedConstraints: []schema.Constraint{
					{
						Name: "orders_user_id_fkey",
						Kind: schema.ForeignKey,
						Reference: &schema.ForeignKeyRef{
							TargetTable: "users",
						},
					},
				},
			},
		},
	}

	ddl := Generate(d)
	fkDropIdx := strings.Index(ddl, `DROP CONSTRAINT "orders_user_id_fkey"`)
	tableDropIdx := strings.Index(ddl, `DROP TABLE "users"`)
	require.GreaterOrEqual(t, fkDropIdx, 0)
	require.GreaterOrEqual(t, tableDropIdx, 0)
	assert.Less(t, fkDropIdx, tableDropIdx)

	// step 5's own drop-constraint pass must not repeat the already-issued
	// drop for the same constraint.
	assert.Equal(t, 1, strings.Count(ddl, `DROP CONSTRAINT "orders_user_id_fkey"`))
}

func TestGenerateDefersNewTableForeignKeysToFinalPass(t *testing.T) {
	// Two brand-new tables with a cyclic FK relationship: both CREATE
	// TABLE statements must appear before either ALTER TABLE ... ADD
	// CONSTRAINT ... FOREIGN KEY statement.
	d := differ.Diff{
		AddedTables: []schema.Table{
			{
				Name:    "a",
				Columns: []schema.Column{{Name: "id", Type: "BIGINT"}, {Name: "b_id", Type: "BIGINT"}},
				Constraints: []schema.Constraint{
					{Name: "a_b_id_fkey", Kind: schema.ForeignKey, Columns: []string{"b_id"}, Reference: &schema.ForeignKeyRef{TargetTable: "b", TargetColumns: []string{"id"}}},
				},
			},
			{
				Name:    "b",
				Columns: []schema.Column{{Name: "id", Type: "BIGINT"}, {Name: "a_id", Type: "BIGINT"}},
				Constraints: []schema.Constraint{
					{Name: "b_a_id_fkey", Kind: schema.ForeignKey, Columns: []string{"a_id"}, Reference: &schema.ForeignKeyRef{TargetTable: "a", TargetColumns: []string{"id"}}},
				},
			},
		},
	}

	ddl := Generate(d)
	createAIdx := strings.Index(ddl, `CREATE TABLE "a"`)
	createBIdx := strings.Index(ddl, `CREATE TABLE "b"`)
	fkAIdx := strings.Index(ddl, `ADD CONSTRAINT "a_b_id_fkey"`)
	fkBIdx := strings.Index(ddl, `ADD CONSTRAINT "b_a_id_fkey"`)

	require.GreaterOrEqual(t, createAIdx, 0)
	require.GreaterOrEqual(t, createBIdx, 0)
	require.GreaterOrEqual(t, fkAIdx, 0)
	require.GreaterOrEqual(t, fkBIdx, 0)
	assert.Less(t, createAIdx, fkAIdx)
	assert.Less(t, createBIdx, fkBIdx)
	assert.Less(t, createAIdx, fkBIdx)
	assert.Less(t, createBIdx, fkAIdx)
}

func TestGenerateCreateTableWithSerialColumnOwnsSequence(t *testing.T) {
	d := differ.Diff{
		AddedTables: []schema.Table{
			{
				Name: "orders",
				Columns: []schema.Column{
					{Name: "id", Type: "INTEGER", Nullable: false, Default: "nextval('orders_id_seq'::regclass)", PrimaryKey: true},
				},
				Constraints: []schema.Constraint{
					{Kind: schema.PrimaryKey, Columns: []string{"id"}},
				},
			},
		},
	}

	ddl := Generate(d)
	createSeqIdx := strings.Index(ddl, `CREATE SEQUENCE "orders_id_seq";`)
	createTableIdx := strings.Index(ddl, `CREATE TABLE "orders"`)
	alterOwnedIdx := strings.Index(ddl, `ALTER SEQUENCE "orders_id_seq" OWNED BY "orders"."id";`)

	require.GreaterOrEqual(t, createSeqIdx, 0)
	require.GreaterOrEqual(t, createTableIdx, 0)
	require.GreaterOrEqual(t, alterOwnedIdx, 0)
	assert.Less(t, createSeqIdx, createTableIdx)
	assert.Less(t, createTableIdx, alterOwnedIdx)
	assert.Contains(t, ddl, `DEFAULT nextval('orders_id_seq'::regclass)`)
}

func TestGenerateAddColumnWithSerialDefaultOwnsSequence(t *testing.T) {
	d := differ.Diff{
		ModifiedTables: []differ.TableDiff{
			{
				Name: "orders",
				AddedColumns: []schema.Column{
					{Name: "seq_id", Type: "INTEGER", Nullable: false, Default: "nextval('orders_seq_id_seq'::regclass)"},
				},
			},
		},
	}

	ddl := Generate(d)
	assert.Contains(t, ddl, `CREATE SEQUENCE "orders_seq_id_seq";`)
	assert.Contains(t, ddl, `ALTER TABLE "orders" ADD COLUMN "seq_id" INTEGER NOT NULL DEFAULT nextval('orders_seq_id_seq'::regclass);`)
	assert.Contains(t, ddl, `ALTER SEQUENCE "orders_seq_id_seq" OWNED BY "orders"."seq_id";`)
}

func TestGenerateIsDeterministic(t *testing.T) {
	d := differ.Diff{
		AddedTables: []schema.Table{
			{Name: "z", Columns: []schema.Column{{Name: "id", Type: "BIGINT"}}},
			{Name: "a", Columns: []schema.Column{{Name: "id", Type: "BIGINT"}}},
		},
	}
	assert.Equal(t, Generate(d), Generate(d))
}

func TestGenerateTableAlterationOrder(t *testing.T) {
	d := differ.Diff{
		ModifiedTables: []differ.TableDiff{
			{
				Name:           "widgets",
				AddedColumns:   []schema.Column{{Name: "note", Type: "TEXT", Nullable: true}},
				DroppedColumns: []schema.Column{{Name: "legacy", Type: "TEXT", Nullable: true}},
			},
		},
	}

	ddl := Generate(d)
	addIdx := strings.Index(ddl, `ADD COLUMN "note"`)
	dropIdx := strings.Index(ddl, `DROP COLUMN "legacy"`)
	require.GreaterOrEqual(t, addIdx, 0)
	require.GreaterOrEqual(t, dropIdx, 0)
	assert.Less(t, addIdx, dropIdx)
}
