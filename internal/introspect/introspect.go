// Package introspect reads a live PostgreSQL catalog and produces the same
// schema.Schema shape the parser produces from DDL text, so the differ can
// treat "current" and "desired" uniformly. All queries run inside a single
// REPEATABLE READ read-only transaction (SPEC_FULL §5.2/§6) so the
// resulting model is an internally consistent snapshot.
//
// Query shapes are grounded directly in the teacher's
// internal/db/postgres_extractor.go (information_schema joins for columns,
// primary keys and foreign keys; pg_catalog joins for indexes), extended
// with check-constraint and referential-action lookups the teacher's
// extractor does not need but this schema model requires.
package introspect

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tordrt/schemasync/internal/obslog"
	"github.com/tordrt/schemasync/internal/schema"
)

// Introspector reads the catalog of a single PostgreSQL schema (namespace).
type Introspector struct {
	pool       *pgxpool.Pool
	schemaName string
	log        *obslog.Logger
}

// New creates an Introspector bound to pool and the given schema (namespace)
// name, e.g. "public".
func New(pool *pgxpool.Pool, schemaName string, log *obslog.Logger) *Introspector {
	if log == nil {
		log = obslog.Noop()
	}
	return &Introspector{pool: pool, schemaName: schemaName, log: log}
}

// Introspect captures the current schema. If tables is non-empty, only
// those of them that exist as base tables in the schema are captured
// (names with no such table are left out); otherwise all base tables in
// the schema are.
func (in *Introspector) Introspect(ctx context.Context, tables []string) (*schema.Schema, error) {
	tx, err := in.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("introspect: begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	names, err := in.tableNames(ctx, tx, tables)
	if err != nil {
		return nil, fmt.Errorf("introspect: list tables: %w", err)
	}

	out := schema.New()
	for _, name := range names {
		t, err := in.extractTable(ctx, tx, name)
		if err != nil {
			return nil, fmt.Errorf("introspect: table %s: %w", name, err)
		}
		out.AddTable(*t)
	}

	in.log.Debug("introspect.snapshot", obslog.Fields{"schema": in.schemaName, "tables": len(names)})
	return out, nil
}

func (in *Introspector) tableNames(ctx context.Context, tx pgx.Tx, requested []string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	args := []any{in.schemaName}
	if len(requested) > 0 {
		query = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE' AND table_name = ANY($2)
		ORDER BY table_name
	`
		args = append(args, requested)
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (in *Introspector) extractTable(ctx context.Context, tx pgx.Tx, name string) (*schema.Table, error) {
	t := &schema.Table{Name: name}

	cols, err := in.extractColumns(ctx, tx, name)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	t.Columns = cols

	pk, err := in.extractPrimaryKey(ctx, tx, name)
	if err != nil {
		return nil, fmt.Errorf("primary key: %w", err)
	}
	for _, col := range pk {
		for i := range t.Columns {
			if t.Columns[i].Name == col {
				t.Columns[i].PrimaryKey = true
			}
		}
	}
	if len(pk) > 0 {
		t.Constraints = append(t.Constraints, schema.Constraint{
			Name:    name + "_pkey",
			Kind:    schema.PrimaryKey,
			Columns: pk,
		})
	}

	uniques, err := in.extractUniqueConstraints(ctx, tx, name)
	if err != nil {
		return nil, fmt.Errorf("unique constraints: %w", err)
	}
	t.Constraints = append(t.Constraints, uniques...)

	fks, err := in.extractForeignKeys(ctx, tx, name)
	if err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	t.Constraints = append(t.Constraints, fks...)

	checks, err := in.extractCheckConstraints(ctx, tx, name)
	if err != nil {
		return nil, fmt.Errorf("check constraints: %w", err)
	}
	t.Constraints = append(t.Constraints, checks...)

	indexes, err := in.extractIndexes(ctx, tx, name)
	if err != nil {
		return nil, fmt.Errorf("indexes: %w", err)
	}
	t.Indexes = indexes

	return t, nil
}

// normalizeType mirrors the parser's normalizeTypeToken so both producers
// agree on type text (SPEC_FULL §5.2, original §4.2).
func normalizeType(dataType, udtName string, charMaxLength *int, numericPrecision, numericScale *int) string {
	switch dataType {
	case "timestamp with time zone":
		return "TIMESTAMPTZ"
	case "timestamp without time zone":
		return "TIMESTAMP"
	case "time with time zone":
		return "TIMETZ"
	case "time without time zone":
		return "TIME"
	case "character varying":
		if charMaxLength != nil {
			return fmt.Sprintf("VARCHAR(%d)", *charMaxLength)
		}
		return "VARCHAR"
	case "character":
		if charMaxLength != nil {
			return fmt.Sprintf("CHAR(%d)", *charMaxLength)
		}
		return "CHAR"
	case "numeric":
		if numericPrecision != nil && numericScale != nil {
			return fmt.Sprintf("NUMERIC(%d,%d)", *numericPrecision, *numericScale)
		}
		if numericPrecision != nil {
			return fmt.Sprintf("NUMERIC(%d)", *numericPrecision)
		}
		return "NUMERIC"
	case "ARRAY":
		if len(udtName) > 0 && udtName[0] == '_' {
			return normalizeUDT(udtName[1:]) + "[]"
		}
		return "ARRAY"
	case "USER-DEFINED":
		return udtName
	default:
		return normalizeBase(dataType)
	}
}

func normalizeUDT(udt string) string {
	switch udt {
	case "int4":
		return "INTEGER"
	case "int8":
		return "BIGINT"
	case "int2":
		return "SMALLINT"
	case "float4":
		return "REAL"
	case "float8":
		return "DOUBLE PRECISION"
	case "bool":
		return "BOOLEAN"
	case "varchar":
		return "VARCHAR"
	default:
		return normalizeBase(udt)
	}
}

func normalizeBase(s string) string {
	switch s {
	case "integer", "int4":
		return "INTEGER"
	case "bigint", "int8":
		return "BIGINT"
	case "smallint", "int2":
		return "SMALLINT"
	case "boolean", "bool":
		return "BOOLEAN"
	case "text":
		return "TEXT"
	case "date":
		return "DATE"
	case "double precision":
		return "DOUBLE PRECISION"
	case "real":
		return "REAL"
	case "bytea":
		return "BYTEA"
	case "uuid":
		return "UUID"
	case "jsonb":
		return "JSONB"
	case "json":
		return "JSON"
	default:
		return s
	}
}

func (in *Introspector) extractColumns(ctx context.Context, tx pgx.Tx, table string) ([]schema.Column, error) {
	rows, err := tx.Query(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.udt_name,
			c.character_maximum_length,
			c.numeric_precision,
			c.numeric_scale,
			c.is_nullable,
			c.column_default,
			pgd.description
		FROM information_schema.columns c
		LEFT JOIN pg_catalog.pg_statio_all_tables st
			ON st.schemaname = c.table_schema AND st.relname = c.table_name
		LEFT JOIN pg_catalog.pg_description pgd
			ON pgd.objoid = st.relid AND pgd.objsubid = c.ordinal_position
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`, in.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var name, dataType, udt, nullable string
		var charMax, numPrec, numScale *int
		var def, comment *string

		if err := rows.Scan(&name, &dataType, &udt, &charMax, &numPrec, &numScale, &nullable, &def, &comment); err != nil {
			return nil, err
		}

		col := schema.Column{
			Name:     name,
			Type:     normalizeType(dataType, udt, charMax, numPrec, numScale),
			Nullable: nullable == "YES",
		}
		if def != nil {
			// column_default already carries a SERIAL column's identity
			// verbatim as "nextval('<seq>'::regclass)" — the same text the
			// parser synthesizes for a SERIAL-typed column — so no special
			// casing is needed here for the two to compare equal; it is
			// just another default expression as far as this query is
			// concerned.
			col.Default = schema.NormalizeDefault(*def)
		}
		if comment != nil {
			col.Comment = *comment
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (in *Introspector) extractPrimaryKey(ctx context.Context, tx pgx.Tx, table string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT kcu.column_name
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.table_constraints tc
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position
	`, in.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (in *Introspector) extractUniqueConstraints(ctx context.Context, tx pgx.Tx, table string) ([]schema.Constraint, error) {
	rows, err := tx.Query(ctx, `
		SELECT tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'UNIQUE'
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`, in.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := map[string]*schema.Constraint{}
	var order []string
	for rows.Next() {
		var name, col string
		if err := rows.Scan(&name, &col); err != nil {
			return nil, err
		}
		c, ok := byName[name]
		if !ok {
			c = &schema.Constraint{Name: name, Kind: schema.Unique}
			byName[name] = c
			order = append(order, name)
		}
		c.Columns = append(c.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []schema.Constraint
	for _, n := range order {
		out = append(out, *byName[n])
	}
	return out, nil
}

func (in *Introspector) extractForeignKeys(ctx context.Context, tx pgx.Tx, table string) ([]schema.Constraint, error) {
	rows, err := tx.Query(ctx, `
		SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS target_table,
			ccu.column_name AS target_column,
			CASE rc.update_rule WHEN 'NO ACTION' THEN '' ELSE rc.update_rule END,
			CASE rc.delete_rule WHEN 'NO ACTION' THEN '' ELSE rc.delete_rule END
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = tc.constraint_name AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`, in.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := map[string]*schema.Constraint{}
	var order []string
	for rows.Next() {
		var name, col, targetTable, targetCol, onUpdate, onDelete string
		if err := rows.Scan(&name, &col, &targetTable, &targetCol, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		c, ok := byName[name]
		if !ok {
			c = &schema.Constraint{
				Name: name,
				Kind: schema.ForeignKey,
				Reference: &schema.ForeignKeyRef{
					TargetTable: targetTable,
					OnUpdate:    onUpdate,
					OnDelete:    onDelete,
				},
			}
			byName[name] = c
			order = append(order, name)
		}
		c.Columns = append(c.Columns, col)
		c.Reference.TargetColumns = append(c.Reference.TargetColumns, targetCol)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []schema.Constraint
	for _, n := range order {
		out = append(out, *byName[n])
	}
	return out, nil
}

func (in *Introspector) extractCheckConstraints(ctx context.Context, tx pgx.Tx, table string) ([]schema.Constraint, error) {
	rows, err := tx.Query(ctx, `
		SELECT con.conname, pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE con.contype = 'c' AND n.nspname = $1 AND t.relname = $2
		ORDER BY con.conname
	`, in.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.Constraint
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, err
		}
		out = append(out, schema.Constraint{Name: name, Kind: schema.Check, CheckExpr: extractCheckExpr(def)})
	}
	return out, rows.Err()
}

// extractCheckExpr strips the "CHECK (...)" wrapper pg_get_constraintdef
// returns, leaving the bare expression text to match what the parser
// extracts from an authored CHECK (...) clause.
func extractCheckExpr(def string) string {
	const prefix = "CHECK ("
	if len(def) > len(prefix)+1 && def[:len(prefix)] == prefix && def[len(def)-1] == ')' {
		return def[len(prefix) : len(def)-1]
	}
	return def
}

func (in *Introspector) extractIndexes(ctx context.Context, tx pgx.Tx, table string) ([]schema.Index, error) {
	rows, err := tx.Query(ctx, `
		SELECT
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)) AS columns
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE t.relkind = 'r' AND n.nspname = $1 AND t.relname = $2 AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`, in.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.Index
	for rows.Next() {
		var idx schema.Index
		if err := rows.Scan(&idx.Name, &idx.IsUnique, &idx.Columns); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}
