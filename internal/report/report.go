// Package report renders a schema.Schema as compact human-readable text,
// for the CLI's inspect subcommand. Adapted from the teacher's
// internal/formatter text formatter, generalized from the old
// Relations/EnumValues/IsUnique column shape to this project's
// Constraint-based model.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/schemasync/internal/schema"
)

// SchemaWriter writes a schema.Schema in compact text format.
type SchemaWriter struct {
	w io.Writer
}

// NewSchemaWriter returns a SchemaWriter writing to w.
func NewSchemaWriter(w io.Writer) *SchemaWriter {
	return &SchemaWriter{w: w}
}

// Write renders every table in s, in name order.
func (r *SchemaWriter) Write(s *schema.Schema) error {
	for i, table := range s.Tables() {
		if i > 0 {
			fmt.Fprintln(r.w)
		}
		r.writeTable(table)
	}
	return nil
}

func (r *SchemaWriter) writeTable(table schema.Table) {
	pkStr := ""
	if pk := table.PrimaryKeyColumns(); len(pk) > 0 {
		pkStr = fmt.Sprintf(" (PK: %s)", strings.Join(pk, ", "))
	}
	fmt.Fprintf(r.w, "TABLE %s%s\n", table.Name, pkStr)

	for _, col := range table.Columns {
		fmt.Fprintf(r.w, "  %s\n", formatColumn(col))
	}

	var fks []schema.Constraint
	for _, c := range table.Constraints {
		if c.Kind == schema.ForeignKey && c.Reference != nil {
			fks = append(fks, c)
		}
	}
	if len(fks) > 0 {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, "  FOREIGN KEYS:")
		for _, fk := range fks {
			fmt.Fprintf(r.w, "    %s -> %s.%s\n", strings.Join(fk.Columns, ", "), fk.Reference.TargetTable, strings.Join(fk.Reference.TargetColumns, ", "))
		}
	}

	if len(table.Indexes) > 0 {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, "  INDEXES:")
		for _, idx := range table.Indexes {
			unique := ""
			if idx.IsUnique {
				unique = " UNIQUE"
			}
			fmt.Fprintf(r.w, "    %s (%s)%s\n", idx.Name, strings.Join(idx.Columns, ", "), unique)
		}
	}
}

func formatColumn(col schema.Column) string {
	parts := []string{col.Name + ":", col.Type}
	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if col.PrimaryKey {
		parts = append(parts, "PK")
	}
	if col.Default != "" {
		parts = append(parts, fmt.Sprintf("DEFAULT %s", col.Default))
	}
	return strings.Join(parts, " ")
}
