// Package sqlgen emits an ordered DDL script from a differ.Diff. The
// ordering is the principal correctness contract of the whole pipeline
// (original §4.4): dependency-respecting ordering avoids catalog errors
// without requiring the executor to reorder statements, and cyclic FK
// graphs are handled by creating all new tables first and adding their
// foreign keys in a dedicated final pass (SPEC_FULL §5.4, original §9).
package sqlgen

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tordrt/schemasync/internal/differ"
	"github.com/tordrt/schemasync/internal/schema"
)

// Generate renders diff as a single DDL script following the fixed
// six-step ordering from original §4.4. The leading comment header
// summarizes the diff for human review.
func Generate(d differ.Diff) string {
	var b strings.Builder

	writeHeader(&b, d)

	// Step 1: drop FKs referencing dropped tables/columns.
	earlyDropped := fksReferencingDropped(d)
	earlyDroppedSet := make(map[fkRef]bool, len(earlyDropped))
	for _, fk := range earlyDropped {
		earlyDroppedSet[fk] = true
		fmt.Fprintf(&b, "ALTER TABLE %s DROP CONSTRAINT %s;\n", quoteIdent(fk.table), quoteIdent(fk.name))
	}

	// Step 2: drop indexes on columns about to be dropped.
	for _, td := range sortedTableDiffs(d.ModifiedTables) {
		droppedCols := columnNameSet(td.DroppedColumns)
		for _, idx := range td.DroppedIndexes {
			if indexTouchesAny(idx, droppedCols) {
				fmt.Fprintf(&b, "DROP INDEX %s;\n", quoteIdent(idx.Name))
			}
		}
	}

	// Step 3: drop tables, reverse topological order of remaining FK edges.
	for _, t := range dropOrder(d.DroppedTables) {
		fmt.Fprintf(&b, "DROP TABLE %s;\n", quoteIdent(t.Name))
	}

	// Step 4: create new tables (without FKs), topologically... actually
	// no sort needed since FKs are deferred to step 6 (original §9).
	for _, t := range sortedTables(d.AddedTables) {
		writeCreateTable(&b, t)
	}

	// Step 5: per modified table, fixed sub-order.
	for _, td := range sortedTableDiffs(d.ModifiedTables) {
		writeTableAlterations(&b, td, earlyDroppedSet)
	}

	// Step 6: add FKs referencing newly created tables/columns.
	for _, t := range sortedTables(d.AddedTables) {
		for _, c := range t.Constraints {
			if c.Kind != schema.ForeignKey {
				continue
			}
			writeAddConstraint(&b, t.Name, c)
		}
	}

	return b.String()
}

func writeHeader(b *strings.Builder, d differ.Diff) {
	fmt.Fprintf(b, "-- generated migration\n")
	fmt.Fprintf(b, "-- tables added: %d, dropped: %d, modified: %d\n", len(d.AddedTables), len(d.DroppedTables), len(d.ModifiedTables))
	for _, w := range d.Warnings {
		fmt.Fprintf(b, "-- warning: %s\n", w)
	}
}

type fkRef struct {
	table string
	name  string
}

// fksReferencingDropped returns, deterministically ordered, the foreign
// keys on surviving/modified tables that must be dropped before their
// target table or column disappears.
func fksReferencingDropped(d differ.Diff) []fkRef {
	droppedTables := make(map[string]bool)
	for _, t := range d.DroppedTables {
		droppedTables[t.Name] = true
	}
	droppedCols := make(map[string]map[string]bool) // table -> col set
	for _, td := range d.ModifiedTables {
		set := make(map[string]bool)
		for _, c := range td.DroppedColumns {
			set[c.Name] = true
		}
		droppedCols[td.Name] = set
	}

	var refs []fkRef
	consider := func(ownerTable string, constraints []schema.Constraint) {
		for _, c := range constraints {
			if c.Kind != schema.ForeignKey || c.Reference == nil {
				continue
			}
			if droppedTables[c.Reference.TargetTable] {
				refs = append(refs, fkRef{table: ownerTable, name: c.Name})
				continue
			}
			if cols, ok := droppedCols[c.Reference.TargetTable]; ok {
				for _, tc := range c.Reference.TargetColumns {
					if cols[tc] {
						refs = append(refs, fkRef{table: ownerTable, name: c.Name})
						break
					}
				}
			}
		}
	}

	// A foreign key whose target table or column disappears must always
	// show up as a dropped constraint on the owning table (the desired
	// schema, by construction, cannot keep pointing at something gone),
	// so scanning DroppedConstraints here is sufficient and avoids
	// reordering work step 5 would otherwise attempt too late.
	for _, td := range sortedTableDiffs(d.ModifiedTables) {
		consider(td.Name, td.DroppedConstraints)
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].table != refs[j].table {
			return refs[i].table < refs[j].table
		}
		return refs[i].name < refs[j].name
	})
	return refs
}

func columnNameSet(cols []schema.Column) map[string]bool {
	m := make(map[string]bool, len(cols))
	for _, c := range cols {
		m[c.Name] = true
	}
	return m
}

func indexTouchesAny(idx schema.Index, cols map[string]bool) bool {
	for _, c := range idx.Columns {
		if cols[c] {
			return true
		}
	}
	return false
}

// dropOrder sorts dropped tables by reverse dependency: a table that is
// the target of another dropped table's FK drops after its dependents.
func dropOrder(tables []schema.Table) []schema.Table {
	byName := make(map[string]schema.Table)
	for _, t := range tables {
		byName[t.Name] = t
	}
	var names []string
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)

	visited := make(map[string]bool)
	var order []schema.Table
	var visit func(string)
	visit = func(n string) {
		if visited[n] {
			return
		}
		visited[n] = true
		t := byName[n]
		for _, c := range t.Constraints {
			if c.Kind == schema.ForeignKey && c.Reference != nil {
				if _, ok := byName[c.Reference.TargetTable]; ok {
					visit(c.Reference.TargetTable)
				}
			}
		}
		order = append(order, t)
	}
	for _, n := range names {
		visit(n)
	}
	// visit appends targets before their dependents; reverse so that
	// dependents are dropped first.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

func sortedTables(tables []schema.Table) []schema.Table {
	out := append([]schema.Table(nil), tables...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedTableDiffs(tds []differ.TableDiff) []differ.TableDiff {
	out := append([]differ.TableDiff(nil), tds...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func writeCreateTable(b *strings.Builder, t schema.Table) {
	for _, c := range t.Columns {
		writeOwnedSequence(b, t.Name, c, false)
	}

	fmt.Fprintf(b, "CREATE TABLE %s (\n", quoteIdent(t.Name))
	var lines []string
	for _, c := range t.Columns {
		lines = append(lines, "  "+columnDefSQL(c))
	}
	hasPKConstraint := false
	for _, c := range t.Constraints {
		if c.Kind == schema.PrimaryKey {
			hasPKConstraint = true
		}
		if c.Kind == schema.ForeignKey {
			continue // deferred to step 6
		}
		lines = append(lines, "  "+constraintDefSQL(c))
	}
	// Columns flagged PrimaryKey with no table-level PRIMARY KEY constraint
	// (an inline "id BIGINT PRIMARY KEY") still get their primary key.
	if pk := t.PrimaryKeyColumns(); len(pk) > 0 && !hasPKConstraint {
		lines = append(lines, fmt.Sprintf("  PRIMARY KEY (%s)", joinIdents(pk)))
	}
	fmt.Fprintf(b, "%s\n", strings.Join(lines, ",\n"))
	fmt.Fprintf(b, ");\n")

	for _, idx := range t.Indexes {
		fmt.Fprintf(b, "%s;\n", createIndexSQL(t.Name, idx))
	}

	for _, c := range t.Columns {
		writeOwnedSequence(b, t.Name, c, true)
	}
}

// nextvalDefaultRe recognizes the nextval() default Postgres assigns to a
// SERIAL/BIGSERIAL/SMALLSERIAL column, e.g. "nextval('orders_id_seq'::regclass)".
var nextvalDefaultRe = regexp.MustCompile(`^nextval\('([^']+)'(?:::regclass)?\)$`)

// serialSequenceName returns the sequence name referenced by a column
// default if it is a nextval() default, and whether it is one.
func serialSequenceName(def string) (string, bool) {
	m := nextvalDefaultRe.FindStringSubmatch(def)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// writeOwnedSequence emits the CREATE SEQUENCE (after=false) or the
// ALTER SEQUENCE ... OWNED BY (after=true) half of the sequence Postgres
// would create implicitly for a SERIAL-style column, since this generator
// emits the column as its expanded integer type plus an explicit nextval()
// default rather than the SERIAL pseudo-type itself.
func writeOwnedSequence(b *strings.Builder, table string, c schema.Column, after bool) {
	seq, ok := serialSequenceName(c.Default)
	if !ok {
		return
	}
	if !after {
		fmt.Fprintf(b, "CREATE SEQUENCE %s;\n", quoteIdent(seq))
		return
	}
	fmt.Fprintf(b, "ALTER SEQUENCE %s OWNED BY %s.%s;\n", quoteIdent(seq), quoteIdent(table), quoteIdent(c.Name))
}

func columnDefSQL(c schema.Column) string {
	parts := []string{quoteIdent(c.Name), c.Type}
	if !c.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if c.Default != "" {
		parts = append(parts, "DEFAULT "+c.Default)
	}
	return strings.Join(parts, " ")
}

func constraintDefSQL(c schema.Constraint) string {
	switch c.Kind {
	case schema.PrimaryKey:
		return fmt.Sprintf("PRIMARY KEY (%s)", joinIdents(c.Columns))
	case schema.Unique:
		return fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", quoteIdent(c.Name), joinIdents(c.Columns))
	case schema.Check:
		return fmt.Sprintf("CONSTRAINT %s CHECK (%s)", quoteIdent(c.Name), c.CheckExpr)
	default:
		return ""
	}
}

func createIndexSQL(table string, idx schema.Index) string {
	unique := ""
	if idx.IsUnique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, quoteIdent(idx.Name), quoteIdent(table), joinIdents(idx.Columns))
}

func writeAddConstraint(b *strings.Builder, table string, c schema.Constraint) {
	fmt.Fprintf(b, "ALTER TABLE %s ADD %s;\n", quoteIdent(table), foreignKeyDefSQL(c))
}

func foreignKeyDefSQL(c schema.Constraint) string {
	s := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		quoteIdent(c.Name), joinIdents(c.Columns), quoteIdent(c.Reference.TargetTable), joinIdents(c.Reference.TargetColumns))
	if c.Reference.OnUpdate != "" {
		s += " ON UPDATE " + c.Reference.OnUpdate
	}
	if c.Reference.OnDelete != "" {
		s += " ON DELETE " + c.Reference.OnDelete
	}
	return s
}

func writeTableAlterations(b *strings.Builder, td differ.TableDiff, skipDrop map[fkRef]bool) {
	table := quoteIdent(td.Name)

	for _, c := range sortedColumns(td.AddedColumns) {
		writeOwnedSequence(b, td.Name, c, false)
		fmt.Fprintf(b, "ALTER TABLE %s ADD COLUMN %s;\n", table, columnDefSQL(c))
		writeOwnedSequence(b, td.Name, c, true)
	}

	for _, ch := range sortedChanges(td.ModifiedColumns) {
		if ch.TypeChanged {
			fmt.Fprintf(b, "ALTER TABLE %s ALTER COLUMN %s TYPE %s;\n", table, quoteIdent(ch.Name), ch.New.Type)
		}
		if ch.DefChanged {
			if ch.New.Default == "" {
				fmt.Fprintf(b, "ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT;\n", table, quoteIdent(ch.Name))
			} else {
				fmt.Fprintf(b, "ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s;\n", table, quoteIdent(ch.Name), ch.New.Default)
			}
		}
		if ch.NullChanged {
			if ch.New.Nullable {
				fmt.Fprintf(b, "ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL;\n", table, quoteIdent(ch.Name))
			} else {
				fmt.Fprintf(b, "ALTER TABLE %s ALTER COLUMN %s SET NOT NULL;\n", table, quoteIdent(ch.Name))
			}
		}
	}

	for _, idx := range sortedIndexes(td.AddedIndexes) {
		fmt.Fprintf(b, "%s;\n", createIndexSQL(td.Name, idx))
	}

	// Step 6 only defers FKs belonging to brand-new tables (the cyclic-FK
	// workaround in original §9); FKs added onto an already-existing
	// table are part of this table's own "add new constraints" sub-step.
	for _, c := range sortedConstraints(td.AddedConstraints) {
		if c.Kind == schema.ForeignKey {
			continue
		}
		fmt.Fprintf(b, "ALTER TABLE %s ADD %s;\n", table, constraintDefSQL(c))
	}
	for _, c := range sortedConstraints(td.AddedConstraints) {
		if c.Kind == schema.ForeignKey {
			fmt.Fprintf(b, "ALTER TABLE %s ADD %s;\n", table, foreignKeyDefSQL(c))
		}
	}

	for _, c := range sortedConstraints(td.DroppedConstraints) {
		if skipDrop[fkRef{table: td.Name, name: c.Name}] {
			continue
		}
		fmt.Fprintf(b, "ALTER TABLE %s DROP CONSTRAINT %s;\n", table, quoteIdent(c.Name))
	}

	droppedCols := columnNameSet(td.DroppedColumns)
	for _, idx := range sortedIndexes(td.DroppedIndexes) {
		if indexTouchesAny(idx, droppedCols) {
			continue // already dropped in step 2
		}
		fmt.Fprintf(b, "DROP INDEX %s;\n", quoteIdent(idx.Name))
	}

	for _, c := range sortedColumns(td.DroppedColumns) {
		fmt.Fprintf(b, "ALTER TABLE %s DROP COLUMN %s;\n", table, quoteIdent(c.Name))
	}
}

func sortedColumns(cols []schema.Column) []schema.Column {
	out := append([]schema.Column(nil), cols...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedChanges(changes []differ.ColumnChange) []differ.ColumnChange {
	out := append([]differ.ColumnChange(nil), changes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedIndexes(idxs []schema.Index) []schema.Index {
	out := append([]schema.Index(nil), idxs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedConstraints(cs []schema.Constraint) []schema.Constraint {
	out := append([]schema.Constraint(nil), cs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func joinIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
