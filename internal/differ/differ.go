// Package differ computes the structured delta between a current and a
// desired schema.Schema. It is a pure function: (current, desired) → Diff,
// deterministic and side-effect free, so that equal inputs always produce
// an equal Diff including warning text and order (original §4.3's
// determinism requirement).
package differ

import (
	"fmt"
	"sort"

	"github.com/tordrt/schemasync/internal/schema"
)

// ColumnChange records the old and new values of a modified column so the
// generator can emit the correct ALTER.
type ColumnChange struct {
	Name        string
	Old, New    schema.Column
	TypeChanged bool
	NullChanged bool
	DefChanged  bool
	PKChanged   bool
}

// TableDiff is the delta for one table present in both schemas.
type TableDiff struct {
	Name string

	AddedColumns    []schema.Column
	DroppedColumns  []schema.Column
	ModifiedColumns []ColumnChange

	AddedIndexes   []schema.Index
	DroppedIndexes []schema.Index

	AddedConstraints   []schema.Constraint
	DroppedConstraints []schema.Constraint
}

// IsEmpty reports whether the table diff has no changes at all.
func (d TableDiff) IsEmpty() bool {
	return len(d.AddedColumns) == 0 && len(d.DroppedColumns) == 0 && len(d.ModifiedColumns) == 0 &&
		len(d.AddedIndexes) == 0 && len(d.DroppedIndexes) == 0 &&
		len(d.AddedConstraints) == 0 && len(d.DroppedConstraints) == 0
}

// Diff is the full delta between two schemas.
type Diff struct {
	AddedTables    []schema.Table
	DroppedTables  []schema.Table
	ModifiedTables []TableDiff
	Warnings       []string
}

// HasDestructiveChange reports whether applying the diff can discard data:
// a dropped table or a dropped column. Dropped indexes and constraints are
// not data-loss by themselves.
func (d Diff) HasDestructiveChange() bool {
	if len(d.DroppedTables) > 0 {
		return true
	}
	for _, t := range d.ModifiedTables {
		if len(t.DroppedColumns) > 0 {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the diff represents no changes whatsoever.
func (d Diff) IsEmpty() bool {
	if len(d.AddedTables) != 0 || len(d.DroppedTables) != 0 {
		return false
	}
	for _, t := range d.ModifiedTables {
		if !t.IsEmpty() {
			return false
		}
	}
	return true
}

// safeWideningPairs lists source→target pairs the differ treats as
// non-destructive widenings (original §4.3).
var safeWideningPairs = map[[2]string]bool{
	{"SMALLINT", "INTEGER"}: true,
	{"SMALLINT", "BIGINT"}:  true,
	{"INTEGER", "BIGINT"}:   true,
}

// diff computes the delta transforming current into desired, without the
// cross-table FK-uniqueness pass (see DiffSchemas for the full entry point).
func diff(current, desired *schema.Schema) Diff {
	var d Diff

	curNames := current.TableNames()
	desNames := desired.TableNames()

	curSet := toSet(curNames)
	desSet := toSet(desNames)

	for _, name := range desNames {
		if !curSet[name] {
			t, _ := desired.Table(name)
			d.AddedTables = append(d.AddedTables, *t)
		}
	}
	for _, name := range curNames {
		if !desSet[name] {
			t, _ := current.Table(name)
			d.DroppedTables = append(d.DroppedTables, *t)
			d.Warnings = append(d.Warnings, fmt.Sprintf("table %q is dropped", name))
		}
	}

	var common []string
	for _, name := range curNames {
		if desSet[name] {
			common = append(common, name)
		}
	}
	sort.Strings(common)

	for _, name := range common {
		ct, _ := current.Table(name)
		dt, _ := desired.Table(name)
		td, warnings := diffTable(*ct, *dt)
		d.Warnings = append(d.Warnings, warnings...)
		if !td.IsEmpty() {
			d.ModifiedTables = append(d.ModifiedTables, td)
		}
	}

	return d
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func diffTable(cur, des schema.Table) (TableDiff, []string) {
	td := TableDiff{Name: cur.Name}
	var warnings []string

	curCols := columnIndex(cur.Columns)
	desCols := columnIndex(des.Columns)

	var desColNames []string
	for _, c := range des.Columns {
		desColNames = append(desColNames, c.Name)
	}
	var curColNames []string
	for _, c := range cur.Columns {
		curColNames = append(curColNames, c.Name)
	}

	for _, name := range desColNames {
		if _, ok := curCols[name]; !ok {
			td.AddedColumns = append(td.AddedColumns, desCols[name])
		}
	}
	for _, name := range curColNames {
		if _, ok := desCols[name]; !ok {
			td.DroppedColumns = append(td.DroppedColumns, curCols[name])
			warnings = append(warnings, fmt.Sprintf("column %q.%q is dropped", cur.Name, name))
		}
	}

	sort.Strings(curColNames)
	for _, name := range curColNames {
		dc, ok := desCols[name]
		if !ok {
			continue
		}
		cc := curCols[name]
		change, changed := compareColumns(cur.Name, cc, dc)
		if changed {
			td.ModifiedColumns = append(td.ModifiedColumns, change)
			warnings = append(warnings, columnWarnings(cur.Name, change)...)
		}
	}

	idxAdded, idxDropped := diffIndexes(cur.Indexes, des.Indexes)
	td.AddedIndexes = idxAdded
	td.DroppedIndexes = idxDropped

	conAdded, conDropped := diffConstraints(cur.Name, cur.Constraints, des.Constraints, desCols)
	td.AddedConstraints = conAdded
	td.DroppedConstraints = conDropped

	return td, warnings
}

func columnIndex(cols []schema.Column) map[string]schema.Column {
	m := make(map[string]schema.Column, len(cols))
	for _, c := range cols {
		m[c.Name] = c
	}
	return m
}

func compareColumns(table string, cur, des schema.Column) (ColumnChange, bool) {
	change := ColumnChange{Name: cur.Name, Old: cur, New: des}

	if cur.Type != des.Type {
		change.TypeChanged = true
	}
	if cur.Nullable != des.Nullable {
		change.NullChanged = true
	}
	if cur.NormalizedDefault() != des.NormalizedDefault() {
		change.DefChanged = true
	}
	if cur.PrimaryKey != des.PrimaryKey {
		change.PKChanged = true
	}

	changed := change.TypeChanged || change.NullChanged || change.DefChanged || change.PKChanged
	return change, changed
}

func columnWarnings(table string, c ColumnChange) []string {
	var warnings []string
	if c.TypeChanged && !isSafeWidening(c.Old.Type, c.New.Type) {
		warnings = append(warnings, fmt.Sprintf("column %q.%q type change %s -> %s is not a recognized safe widening", table, c.Name, c.Old.Type, c.New.Type))
	}
	if c.NullChanged && c.Old.Nullable && !c.New.Nullable {
		warnings = append(warnings, fmt.Sprintf("column %q.%q becomes NOT NULL; table must be empty at apply time", table, c.Name))
	}
	return warnings
}

func isSafeWidening(from, to string) bool {
	if safeWideningPairs[[2]string{from, to}] {
		return true
	}
	if isTextWidening(from, to) {
		return true
	}
	if isNumericScaleWidening(from, to) {
		return true
	}
	return false
}

func isTextWidening(from, to string) bool {
	fb, fn, fok := parseSized(from, "VARCHAR")
	tb, tn, tok := parseSized(to, "VARCHAR")
	if fok && tok && fb == "VARCHAR" && tb == "VARCHAR" && tn > fn {
		return true
	}
	if fb == "VARCHAR" && to == "TEXT" {
		return true
	}
	return false
}

func parseSized(typ, base string) (string, int, bool) {
	if len(typ) <= len(base)+2 || typ[:len(base)] != base || typ[len(base)] != '(' {
		return typ, 0, false
	}
	var n int
	for _, r := range typ[len(base)+1:] {
		if r == ')' {
			break
		}
		if r < '0' || r > '9' {
			return typ, 0, false
		}
		n = n*10 + int(r-'0')
	}
	return base, n, true
}

func isNumericScaleWidening(from, to string) bool {
	return len(from) >= 7 && from[:7] == "NUMERIC" && len(to) >= 7 && to[:7] == "NUMERIC" && to != from && len(to) > len(from)
}

func diffIndexes(cur, des []schema.Index) (added, dropped []schema.Index) {
	curByName := make(map[string]schema.Index)
	for _, i := range cur {
		curByName[i.Name] = i
	}
	desByName := make(map[string]schema.Index)
	for _, i := range des {
		desByName[i.Name] = i
	}

	var desNames, curNames []string
	for _, i := range des {
		desNames = append(desNames, i.Name)
	}
	for _, i := range cur {
		curNames = append(curNames, i.Name)
	}
	sort.Strings(desNames)
	sort.Strings(curNames)

	for _, n := range desNames {
		if _, ok := curByName[n]; !ok {
			added = append(added, desByName[n])
		}
	}
	for _, n := range curNames {
		if _, ok := desByName[n]; !ok {
			dropped = append(dropped, curByName[n])
		}
	}
	return added, dropped
}

// diffConstraints computes added/dropped constraint sets for one table.
// FK-target-uniqueness warnings need visibility into the target table and
// are computed separately by DiffSchemas, which has both full schemas in
// scope.
func diffConstraints(table string, cur, des []schema.Constraint, desCols map[string]schema.Column) (added, dropped []schema.Constraint) {
	curByName := make(map[string]schema.Constraint)
	for _, c := range cur {
		curByName[c.Name] = c
	}
	desByName := make(map[string]schema.Constraint)
	for _, c := range des {
		desByName[c.Name] = c
	}

	var desNames, curNames []string
	for _, c := range des {
		desNames = append(desNames, c.Name)
	}
	for _, c := range cur {
		curNames = append(curNames, c.Name)
	}
	sort.Strings(desNames)
	sort.Strings(curNames)

	for _, n := range desNames {
		c, existsInCur := curByName[n]
		dc := desByName[n]
		if !existsInCur {
			added = append(added, dc)
			continue
		}
		if !constraintsEqual(c, dc) {
			dropped = append(dropped, c)
			added = append(added, dc)
		}
	}
	for _, n := range curNames {
		if _, ok := desByName[n]; !ok {
			dropped = append(dropped, curByName[n])
		}
	}

	return added, dropped
}

func constraintsEqual(a, b schema.Constraint) bool {
	if a.Kind != b.Kind {
		return false
	}
	if !stringSlicesEqual(a.Columns, b.Columns) {
		return false
	}
	switch a.Kind {
	case schema.ForeignKey:
		if a.Reference == nil || b.Reference == nil {
			return a.Reference == b.Reference
		}
		return a.Reference.TargetTable == b.Reference.TargetTable &&
			stringSlicesEqual(a.Reference.TargetColumns, b.Reference.TargetColumns) &&
			a.Reference.OnUpdate == b.Reference.OnUpdate &&
			a.Reference.OnDelete == b.Reference.OnDelete
	case schema.Check:
		return a.CheckExpr == b.CheckExpr
	default:
		return true
	}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DiffSchemas is the full entry point used by the engine: it runs diff and
// additionally checks FK-target-uniqueness across the whole desired schema
// (original §4.3's "referenced column is not unique" warning), which needs
// visibility into the target table that the per-table diffTable helper
// above does not have.
func DiffSchemas(current, desired *schema.Schema) Diff {
	d := diff(current, desired)

	checkFK := func(table string, c schema.Constraint) {
		if c.Kind != schema.ForeignKey || c.Reference == nil {
			return
		}
		target, ok := desired.Table(c.Reference.TargetTable)
		if !ok {
			return
		}
		if !targetColumnsAreUnique(target, c.Reference.TargetColumns) {
			d.Warnings = append(d.Warnings, fmt.Sprintf(
				"foreign key %q on %q references %q(%v) which is not unique",
				c.Name, table, c.Reference.TargetTable, c.Reference.TargetColumns))
		}
	}

	for _, t := range d.AddedTables {
		for _, c := range t.Constraints {
			checkFK(t.Name, c)
		}
	}
	for _, td := range d.ModifiedTables {
		for _, c := range td.AddedConstraints {
			checkFK(td.Name, c)
		}
	}

	return d
}

func targetColumnsAreUnique(t *schema.Table, cols []string) bool {
	if stringSlicesEqual(sortedCopy(t.PrimaryKeyColumns()), sortedCopy(cols)) {
		return true
	}
	for _, c := range t.Constraints {
		if c.Kind == schema.Unique && stringSlicesEqual(sortedCopy(c.Columns), sortedCopy(cols)) {
			return true
		}
	}
	return false
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
