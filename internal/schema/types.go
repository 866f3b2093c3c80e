// Package schema defines the canonical in-memory representation of a
// PostgreSQL schema shared by the parser, the introspector, the differ and
// the SQL generator. A Schema built by any producer is directly comparable
// with one built by another: both must agree on table/column ordering
// rules and type normalization so that (current, desired) pairs can be
// diffed without producer-specific quirks leaking through.
package schema

import (
	"sort"
	"strings"
	"time"
)

// ConstraintKind enumerates the supported constraint kinds.
type ConstraintKind string

const (
	PrimaryKey ConstraintKind = "primary_key"
	ForeignKey ConstraintKind = "foreign_key"
	Unique     ConstraintKind = "unique"
	Check      ConstraintKind = "check"
)

// Schema is a set of tables captured at a point in time. Table order is
// irrelevant for equality but Tables() always returns tables sorted by
// name so two structurally equal schemas compare equal regardless of the
// order their producer discovered them in.
type Schema struct {
	Version    string
	CapturedAt time.Time
	tables     map[string]*Table
}

// New returns an empty schema ready to receive tables via AddTable.
func New() *Schema {
	return &Schema{tables: make(map[string]*Table)}
}

// AddTable inserts or replaces a table by name.
func (s *Schema) AddTable(t Table) {
	if s.tables == nil {
		s.tables = make(map[string]*Table)
	}
	s.tables[t.Name] = &t
}

// Table looks up a table by name.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Tables returns all tables, ordered by name ascending.
func (s *Schema) Tables() []Table {
	out := make([]Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TableNames returns table names sorted ascending.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of tables in the schema.
func (s *Schema) Len() int { return len(s.tables) }

// Table represents a database table: an ordered list of columns plus
// unordered sets of indexes and constraints.
type Table struct {
	Name        string
	Columns     []Column
	Indexes     []Index
	Constraints []Constraint
}

// Column finds a column by name within the table.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// PrimaryKeyColumns returns the column names participating in the table's
// primary key, in declaration order.
func (t *Table) PrimaryKeyColumns() []string {
	var out []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			out = append(out, c.Name)
		}
	}
	return out
}

// Column represents a single table column.
type Column struct {
	Name       string
	Type       string // normalized uppercase token sequence, e.g. "VARCHAR(255)"
	Nullable   bool
	PrimaryKey bool
	Default    string // normalized default expression text, "" if none
	Comment    string // informational only; never diffed (see SPEC_FULL §4)
}

// NormalizedDefault collapses whitespace in Default for comparison. Callers
// that need equality semantics should prefer this over comparing Default
// directly, since two producers may differ only in incidental spacing.
func (c Column) NormalizedDefault() string {
	return strings.Join(strings.Fields(c.Default), " ")
}

// Index represents a non-primary-key index.
type Index struct {
	Name     string
	Columns  []string
	IsUnique bool
}

// ForeignKeyRef describes the target side of a foreign key constraint.
type ForeignKeyRef struct {
	TargetTable   string
	TargetColumns []string
	OnUpdate      string // "", "CASCADE", "RESTRICT", "SET NULL", "SET DEFAULT", "NO ACTION"
	OnDelete      string
}

// Constraint represents a table-level constraint.
type Constraint struct {
	Name      string
	Kind      ConstraintKind
	Columns   []string
	Reference *ForeignKeyRef // non-nil only for Kind == ForeignKey
	CheckExpr string         // non-empty only for Kind == Check
}
