// Package parser turns a DDL text into a *schema.Schema for the supported
// subset of PostgreSQL's data definition language: CREATE TABLE bodies
// (columns, table-level constraints) and standalone CREATE [UNIQUE] INDEX
// statements. Of a column's inline modifiers only NOT NULL, PRIMARY KEY and
// DEFAULT are recorded; inline UNIQUE, REFERENCES and CHECK are ignored and
// produce no constraint. It is deliberately forgiving — its job
// is to understand an authored schema file, not to validate arbitrary SQL
// (see SPEC_FULL §5.1) — so unsupported statements are skipped with a
// warning rather than rejected outright, while a malformed CREATE TABLE is
// a hard parse error pinned to its statement index and byte offset.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tordrt/schemasync/internal/schema"
	"github.com/tordrt/schemasync/internal/sqlsplit"
)

// Error is a parse error pinned to the statement that produced it.
type Error struct {
	StatementIndex int
	ByteOffset     int
	Message        string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error in statement %d at offset %d: %s", e.StatementIndex, e.ByteOffset, e.Message)
}

// Result is the outcome of Parse: the schema built so far plus any
// non-fatal warnings (unsupported statements skipped, orphan indexes
// dropped).
type Result struct {
	Schema   *schema.Schema
	Warnings []string
}

var (
	createTableRe = regexp.MustCompile(`(?is)^CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?("?[\w.]+"?)\s*\(`)
	createIndexRe = regexp.MustCompile(`(?is)^CREATE\s+(UNIQUE\s+)?INDEX\s+(?:IF\s+NOT\s+EXISTS\s+)?("?[\w]+"?)\s+ON\s+("?[\w.]+"?)\s*\(([^)]*)\)`)

	constraintKeywordRe = regexp.MustCompile(`(?i)^(PRIMARY\s+KEY|FOREIGN\s+KEY|UNIQUE|CHECK|CONSTRAINT)\b`)
)

// Parse parses ddl and returns the resulting schema model and any warnings.
// A malformed CREATE TABLE produces a fatal *Error; unsupported statements
// (ALTER, CREATE TYPE, etc.) and orphan indexes only produce warnings.
func Parse(ddl string) (*Result, error) {
	res := &Result{Schema: schema.New()}
	stmts := sqlsplit.Statements(ddl)

	type pendingIndex struct {
		table string
		idx   schema.Index
	}
	var pendingIndexes []pendingIndex

	for i, stmt := range stmts {
		text := strings.TrimSpace(stmt.Text)
		if text == "" {
			continue
		}

		switch {
		case createTableRe.MatchString(text):
			table, err := parseCreateTable(text)
			if err != nil {
				return nil, &Error{StatementIndex: i, ByteOffset: stmt.Offset, Message: err.Error()}
			}
			res.Schema.AddTable(*table)

		case createIndexRe.MatchString(text):
			m := createIndexRe.FindStringSubmatch(text)
			unique := strings.TrimSpace(m[1]) != ""
			idxName := unquote(m[2])
			tableName := unquote(m[3])
			cols := splitIdentList(m[4])
			pendingIndexes = append(pendingIndexes, pendingIndex{
				table: tableName,
				idx:   schema.Index{Name: idxName, Columns: cols, IsUnique: unique},
			})

		default:
			leading := leadingKeyword(text)
			res.Warnings = append(res.Warnings, fmt.Sprintf("statement %d: unsupported DDL %q, skipped", i, leading))
		}
	}

	for _, pi := range pendingIndexes {
		t, ok := res.Schema.Table(pi.table)
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("index %q targets undefined table %q, dropped", pi.idx.Name, pi.table))
			continue
		}
		t.Indexes = append(t.Indexes, pi.idx)
		res.Schema.AddTable(*t)
	}

	return res, nil
}

func leadingKeyword(stmt string) string {
	fields := strings.Fields(stmt)
	n := len(fields)
	if n > 2 {
		n = 2
	}
	return strings.ToUpper(strings.Join(fields[:n], " "))
}

func parseCreateTable(stmt string) (*schema.Table, error) {
	m := createTableRe.FindStringSubmatch(stmt)
	if m == nil {
		return nil, fmt.Errorf("malformed CREATE TABLE")
	}
	tableName := unquote(m[1])

	body, _, ok := sqlsplit.OutermostParens(stmt)
	if !ok {
		return nil, fmt.Errorf("unbalanced parentheses in CREATE TABLE %s", tableName)
	}

	items := sqlsplit.TopLevelCommaItems(body)
	table := &schema.Table{Name: tableName}

	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if constraintKeywordRe.MatchString(item) {
			con, pkCols, err := parseConstraintItem(item)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", tableName, err)
			}
			if con != nil {
				table.Constraints = append(table.Constraints, *con)
			}
			for _, pk := range pkCols {
				markPrimaryKey(table, pk)
			}
			continue
		}
		col, err := parseColumnItem(item, tableName)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", tableName, err)
		}
		table.Columns = append(table.Columns, *col)
	}

	return table, nil
}

func markPrimaryKey(t *schema.Table, colName string) {
	for i := range t.Columns {
		if t.Columns[i].Name == colName {
			t.Columns[i].PrimaryKey = true
			return
		}
	}
}

var (
	notNullRe    = regexp.MustCompile(`(?i)\bNOT\s+NULL\b`)
	nullRe       = regexp.MustCompile(`(?i)\bNULL\b`)
	pkRe         = regexp.MustCompile(`(?i)\bPRIMARY\s+KEY\b`)
	uniqueRe     = regexp.MustCompile(`(?i)\bUNIQUE\b`)
	defaultRe    = regexp.MustCompile(`(?is)\bDEFAULT\s+(.+?)(?:\s+(?:NOT\s+NULL|NULL|PRIMARY\s+KEY|UNIQUE|REFERENCES|CHECK)\b|$)`)
	referencesRe = regexp.MustCompile(`(?is)\bREFERENCES\s+("?[\w.]+"?)\s*\(\s*("?[\w]+"?)\s*\)`)
)

func parseColumnItem(item, tableName string) (*schema.Column, error) {
	fields := splitFirstN(item, 2)
	if len(fields) < 1 {
		return nil, fmt.Errorf("empty column definition")
	}
	col := &schema.Column{Name: unquote(fields[0])}

	rest := ""
	if len(fields) == 2 {
		rest = fields[1]
	}

	typ, modifiers := extractType(rest)
	serial := serialSequenceDefault(typ, tableName, col.Name)
	col.Type = normalizeTypeToken(typ)

	col.Nullable = true
	if notNullRe.MatchString(modifiers) {
		col.Nullable = false
	}
	if pkRe.MatchString(modifiers) {
		col.PrimaryKey = true
		col.Nullable = false
	}
	_ = uniqueRe // inline UNIQUE, REFERENCES and CHECK modifiers are not recorded; only table-level items produce constraints

	if m := defaultRe.FindStringSubmatch(modifiers); m != nil {
		col.Default = schema.NormalizeDefault(m[1])
	} else if serial != "" {
		// SERIAL/BIGSERIAL/SMALLSERIAL are pseudo-types: Postgres expands
		// them into the base integer type plus an owned sequence and a
		// nextval() default, and marks the column NOT NULL. Generate the
		// same default text here, using Postgres's own default sequence
		// naming convention ("<table>_<column>_seq"), so an introspected
		// live serial column and a parsed desired one normalize to the
		// same Default and the diff between them is empty.
		col.Default = serial
		col.Nullable = false
	}

	return col, nil
}

// serialSequenceDefault returns the nextval() default text Postgres would
// assign to a SERIAL/BIGSERIAL/SMALLSERIAL column named col on table, or ""
// if typ is not one of those pseudo-types.
func serialSequenceDefault(typ, table, col string) string {
	switch strings.ToUpper(strings.TrimSpace(typ)) {
	case "SERIAL", "BIGSERIAL", "SMALLSERIAL":
		return fmt.Sprintf("nextval('%s_%s_seq'::regclass)", table, col)
	default:
		return ""
	}
}

// extractType pulls the leading type token (including a parenthesized
// size/precision suffix, e.g. "VARCHAR(255)") off rest and returns it
// along with the remaining modifier text.
func extractType(rest string) (typ string, modifiers string) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", ""
	}

	// Type name: one or two identifier words (e.g. "DOUBLE PRECISION",
	// "CHARACTER VARYING") optionally followed by "(...)".
	i := 0
	n := len(rest)
	wordEnd := func(pos int) int {
		for pos < n && !isSpace(rest[pos]) && rest[pos] != '(' {
			pos++
		}
		return pos
	}

	end := wordEnd(i)
	typ = rest[i:end]
	i = end

	// Greedily consume a second word if it's a known multi-word type
	// continuation.
	twoWord := map[string]bool{
		"double": true, "character": true, "timestamp": true, "time": true,
	}
	if twoWord[strings.ToLower(typ)] {
		j := i
		for j < n && isSpace(rest[j]) {
			j++
		}
		wend := wordEnd(j)
		if wend > j {
			word := strings.ToLower(rest[j:wend])
			if word == "precision" || word == "varying" || word == "with" || word == "without" || word == "zone" {
				// consume through to the end of this qualifier phrase
				typ = rest[i-len(typ) : wend]
				i = wend
				if word == "with" || word == "without" {
					// also consume "time zone"
					for i < n && isSpace(rest[i]) {
						i++
					}
					wend2 := wordEnd(i)
					if strings.ToLower(rest[i:wend2]) == "time" {
						i = wend2
						for i < n && isSpace(rest[i]) {
							i++
						}
						wend3 := wordEnd(i)
						if strings.ToLower(rest[i:wend3]) == "zone" {
							typ = typ + " time zone"
							i = wend3
						}
					}
				}
			}
		}
	}

	for i < n && isSpace(rest[i]) {
		i++
	}
	if i < n && rest[i] == '(' {
		depth := 0
		start := i
		for i < n {
			if rest[i] == '(' {
				depth++
			} else if rest[i] == ')' {
				depth--
				i++
				if depth == 0 {
					break
				}
				continue
			}
			i++
		}
		typ += rest[start:i]
	}

	modifiers = strings.TrimSpace(rest[i:])
	return typ, modifiers
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

// normalizeTypeToken uppercases the base type and canonical-izes known
// aliases, matching the rule the introspector applies on the catalog side
// (SPEC_FULL §5.2 / original §4.2) so that parser and introspector output
// agree bit-for-bit on type text.
func normalizeTypeToken(typ string) string {
	typ = strings.TrimSpace(typ)
	base := typ
	params := ""
	if idx := strings.IndexByte(typ, '('); idx >= 0 {
		base = typ[:idx]
		params = typ[idx:]
	}
	base = strings.ToUpper(strings.Join(strings.Fields(base), " "))

	switch base {
	case "INT", "INT4":
		base = "INTEGER"
	case "INT8":
		base = "BIGINT"
	case "INT2":
		base = "SMALLINT"
	case "BOOL":
		base = "BOOLEAN"
	case "SERIAL":
		return "INTEGER"
	case "BIGSERIAL":
		return "BIGINT"
	case "SMALLSERIAL":
		return "SMALLINT"
	case "CHARACTER VARYING":
		base = "VARCHAR"
	case "DOUBLE PRECISION":
		base = "DOUBLE PRECISION"
	case "TIMESTAMP WITH TIME ZONE":
		base = "TIMESTAMPTZ"
	case "TIMESTAMP WITHOUT TIME ZONE":
		base = "TIMESTAMP"
	case "TIME WITHOUT TIME ZONE":
		base = "TIME"
	case "TIME WITH TIME ZONE":
		base = "TIMETZ"
	}

	return base + params
}

// parseConstraintItem parses a table-level constraint definition item.
// For a PRIMARY KEY (col, ...) item it returns the participating column
// names in pkCols so the caller can flip those columns' PrimaryKey flag,
// matching §4.1's "does not mutate column records except ... primary-key
// flag" rule.
func parseConstraintItem(item string) (con *schema.Constraint, pkCols []string, err error) {
	item = strings.TrimSpace(item)
	upper := strings.ToUpper(item)
	name := ""

	if strings.HasPrefix(upper, "CONSTRAINT") {
		rest := strings.TrimSpace(item[len("CONSTRAINT"):])
		fields := splitFirstN(rest, 2)
		if len(fields) < 2 {
			return nil, nil, fmt.Errorf("malformed CONSTRAINT clause")
		}
		name = unquote(fields[0])
		item = fields[1]
		upper = strings.ToUpper(item)
	}

	switch {
	case strings.HasPrefix(upper, "PRIMARY KEY") || strings.HasPrefix(upper, "PRIMARY  KEY"):
		body, _, ok := sqlsplit.OutermostParens(item)
		if !ok {
			return nil, nil, fmt.Errorf("malformed PRIMARY KEY constraint")
		}
		cols := splitIdentList(body)
		return &schema.Constraint{Name: name, Kind: schema.PrimaryKey, Columns: cols}, cols, nil

	case strings.HasPrefix(upper, "UNIQUE"):
		body, _, ok := sqlsplit.OutermostParens(item)
		if !ok {
			return nil, nil, fmt.Errorf("malformed UNIQUE constraint")
		}
		cols := splitIdentList(body)
		return &schema.Constraint{Name: name, Kind: schema.Unique, Columns: cols}, nil, nil

	case strings.HasPrefix(upper, "FOREIGN KEY"):
		body, afterBody, ok := sqlsplit.OutermostParens(item)
		if !ok {
			return nil, nil, fmt.Errorf("malformed FOREIGN KEY constraint")
		}
		cols := splitIdentList(body)
		rest := item[afterBody:]
		m := referencesRe.FindStringSubmatch(rest)
		if m == nil {
			return nil, nil, fmt.Errorf("FOREIGN KEY missing REFERENCES clause")
		}
		ref := &schema.ForeignKeyRef{
			TargetTable:   unquote(m[1]),
			TargetColumns: []string{unquote(m[2])},
		}
		if strings.Contains(strings.ToUpper(rest), "ON UPDATE") {
			ref.OnUpdate = extractAction(rest, "ON UPDATE")
		}
		if strings.Contains(strings.ToUpper(rest), "ON DELETE") {
			ref.OnDelete = extractAction(rest, "ON DELETE")
		}
		return &schema.Constraint{Name: name, Kind: schema.ForeignKey, Columns: cols, Reference: ref}, nil, nil

	case strings.HasPrefix(upper, "CHECK"):
		body, _, ok := sqlsplit.OutermostParens(item)
		if !ok {
			return nil, nil, fmt.Errorf("malformed CHECK constraint")
		}
		return &schema.Constraint{Name: name, Kind: schema.Check, CheckExpr: strings.TrimSpace(body)}, nil, nil
	}

	return nil, nil, fmt.Errorf("unrecognized constraint clause %q", item)
}

var actionRe = regexp.MustCompile(`(?i)(CASCADE|RESTRICT|SET\s+NULL|SET\s+DEFAULT|NO\s+ACTION)`)

func extractAction(s, keyword string) string {
	idx := strings.Index(strings.ToUpper(s), strings.ToUpper(keyword))
	if idx < 0 {
		return ""
	}
	tail := s[idx+len(keyword):]
	m := actionRe.FindString(tail)
	return strings.ToUpper(strings.Join(strings.Fields(m), " "))
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func splitIdentList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, unquote(part))
		}
	}
	return out
}

// splitFirstN splits s on whitespace into at most n fields, with the last
// field retaining any remaining unsplit text (so type/modifier text after
// the column name is not itself tokenized here).
func splitFirstN(s string, n int) []string {
	s = strings.TrimSpace(s)
	var out []string
	for len(out) < n-1 {
		idx := strings.IndexFunc(s, func(r rune) bool { return isSpace(byte(r)) })
		if idx < 0 {
			break
		}
		out = append(out, s[:idx])
		s = strings.TrimSpace(s[idx:])
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
