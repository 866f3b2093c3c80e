// Package sqlsplit breaks a block of SQL text into individual statements
// and, within a statement, into top-level comma-separated items. Both the
// DDL parser (internal/parser) and the executor's per-statement PREPARE
// validation (internal/executor) need the exact same notion of "where does
// one statement end and the next begin" — splitting is quote- and
// paren-depth-aware so that semicolons or commas inside string literals or
// parenthesized expressions never produce a false boundary. Sharing one
// implementation is what lets the two components agree on this (see
// SPEC_FULL §5.1).
package sqlsplit

import "strings"

// Statements splits s on top-level ';' terminators, skipping over quoted
// strings, double-quoted identifiers, balanced parentheses, line comments
// ("-- ...") and block comments ("/* ... */"). The trailing empty
// statement after the final terminator is dropped. Each returned statement
// carries the byte offset in s where its span begins, used by the parser to
// pin error locations.
type Statement struct {
	Text string
	// Offset is the byte offset in the original input just past the
	// previous statement's ';' (0 for the first statement). Text is
	// trimmed, so leading whitespace or comments put its first rune later.
	Offset int
}

func Statements(s string) []Statement {
	var out []Statement
	var buf strings.Builder
	start := 0
	depth := 0
	i := 0
	n := len(s)

	flush := func(end int) {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			out = append(out, Statement{Text: text, Offset: start})
		}
		buf.Reset()
	}

	for i < n {
		c := s[i]

		switch {
		case c == '-' && i+1 < n && s[i+1] == '-':
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				i = n
			} else {
				i += j
			}
			continue
		case c == '/' && i+1 < n && s[i+1] == '*':
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				i = n
			} else {
				i = i + 2 + j + 2
			}
			continue
		case c == '\'' || c == '"':
			quote := c
			buf.WriteByte(c)
			i++
			for i < n {
				if s[i] == quote {
					// Doubled quote is an escaped literal quote.
					if i+1 < n && s[i+1] == quote {
						buf.WriteByte(s[i])
						buf.WriteByte(s[i+1])
						i += 2
						continue
					}
					buf.WriteByte(s[i])
					i++
					break
				}
				buf.WriteByte(s[i])
				i++
			}
			continue
		case c == '(':
			depth++
			buf.WriteByte(c)
			i++
			continue
		case c == ')':
			if depth > 0 {
				depth--
			}
			buf.WriteByte(c)
			i++
			continue
		case c == ';' && depth == 0:
			buf.WriteByte(c)
			flush(i + 1)
			start = i + 1
			i++
			continue
		default:
			buf.WriteByte(c)
			i++
			continue
		}
	}

	// Trailing content with no terminating ';' still counts as a statement
	// (the generator always appends one, but authored schema files may not).
	if strings.TrimSpace(buf.String()) != "" {
		out = append(out, Statement{Text: strings.TrimSpace(buf.String()), Offset: start})
	}

	return out
}

// TopLevelCommaItems splits body (typically the text between a statement's
// outermost parentheses) on commas that occur at paren depth 0, respecting
// quoted strings the same way Statements does. Used by the parser to break
// a CREATE TABLE body into column/constraint items.
func TopLevelCommaItems(body string) []string {
	var items []string
	var buf strings.Builder
	depth := 0
	i := 0
	n := len(body)

	for i < n {
		c := body[i]
		switch {
		case c == '\'' || c == '"':
			quote := c
			buf.WriteByte(c)
			i++
			for i < n {
				if body[i] == quote {
					if i+1 < n && body[i+1] == quote {
						buf.WriteByte(body[i])
						buf.WriteByte(body[i+1])
						i += 2
						continue
					}
					buf.WriteByte(body[i])
					i++
					break
				}
				buf.WriteByte(body[i])
				i++
			}
			continue
		case c == '(':
			depth++
			buf.WriteByte(c)
			i++
			continue
		case c == ')':
			if depth > 0 {
				depth--
			}
			buf.WriteByte(c)
			i++
			continue
		case c == ',' && depth == 0:
			items = append(items, strings.TrimSpace(buf.String()))
			buf.Reset()
			i++
			continue
		default:
			buf.WriteByte(c)
			i++
			continue
		}
	}
	if strings.TrimSpace(buf.String()) != "" {
		items = append(items, strings.TrimSpace(buf.String()))
	}
	return items
}

// OutermostParens returns the substring between the first top-level '('
// and its matching ')' in s, along with the byte offset just past the
// opening paren within s. Used to extract a CREATE TABLE's column list
// body. ok is false if no balanced top-level parenthesized group is found.
func OutermostParens(s string) (body string, offset int, ok bool) {
	start := strings.IndexByte(s, '(')
	if start < 0 {
		return "", 0, false
	}
	depth := 0
	inQuote := byte(0)
	for i := start; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[start+1 : i], start + 1, true
			}
		}
	}
	return "", 0, false
}
