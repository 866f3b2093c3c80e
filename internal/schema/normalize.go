package schema

import (
	"regexp"
	"strings"
)

// castSuffixRe strips a trailing PostgreSQL cast, e.g. "'x'::text" -> "'x'".
// Applied repeatedly since the catalog can return nested casts.
var castSuffixRe = regexp.MustCompile(`::[\w" .\[\]]+$`)

var lowercaseFuncNames = map[string]string{
	"NOW()":                "now()",
	"CURRENT_TIMESTAMP":    "now()",
	"CURRENT_TIMESTAMP()":  "now()",
	"CURRENT_DATE":         "current_date",
	"CURRENT_TIME":         "current_time",
}

// NormalizeDefault implements the default-value comparison pipeline from
// SPEC_FULL §10 / original §9: strip redundant trailing casts, collapse
// whitespace, and canonicalize a handful of well-known keyword functions so
// that the introspector's "'x'::text" and an author's "'x'" compare equal,
// and "CURRENT_TIMESTAMP" compares equal to "now()".
func NormalizeDefault(expr string) string {
	e := strings.TrimSpace(expr)
	for {
		m := castSuffixRe.FindString(e)
		if m == "" {
			break
		}
		e = strings.TrimSpace(strings.TrimSuffix(e, m))
	}
	e = strings.Join(strings.Fields(e), " ")
	if canon, ok := lowercaseFuncNames[strings.ToUpper(e)]; ok {
		return canon
	}
	return e
}
