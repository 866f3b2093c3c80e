package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDefault(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"strips simple cast", "'active'::text", "'active'"},
		{"strips type-array cast", "'{}'::text[]", "'{}'"},
		{"canonicalizes now", "NOW()", "now()"},
		{"canonicalizes current_timestamp", "CURRENT_TIMESTAMP", "now()"},
		{"collapses whitespace", "  0  ", "0"},
		{"leaves numeric literal alone", "42", "42"},
		{"leaves unrelated expression alone", "gen_random_uuid()", "gen_random_uuid()"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeDefault(tc.in))
		})
	}
}
