package sqlsplit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementsSplitsOnTopLevelSemicolons(t *testing.T) {
	stmts := Statements(`CREATE TABLE a (id INT); CREATE TABLE b (id INT);`)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0].Text, "TABLE a")
	assert.Contains(t, stmts[1].Text, "TABLE b")
}

func TestStatementsIgnoresSemicolonInsideStringLiteral(t *testing.T) {
	stmts := Statements(`INSERT INTO t (note) VALUES ('a;b'); SELECT 1;`)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0].Text, "'a;b'")
}

func TestStatementsIgnoresSemicolonInsideParens(t *testing.T) {
	stmts := Statements(`CREATE TABLE t (id INT CHECK (id > 0 AND id < 100));`)
	require.Len(t, stmts, 1)
}

func TestStatementsStripsLineAndBlockComments(t *testing.T) {
	stmts := Statements("-- comment with ; inside\nSELECT 1; /* block ; comment */ SELECT 2;")
	require.Len(t, stmts, 2)
	assert.Equal(t, "SELECT 1;", stmts[0].Text)
	assert.Equal(t, "SELECT 2;", stmts[1].Text)
}

func TestStatementsHandlesTrailingStatementWithoutSemicolon(t *testing.T) {
	stmts := Statements(`SELECT 1`)
	require.Len(t, stmts, 1)
	assert.Equal(t, "SELECT 1", stmts[0].Text)
}

func TestTopLevelCommaItemsSplitsOnlyAtDepthZero(t *testing.T) {
	items := TopLevelCommaItems(`id BIGINT, name TEXT, FOREIGN KEY (a, b) REFERENCES t (a, b)`)
	require.Len(t, items, 3)
	assert.Equal(t, "id BIGINT", items[0])
	assert.Equal(t, "name TEXT", items[1])
	assert.Contains(t, items[2], "FOREIGN KEY")
}

func TestOutermostParensExtractsFirstBalancedGroup(t *testing.T) {
	body, offset, ok := OutermostParens(`CREATE TABLE t (id INT, CHECK (id > 0))`)
	require.True(t, ok)
	assert.Equal(t, "id INT, CHECK (id > 0)", body)
	assert.Greater(t, offset, 0)
}

func TestOutermostParensNoParensReturnsFalse(t *testing.T) {
	_, _, ok := OutermostParens(`ALTER TABLE t ADD COLUMN x INT`)
	assert.False(t, ok)
}
