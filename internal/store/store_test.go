package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWritesAtomicallyAndStampsChecksum(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	m, err := s.Create("add_widgets", "CREATE TABLE widgets (id BIGINT);")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, "add_widgets", m.Name)
	assert.NotEmpty(t, m.Checksum)

	// no leftover .tmp file
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1_add_widgets.sql", entries[0].Name())

	content, err := os.ReadFile(m.Path)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE widgets (id BIGINT);\n", string(content))
}

func TestCreateRejectsInvalidName(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Create("AddWidgets", "CREATE TABLE widgets (id BIGINT);")
	assert.Error(t, err)
}

func TestNextVersionIncrementsAcrossCreates(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	m1, err := s.Create("first", "SELECT 1;")
	require.NoError(t, err)
	assert.Equal(t, 1, m1.Version)

	m2, err := s.Create("second", "SELECT 2;")
	require.NoError(t, err)
	assert.Equal(t, 2, m2.Version)
}

func TestNextVersionOnEmptyStoreIsOne(t *testing.T) {
	s := New(t.TempDir())
	v, err := s.NextVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestEnumerateWarnsOnMalformedFilenames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "NotAMigration.sql"), []byte("SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2_second.sql"), []byte("SELECT 2;"), 0o644))

	s := New(dir)
	versions, warnings, err := s.Enumerate()
	require.NoError(t, err)
	assert.Equal(t, []int{2}, versions)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "NotAMigration.sql")
}

func TestEnumerateOnMissingDirReturnsNoError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist"))
	versions, warnings, err := s.Enumerate()
	require.NoError(t, err)
	assert.Nil(t, versions)
	assert.Nil(t, warnings)
}

func TestLoadAllRejectsDuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_first.sql"), []byte("SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_second.sql"), []byte("SELECT 2;"), 0o644))

	s := New(dir)
	_, _, err := s.LoadAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claimed by both")
}

func TestLoadAllRejectsDuplicateName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_widgets.sql"), []byte("SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2_widgets.sql"), []byte("SELECT 2;"), 0o644))

	s := New(dir)
	_, _, err := s.LoadAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "widgets")
}

func TestLoadAllSortsByVersionAscending(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	_, err := s.Create("first", "SELECT 1;")
	require.NoError(t, err)
	_, err = s.Create("second", "SELECT 2;")
	require.NoError(t, err)

	migrations, warnings, err := s.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, migrations, 2)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, "second", migrations[1].Name)
}

func TestDownPathAndReadDown(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	m, err := s.Create("add_widgets", "CREATE TABLE widgets (id BIGINT);")
	require.NoError(t, err)

	_, exists := s.DownPath(*m)
	assert.False(t, exists)

	downPath := filepath.Join(dir, "1_add_widgets.down.sql")
	require.NoError(t, os.WriteFile(downPath, []byte("DROP TABLE widgets;"), 0o644))

	path, exists := s.DownPath(*m)
	assert.True(t, exists)
	assert.Equal(t, downPath, path)

	content, exists, err := s.ReadDown(*m)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "DROP TABLE widgets;", content)
}
