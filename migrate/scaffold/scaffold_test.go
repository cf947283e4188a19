package scaffold

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScaffolder(t *testing.T, at time.Time) (*Scaffolder, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s := NewScaffolder(fs, "migrations")
	s.now = func() time.Time { return at }
	return s, fs
}

func TestCreateMigration(t *testing.T) {
	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	s, fs := newTestScaffolder(t, at)

	path, err := s.CreateMigration("Add Category to Words")
	require.NoError(t, err)
	assert.Equal(t, "migrations/V20240315103000__add_category_to_words.sql", path)

	content, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "add_category_to_words")
	assert.Contains(t, string(content), "IF NOT EXISTS")
}

func TestCreateMigrationRejectsEmptyDescription(t *testing.T) {
	s, _ := newTestScaffolder(t, time.Now())
	_, err := s.CreateMigration("!!!")
	assert.ErrorContains(t, err, "invalid migration description")
}

func TestCreateMigrationRefusesToOverwrite(t *testing.T) {
	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	s, _ := newTestScaffolder(t, at)

	_, err := s.CreateMigration("first")
	require.NoError(t, err)

	// Same second, same description: would collide.
	_, err = s.CreateMigration("first")
	assert.ErrorContains(t, err, "already exists")
}

func TestCreateRevert(t *testing.T) {
	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	s, fs := newTestScaffolder(t, at)

	original := "ALTER TABLE words ADD COLUMN category TEXT;\nCREATE INDEX IF NOT EXISTS idx_cat ON words (category);"
	require.NoError(t, afero.WriteFile(fs,
		"migrations/V20240101000000__add_category.sql", []byte(original), 0o644))

	path, err := s.CreateRevert("20240101000000")
	require.NoError(t, err)
	assert.Equal(t, "migrations/V20240315103000__revert_add_category.sql", path)

	content, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	body := string(content)

	assert.Contains(t, body, "Reverts V20240101000000__add_category.sql")
	assert.Contains(t, body, "-- ALTER TABLE words DROP COLUMN IF EXISTS category;")
	assert.Contains(t, body, "-- DROP INDEX IF EXISTS idx_cat;")
}

func TestCreateRevertForCreateTable(t *testing.T) {
	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	s, fs := newTestScaffolder(t, at)

	require.NoError(t, afero.WriteFile(fs,
		"migrations/V20240101000000__create_words.sql",
		[]byte("CREATE TABLE IF NOT EXISTS words (id INTEGER PRIMARY KEY);"), 0o644))

	path, err := s.CreateRevert("20240101000000")
	require.NoError(t, err)

	content, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "-- DROP TABLE IF EXISTS words;")
}

func TestCreateRevertWithNoInferrableInverse(t *testing.T) {
	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	s, fs := newTestScaffolder(t, at)

	require.NoError(t, afero.WriteFile(fs,
		"migrations/V20240101000000__tune.sql",
		[]byte("UPDATE words SET word = trim(word);"), 0o644))

	path, err := s.CreateRevert("20240101000000")
	require.NoError(t, err)

	content, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "write the revert by hand")
}

func TestCreateRevertUnknownVersion(t *testing.T) {
	s, fs := newTestScaffolder(t, time.Now())
	require.NoError(t, fs.MkdirAll("migrations", 0o755))

	_, err := s.CreateRevert("20990101000000")
	assert.ErrorContains(t, err, "no migration found")
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Add Category", "add_category"},
		{"  spaced  out  ", "spaced_out"},
		{"already_snake", "already_snake"},
		{"Mixed-Case.Name", "mixed_case_name"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}
