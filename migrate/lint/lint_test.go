package lint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlward/sqlward/migrate/source"
)

func file(sqlText string) source.MigrationFile {
	return source.MigrationFile{
		Version:     "20240101000000",
		Description: "test",
		RawContent:  sqlText,
	}
}

func TestDefaultRules(t *testing.T) {
	tests := []struct {
		name      string
		sql       string
		wantRules []string
	}{
		{
			name:      "create table without guard",
			sql:       "CREATE TABLE words (id INTEGER PRIMARY KEY);",
			wantRules: []string{"create-table-if-not-exists"},
		},
		{
			name:      "create table with guard",
			sql:       "CREATE TABLE IF NOT EXISTS words (id INTEGER PRIMARY KEY);",
			wantRules: nil,
		},
		{
			name:      "create index without guard",
			sql:       "CREATE UNIQUE INDEX idx_words ON words (word);",
			wantRules: []string{"create-index-if-not-exists"},
		},
		{
			name:      "create index with guard",
			sql:       "CREATE INDEX IF NOT EXISTS idx_words ON words (word);",
			wantRules: nil,
		},
		{
			name:      "add column without guard",
			sql:       "ALTER TABLE words ADD COLUMN category TEXT;",
			wantRules: []string{"add-column-if-not-exists"},
		},
		{
			name:      "add column with guard",
			sql:       "ALTER TABLE words ADD COLUMN IF NOT EXISTS category TEXT;",
			wantRules: nil,
		},
		{
			name:      "drop table without guard",
			sql:       "DROP TABLE words;",
			wantRules: []string{"drop-if-exists"},
		},
		{
			name:      "drop table with guard",
			sql:       "DROP TABLE IF EXISTS words;",
			wantRules: nil,
		},
		{
			name:      "bare insert",
			sql:       "INSERT INTO words (word) VALUES ('hello');",
			wantRules: []string{"insert-on-conflict"},
		},
		{
			name:      "insert with on conflict",
			sql:       "INSERT INTO words (word) VALUES ('hello') ON CONFLICT DO NOTHING;",
			wantRules: nil,
		},
		{
			name:      "insert with mysql duplicate key guard",
			sql:       "INSERT INTO words (word) VALUES ('hello') ON DUPLICATE KEY UPDATE word = word;",
			wantRules: nil,
		},
		{
			name:      "transaction control",
			sql:       "BEGIN;\nCREATE TABLE IF NOT EXISTS words (id INTEGER);\nCOMMIT;",
			wantRules: []string{"no-transaction-control", "no-transaction-control"},
		},
		{
			name: "multiple findings across statements",
			sql:  "CREATE TABLE a (id INTEGER);\nDROP TABLE b;",
			wantRules: []string{
				"create-table-if-not-exists",
				"drop-if-exists",
			},
		},
		{
			name:      "commented-out statements are ignored",
			sql:       "-- DROP TABLE words;\nCREATE TABLE IF NOT EXISTS words (id INTEGER);",
			wantRules: nil,
		},
		{
			name:      "case insensitive",
			sql:       "create table words (id integer);",
			wantRules: []string{"create-table-if-not-exists"},
		},
	}

	rules := DefaultRules()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := Run(file(tt.sql), rules)
			var got []string
			for _, f := range findings {
				got = append(got, f.Rule)
			}
			assert.Equal(t, tt.wantRules, got)
		})
	}
}

func TestSeverities(t *testing.T) {
	rules := DefaultRules()

	findings := Run(file("DROP TABLE words;"), rules)
	require.Len(t, findings, 1)
	assert.Equal(t, Error, findings[0].Severity)
	assert.True(t, HasErrors(findings))

	findings = Run(file("CREATE TABLE words (id INTEGER);"), rules)
	require.Len(t, findings, 1)
	assert.Equal(t, Warning, findings[0].Severity)
	assert.False(t, HasErrors(findings))
}

func TestRunAll(t *testing.T) {
	files := []source.MigrationFile{
		{Version: "20240101000000", Description: "a", RawContent: "DROP TABLE x;"},
		{Version: "20240102000000", Description: "b", RawContent: "SELECT 1;"},
	}

	findings := RunAll(files, DefaultRules())
	require.Len(t, findings, 1)
	assert.Equal(t, "V20240101000000__a.sql", findings[0].File)
}

func TestFindingCarriesFileAndMessage(t *testing.T) {
	findings := Run(file("DROP TABLE words;"), DefaultRules())
	require.Len(t, findings, 1)
	assert.Equal(t, "V20240101000000__test.sql", findings[0].File)
	assert.NotEmpty(t, findings[0].Message)
}

func TestCatalogue(t *testing.T) {
	doc := Catalogue(DefaultRules())
	for _, r := range DefaultRules() {
		assert.True(t, strings.Contains(doc, r.Name), "catalogue missing rule %s", r.Name)
	}
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "warning", Warning.String())
	assert.Equal(t, "error", Error.String())
}
