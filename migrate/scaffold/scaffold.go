// Package scaffold generates new migration files, including revert
// skeletons for previously authored migrations.
package scaffold

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/sqlward/sqlward/migrate/source"
)

var descriptionPattern = regexp.MustCompile(`^[a-z0-9]+(?:_[a-z0-9]+)*$`)

// Scaffolder writes new migration files into the migrations directory.
type Scaffolder struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewScaffolder creates a scaffolder writing into dir.
func NewScaffolder(fs afero.Fs, dir string) *Scaffolder {
	return &Scaffolder{fs: fs, dir: dir, now: time.Now}
}

// CreateMigration writes an empty timestamped migration file and returns its
// path. The description is normalized to lowercase snake_case.
func (s *Scaffolder) CreateMigration(description string) (string, error) {
	description = Normalize(description)
	if !descriptionPattern.MatchString(description) {
		return "", fmt.Errorf("invalid migration description %q: use lowercase words separated by underscores", description)
	}

	body := fmt.Sprintf("-- %s\n-- Write idempotent SQL: guard DDL with IF NOT EXISTS / IF EXISTS\n-- and inserts with ON CONFLICT. Do not include BEGIN/COMMIT.\n\n", description)
	return s.write(description, body)
}

// CreateRevert locates the migration with the given version and scaffolds a
// fresh migration named revert_<original description>, pre-populated with
// commented inverse-operation hints. The generated file is never executed
// automatically; the author completes and reviews it first.
func (s *Scaffolder) CreateRevert(version string) (string, error) {
	original, err := source.NewScanner(s.fs, s.dir).Find(version)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- Reverts V%s__%s.sql\n", original.Version, original.Description)
	b.WriteString("-- Review and complete the hints below before applying.\n\n")
	hints := revertHints(original.RawContent)
	if len(hints) == 0 {
		b.WriteString("-- No inverse operations could be inferred; write the revert by hand.\n")
	}
	for _, hint := range hints {
		b.WriteString("-- " + hint + "\n")
	}

	return s.write("revert_"+original.Description, b.String())
}

func (s *Scaffolder) write(description, body string) (string, error) {
	version := s.now().UTC().Format("20060102150405")
	path := filepath.Join(s.dir, fmt.Sprintf("V%s__%s.sql", version, description))

	if exists, err := afero.Exists(s.fs, path); err != nil {
		return "", err
	} else if exists {
		return "", fmt.Errorf("migration file already exists: %s", path)
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migrations directory %s: %w", s.dir, err)
	}
	if err := afero.WriteFile(s.fs, path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("failed to write migration file: %w", err)
	}
	return path, nil
}

// Normalize lowercases a free-form description and joins words with
// underscores so "Add Category" becomes "add_category".
func Normalize(description string) string {
	description = strings.ToLower(strings.TrimSpace(description))
	description = regexp.MustCompile(`[^a-z0-9]+`).ReplaceAllString(description, "_")
	return strings.Trim(description, "_")
}

var (
	addColumnHint   = regexp.MustCompile(`(?is)\bALTER\s+TABLE\s+(\S+)\s+ADD\s+COLUMN\s+(?:IF\s+NOT\s+EXISTS\s+)?(\S+)`)
	createTableHint = regexp.MustCompile(`(?is)\bCREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(\S+)`)
	createIndexHint = regexp.MustCompile(`(?is)\bCREATE\s+(?:UNIQUE\s+)?INDEX\s+(?:IF\s+NOT\s+EXISTS\s+)?(\S+)`)
	insertHint      = regexp.MustCompile(`(?is)\bINSERT\s+INTO\s+(\S+)`)
	dropColumnHint  = regexp.MustCompile(`(?is)\bALTER\s+TABLE\s+(\S+)\s+DROP\s+COLUMN\s+(?:IF\s+EXISTS\s+)?(\S+)`)
)

// revertHints derives inverse-operation suggestions from simple pattern
// matching over the original SQL. Purely advisory.
func revertHints(sqlText string) []string {
	var hints []string
	for _, m := range addColumnHint.FindAllStringSubmatch(sqlText, -1) {
		hints = append(hints, fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s;", m[1], trimIdent(m[2])))
	}
	for _, m := range dropColumnHint.FindAllStringSubmatch(sqlText, -1) {
		hints = append(hints, fmt.Sprintf("Re-add column %s.%s with its original definition.", m[1], trimIdent(m[2])))
	}
	for _, m := range createTableHint.FindAllStringSubmatch(sqlText, -1) {
		hints = append(hints, fmt.Sprintf("DROP TABLE IF EXISTS %s;", trimIdent(m[1])))
	}
	for _, m := range createIndexHint.FindAllStringSubmatch(sqlText, -1) {
		hints = append(hints, fmt.Sprintf("DROP INDEX IF EXISTS %s;", trimIdent(m[1])))
	}
	for _, m := range insertHint.FindAllStringSubmatch(sqlText, -1) {
		hints = append(hints, fmt.Sprintf("DELETE FROM %s WHERE <the rows inserted by the original migration>;", trimIdent(m[1])))
	}
	return hints
}

func trimIdent(ident string) string {
	return strings.TrimRight(ident, "(;,")
}
