// Package source discovers migration files on disk and orders them by
// version.
package source

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/sqlward/sqlward/migrate/checksum"
)

// Migration filenames carry a 14-digit UTC timestamp (YYYYMMDDHHMMSS) and a
// lowercase snake_case description: V20240101000000__create_words.sql
var filenamePattern = regexp.MustCompile(`^V(\d{14})__([a-z0-9]+(?:_[a-z0-9]+)*)\.sql$`)

// MigrationFile is a single versioned SQL file as found on disk. It is
// immutable once authored; Checksum is derived from the raw content.
type MigrationFile struct {
	Version     string
	Description string
	Path        string
	RawContent  string
	Checksum    string
}

// Name returns the canonical filename for the migration.
func (f MigrationFile) Name() string {
	return fmt.Sprintf("V%s__%s.sql", f.Version, f.Description)
}

// InvalidFilenameError reports a .sql file that does not follow the
// V<timestamp>__<description>.sql convention.
type InvalidFilenameError struct {
	Filename string
}

func (e *InvalidFilenameError) Error() string {
	return fmt.Sprintf("invalid migration filename %q: expected V<14-digit timestamp>__<snake_case description>.sql", e.Filename)
}

// DuplicateVersionError reports two migration files sharing a version.
type DuplicateVersionError struct {
	Version string
	First   string
	Second  string
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("duplicate migration version %s: %s and %s", e.Version, e.First, e.Second)
}

// Scanner discovers migration files in a single directory. It has no side
// effects and re-reads the directory on every List call.
type Scanner struct {
	fs  afero.Fs
	dir string
}

// NewScanner creates a scanner over the given filesystem and directory.
func NewScanner(fs afero.Fs, dir string) *Scanner {
	return &Scanner{fs: fs, dir: dir}
}

// Dir returns the directory the scanner reads from.
func (s *Scanner) Dir() string {
	return s.dir
}

// List returns all migration files in the directory sorted ascending by
// version. Non-.sql entries and subdirectories are ignored so the directory
// can hold a README or .env alongside the migrations. A .sql file with a
// malformed name fails the scan, as does a version shared by two files.
func (s *Scanner) List() ([]MigrationFile, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", s.dir, err)
	}

	seen := make(map[string]string)
	var files []MigrationFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		m := filenamePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			return nil, &InvalidFilenameError{Filename: entry.Name()}
		}
		version, description := m[1], m[2]

		if prev, ok := seen[version]; ok {
			return nil, &DuplicateVersionError{Version: version, First: prev, Second: entry.Name()}
		}
		seen[version] = entry.Name()

		path := filepath.Join(s.dir, entry.Name())
		content, err := afero.ReadFile(s.fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", path, err)
		}

		files = append(files, MigrationFile{
			Version:     version,
			Description: description,
			Path:        path,
			RawContent:  string(content),
			Checksum:    checksum.Compute(content),
		})
	}

	// Versions are fixed-width digit strings, so lexical order is
	// chronological order.
	sort.Slice(files, func(i, j int) bool {
		return files[i].Version < files[j].Version
	})

	return files, nil
}

// Find returns the migration file with the given version.
func (s *Scanner) Find(version string) (MigrationFile, error) {
	files, err := s.List()
	if err != nil {
		return MigrationFile{}, err
	}
	for _, f := range files {
		if f.Version == version {
			return f, nil
		}
	}
	return MigrationFile{}, fmt.Errorf("no migration found for version %s in %s", version, s.dir)
}
