// Package history reads and writes the applied-migration ledger.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TableName is the ledger table created in the target database.
const TableName = "_sqlward_migrations"

// Entry is one row of the ledger: a migration that was applied successfully.
// The ledger is append-only; rows are never updated or deleted by normal
// operation.
type Entry struct {
	Version   string
	Checksum  string
	AppliedAt time.Time
}

// Manager provides access to the ledger table. SQL placeholders and DDL are
// switched per provider.
type Manager struct {
	db       *sql.DB
	provider string
}

// NewManager creates a ledger manager for the given database handle.
func NewManager(db *sql.DB, provider string) *Manager {
	return &Manager{db: db, provider: provider}
}

// EnsureTable idempotently creates the ledger table. The create may race
// with the first-ever run of a concurrent invocation, so an "already exists"
// failure is tolerated when the table is present afterwards.
func (m *Manager) EnsureTable(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, m.createTableSQL()); err != nil {
		exists, checkErr := m.TableExists(ctx)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("failed to create ledger table %s: %w", TableName, err)
	}
	return nil
}

// ListApplied returns all ledger entries ordered ascending by version.
func (m *Manager) ListApplied(ctx context.Context) ([]Entry, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT version, checksum, applied_at FROM %s ORDER BY version ASC", TableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Version, &e.Checksum, &e.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordSuccess appends a ledger row inside the caller's transaction, so the
// migration's effects and its ledger row commit or roll back as a unit.
func (m *Manager) RecordSuccess(ctx context.Context, tx *sql.Tx, version, checksum string) error {
	_, err := tx.ExecContext(ctx, m.insertSQL(), version, checksum, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record migration %s in ledger: %w", version, err)
	}
	return nil
}

// TableExists reports whether the ledger table is present. Read-only
// callers (the dry run) use it instead of EnsureTable so they never issue
// DDL.
func (m *Manager) TableExists(ctx context.Context) (bool, error) {
	var query string
	switch m.provider {
	case "postgres", "postgresql":
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1"
	case "mysql":
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?"
	case "sqlite", "sqlite3":
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	default:
		return false, fmt.Errorf("unsupported provider %q", m.provider)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, query, TableName).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *Manager) createTableSQL() string {
	switch m.provider {
	case "postgres", "postgresql":
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				version TEXT PRIMARY KEY,
				checksum TEXT NOT NULL,
				applied_at TIMESTAMPTZ NOT NULL
			)`, TableName)
	case "mysql":
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				version VARCHAR(14) PRIMARY KEY,
				checksum VARCHAR(64) NOT NULL,
				applied_at TIMESTAMP NOT NULL
			)`, TableName)
	case "sqlite", "sqlite3":
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				version TEXT PRIMARY KEY,
				checksum TEXT NOT NULL,
				applied_at TIMESTAMP NOT NULL
			)`, TableName)
	default:
		return ""
	}
}

func (m *Manager) insertSQL() string {
	switch m.provider {
	case "postgres", "postgresql":
		return fmt.Sprintf("INSERT INTO %s (version, checksum, applied_at) VALUES ($1, $2, $3)", TableName)
	default:
		return fmt.Sprintf("INSERT INTO %s (version, checksum, applied_at) VALUES (?, ?, ?)", TableName)
	}
}
