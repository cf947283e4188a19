// Package executor is the migration control loop: it plans pending work,
// verifies ledger integrity, and applies migrations one transaction at a
// time.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/sqlward/sqlward/migrate/checksum"
	"github.com/sqlward/sqlward/migrate/history"
	"github.com/sqlward/sqlward/migrate/source"
)

// ChecksumMismatchError means an already-applied migration file was edited
// after it was recorded in the ledger. It is never auto-resolved; the fix is
// a new corrective migration.
type ChecksumMismatchError struct {
	Version  string
	Path     string
	Recorded string
	Computed string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for applied migration %s (%s): ledger has %s, file is %s",
		e.Version, e.Path, short(e.Recorded), short(e.Computed))
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

// MigrationExecutionError wraps a SQL failure in a specific migration. The
// offending transaction is rolled back and no later migration is attempted.
type MigrationExecutionError struct {
	Version string
	Err     error
}

func (e *MigrationExecutionError) Error() string {
	return fmt.Sprintf("migration %s failed: %v", e.Version, e.Err)
}

func (e *MigrationExecutionError) Unwrap() error {
	return e.Err
}

// Migration files own no transaction boundaries; the runner does. The
// pattern requires the statement form (trailing semicolon) so trigger bodies
// using BEGIN ... END are not rejected.
var txControlPattern = regexp.MustCompile(`(?im)^\s*(?:BEGIN(?:\s+(?:TRANSACTION|WORK))?|COMMIT|ROLLBACK|START\s+TRANSACTION)\s*;`)

// Plan is the work computed fresh for one run: files on disk whose version is
// absent from the ledger, ascending. MissingFiles lists ledger versions with
// no file on disk, which is reported as a warning but does not block the run.
type Plan struct {
	Pending      []source.MigrationFile
	Applied      []history.Entry
	MissingFiles []history.Entry
}

// Runner drives discovery, verification, and sequential transactional
// execution against a single database.
type Runner struct {
	db      *sql.DB
	scanner *source.Scanner
	ledger  *history.Manager

	// Progress, when set, is called before each pending migration is
	// executed, with its 1-based position in the plan.
	Progress func(i, n int, file source.MigrationFile)
}

// NewRunner wires a runner from its collaborators. The database handle is
// passed in explicitly; the runner holds no global state.
func NewRunner(db *sql.DB, provider string, scanner *source.Scanner) *Runner {
	return &Runner{
		db:      db,
		scanner: scanner,
		ledger:  history.NewManager(db, provider),
	}
}

// DB exposes the underlying handle so callers can take the advisory lock on
// the same database.
func (r *Runner) DB() *sql.DB {
	return r.db
}

// Plan computes the pending set and re-verifies every ledger-known file's
// checksum. A mismatch fails the whole run before any database mutation.
// Plan itself is read-only: an absent ledger table means an empty applied
// set, and creating the table is the apply path's job.
func (r *Runner) Plan(ctx context.Context) (*Plan, error) {
	files, err := r.scanner.List()
	if err != nil {
		return nil, err
	}

	exists, err := r.ledger.TableExists(ctx)
	if err != nil {
		return nil, err
	}

	var applied []history.Entry
	if exists {
		applied, err = r.ledger.ListApplied(ctx)
		if err != nil {
			return nil, err
		}
	}

	byVersion := make(map[string]source.MigrationFile, len(files))
	for _, f := range files {
		byVersion[f.Version] = f
	}

	plan := &Plan{Applied: applied}
	appliedSet := make(map[string]struct{}, len(applied))
	for _, entry := range applied {
		appliedSet[entry.Version] = struct{}{}

		f, ok := byVersion[entry.Version]
		if !ok {
			plan.MissingFiles = append(plan.MissingFiles, entry)
			continue
		}
		if checksum.Verify(f.Checksum, entry.Checksum) == checksum.Mismatch {
			return nil, &ChecksumMismatchError{
				Version:  entry.Version,
				Path:     f.Path,
				Recorded: entry.Checksum,
				Computed: f.Checksum,
			}
		}
	}

	for _, f := range files {
		if _, ok := appliedSet[f.Version]; !ok {
			plan.Pending = append(plan.Pending, f)
		}
	}

	return plan, nil
}

// Check is the dry run: it plans and verifies but never opens a write
// transaction. The caller decides the exit status from the returned plan.
func (r *Runner) Check(ctx context.Context) (*Plan, error) {
	return r.Plan(ctx)
}

// Apply plans and then executes every pending migration strictly in
// ascending version order, one transaction per migration with the ledger row
// written inside it. The first failure rolls back its own transaction and
// stops the run; earlier migrations stay committed.
func (r *Runner) Apply(ctx context.Context) (*Plan, error) {
	if err := r.ledger.EnsureTable(ctx); err != nil {
		return nil, err
	}

	plan, err := r.Plan(ctx)
	if err != nil {
		return nil, err
	}

	for i, f := range plan.Pending {
		if r.Progress != nil {
			r.Progress(i+1, len(plan.Pending), f)
		}
		if err := r.applyOne(ctx, f); err != nil {
			return plan, err
		}
	}

	return plan, nil
}

func (r *Runner) applyOne(ctx context.Context, f source.MigrationFile) error {
	if m := txControlPattern.FindString(f.RawContent); m != "" {
		return &MigrationExecutionError{
			Version: f.Version,
			Err:     fmt.Errorf("file contains transaction-control statement %q; the runner owns transaction boundaries", strings.TrimSpace(m)),
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", f.Version, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, f.RawContent); err != nil {
		_ = tx.Rollback()
		return &MigrationExecutionError{Version: f.Version, Err: err}
	}

	if err := r.ledger.RecordSuccess(ctx, tx, f.Version, f.Checksum); err != nil {
		_ = tx.Rollback()
		return &MigrationExecutionError{Version: f.Version, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &MigrationExecutionError{Version: f.Version, Err: fmt.Errorf("commit failed: %w", err)}
	}

	return nil
}

// connectivityPatterns match error texts that indicate a transient network
// or database availability problem rather than a bad migration.
var connectivityPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"broken pipe",
	"bad connection",
	"the database system is starting up",
}

// IsConnectivity reports whether an error looks like a transient
// connectivity failure. The invoking pipeline may retry the whole run;
// re-running is safe because committed migrations are skipped via the ledger.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range connectivityPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
