// Package lock serializes concurrent migration runs with a database-level
// advisory lock.
package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"
)

// lockName identifies the sqlward migration lock across invocations.
const lockName = "sqlward.migrate"

// pollInterval is how often a blocked run retries a try-lock primitive.
const pollInterval = 250 * time.Millisecond

// staleLockExpiry bounds how long a SQLite lock row survives the process
// that wrote it. A crashed run never deletes its row, so anything older is
// reclaimed.
const staleLockExpiry = 10 * time.Minute

// LockContentionError means another run held the lock for the whole wait
// window. The caller may retry the run once the other invocation finishes.
type LockContentionError struct {
	Timeout time.Duration
}

func (e *LockContentionError) Error() string {
	if e.Timeout <= 0 {
		return "another migration run holds the advisory lock"
	}
	return fmt.Sprintf("another migration run holds the advisory lock (waited %s)", e.Timeout)
}

// ReleaseFunc releases a held advisory lock.
type ReleaseFunc func() error

// Acquire takes the migration advisory lock, blocking up to timeout before
// failing with LockContentionError. A timeout of zero tries exactly once.
//
// Postgres uses pg_try_advisory_lock polled on its session connection, MySQL
// uses GET_LOCK with a native wait, and SQLite uses a single-row lock table
// whose primary key turns contention into a constraint violation; a row older
// than staleLockExpiry is treated as abandoned and reclaimed.
func Acquire(ctx context.Context, db *sql.DB, provider string, timeout time.Duration) (ReleaseFunc, error) {
	switch provider {
	case "postgres", "postgresql":
		return acquirePostgres(ctx, db, timeout)
	case "mysql":
		return acquireMySQL(ctx, db, timeout)
	case "sqlite", "sqlite3":
		return acquireSQLite(ctx, db, timeout)
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

// lockKey derives the 64-bit advisory lock key Postgres expects.
func lockKey() int64 {
	h := fnv.New64a()
	h.Write([]byte(lockName))
	return int64(h.Sum64())
}

func acquirePostgres(ctx context.Context, db *sql.DB, timeout time.Duration) (ReleaseFunc, error) {
	// Advisory locks are session-scoped, so the lock and unlock must run
	// on the same connection.
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	key := lockKey()
	deadline := time.Now().Add(timeout)
	for {
		var got bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&got); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
		}
		if got {
			break
		}
		if timeout <= 0 || time.Now().After(deadline) {
			conn.Close()
			return nil, &LockContentionError{Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return func() error {
		defer conn.Close()
		_, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", key)
		return err
	}, nil
}

func acquireMySQL(ctx context.Context, db *sql.DB, timeout time.Duration) (ReleaseFunc, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	seconds := int(timeout / time.Second)
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", lockName, seconds).Scan(&got); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		conn.Close()
		return nil, &LockContentionError{Timeout: timeout}
	}

	return func() error {
		defer conn.Close()
		_, err := conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", lockName)
		return err
	}, nil
}

func acquireSQLite(ctx context.Context, db *sql.DB, timeout time.Duration) (ReleaseFunc, error) {
	createSQL := `CREATE TABLE IF NOT EXISTS _sqlward_lock (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		acquired_at INTEGER NOT NULL
	)`
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return nil, fmt.Errorf("failed to create lock table: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		_, err := db.ExecContext(ctx, "INSERT INTO _sqlward_lock (id, acquired_at) VALUES (1, ?)", time.Now().Unix())
		if err == nil {
			break
		}

		// A crashed holder leaves its row behind forever. Reclaim it once it
		// outlives the expiry; the guard on acquired_at keeps two reclaimers
		// from both deleting a freshly re-taken lock.
		var acquiredAt int64
		scanErr := db.QueryRowContext(ctx, "SELECT acquired_at FROM _sqlward_lock WHERE id = 1").Scan(&acquiredAt)
		if scanErr == nil && time.Since(time.Unix(acquiredAt, 0)) > staleLockExpiry {
			if _, err := db.ExecContext(ctx, "DELETE FROM _sqlward_lock WHERE id = 1 AND acquired_at = ?", acquiredAt); err != nil {
				return nil, fmt.Errorf("failed to reclaim stale lock: %w", err)
			}
			continue
		}

		if timeout <= 0 || time.Now().After(deadline) {
			return nil, &LockContentionError{Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return func() error {
		_, err := db.ExecContext(context.Background(), "DELETE FROM _sqlward_lock WHERE id = 1")
		return err
	}, nil
}
