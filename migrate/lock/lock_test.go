package lock

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lock.db")
	db, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAcquireAndRelease(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	release, err := Acquire(ctx, db, "sqlite", 0)
	require.NoError(t, err)
	require.NoError(t, release())

	// Releasing frees the lock for the next run.
	release, err = Acquire(ctx, db, "sqlite", 0)
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestContentionFailsFastWithZeroTimeout(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	release, err := Acquire(ctx, db, "sqlite", 0)
	require.NoError(t, err)
	defer release()

	_, err = Acquire(ctx, db, "sqlite", 0)
	var contention *LockContentionError
	require.ErrorAs(t, err, &contention)
	assert.ErrorContains(t, err, "advisory lock")
}

func TestStaleLockFromCrashedRunIsReclaimed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// A crashed run: the lock is taken and never released.
	_, err := Acquire(ctx, db, "sqlite", 0)
	require.NoError(t, err)

	// Age the row past the expiry window.
	old := time.Now().Add(-staleLockExpiry - time.Minute).Unix()
	_, err = db.ExecContext(ctx, "UPDATE _sqlward_lock SET acquired_at = ? WHERE id = 1", old)
	require.NoError(t, err)

	release, err := Acquire(ctx, db, "sqlite", 0)
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestUnsupportedProvider(t *testing.T) {
	db := openTestDB(t)
	_, err := Acquire(context.Background(), db, "oracle", 0)
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestLockKeyIsStable(t *testing.T) {
	assert.Equal(t, lockKey(), lockKey())
}
