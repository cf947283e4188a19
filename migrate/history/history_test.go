package history

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnsureTableIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(db, "sqlite")
	ctx := context.Background()

	require.NoError(t, m.EnsureTable(ctx))
	require.NoError(t, m.EnsureTable(ctx))

	exists, err := m.TableExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRecordSuccessAndListApplied(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(db, "sqlite")
	ctx := context.Background()
	require.NoError(t, m.EnsureTable(ctx))

	// Insert out of chronological order; ListApplied must sort by version.
	for _, v := range []string{"20240201000000", "20240101000000"} {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, m.RecordSuccess(ctx, tx, v, "digest-"+v))
		require.NoError(t, tx.Commit())
	}

	entries, err := m.ListApplied(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "20240101000000", entries[0].Version)
	assert.Equal(t, "20240201000000", entries[1].Version)
	assert.Equal(t, "digest-20240101000000", entries[0].Checksum)
	assert.False(t, entries[0].AppliedAt.IsZero())
}

func TestRecordSuccessRollsBackWithTransaction(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(db, "sqlite")
	ctx := context.Background()
	require.NoError(t, m.EnsureTable(ctx))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, m.RecordSuccess(ctx, tx, "20240101000000", "digest"))
	require.NoError(t, tx.Rollback())

	entries, err := m.ListApplied(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordSuccessRejectsDuplicateVersion(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(db, "sqlite")
	ctx := context.Background()
	require.NoError(t, m.EnsureTable(ctx))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, m.RecordSuccess(ctx, tx, "20240101000000", "digest"))
	require.NoError(t, tx.Commit())

	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	err = m.RecordSuccess(ctx, tx, "20240101000000", "digest")
	assert.Error(t, err)
	_ = tx.Rollback()
}

func TestListAppliedPropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT version, checksum, applied_at").
		WillReturnError(errors.New("connection reset"))

	m := NewManager(db, "postgres")
	_, err = m.ListApplied(context.Background())
	assert.ErrorContains(t, err, "failed to query ledger")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureTablePropagatesCreateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
		WillReturnError(errors.New("permission denied"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	m := NewManager(db, "postgres")
	err = m.EnsureTable(context.Background())
	assert.ErrorContains(t, err, "failed to create ledger table")
	assert.NoError(t, mock.ExpectationsWereMet())
}
