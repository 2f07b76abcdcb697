package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_WALMode(t *testing.T) {
	st := newTestSQLiteStore(t)

	var mode string
	require.NoError(t, st.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSQLite_SingleWriterConnection(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.Equal(t, 1, st.db.Stats().MaxOpenConnections)

	var busy int
	require.NoError(t, st.db.QueryRow("PRAGMA busy_timeout").Scan(&busy))
	assert.Equal(t, 5000, busy)
}

func TestSQLite_ConcurrentRecords(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var g errgroup.Group
	for i := range 20 {
		g.Go(func() error {
			return st.RecordDecision(ctx, scoredDecision(fmt.Sprintf("req-%d", i), time.Now().UTC()))
		})
	}
	require.NoError(t, g.Wait())

	got, err := st.ListDecisions(ctx, DecisionFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestSQLite_ClosedStore(t *testing.T) {
	st, err := NewSQLite(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	err = st.Migrate(context.Background())
	assert.ErrorContains(t, err, "sqlite: migrate")
}
