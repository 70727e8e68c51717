package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "nodes.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "data", "nodes.db")

	s, err := NewSQLiteStore(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "ns/groups/g1/members/m1/createdAt", 42))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, dbPath)
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.Exists(ctx, "ns/groups/g1/members")
	require.NoError(t, err)
	assert.True(t, ok)
}
