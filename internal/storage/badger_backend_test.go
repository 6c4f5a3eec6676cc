package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/ocelgraph-go/internal/ocel"
)

func setupTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "badger")

	store := NewBadgerStore()
	require.NoError(t, store.Initialize(dbPath, false))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestBadgerStore(t *testing.T) {
	t.Parallel()

	testLogStore(t, func(t *testing.T) LogStore {
		t.Helper()
		return setupTestBadgerStore(t)
	})
}

func TestBadgerStore_Initialize(t *testing.T) {
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		store := NewBadgerStore()
		err := store.Initialize(filepath.Join(t.TempDir(), "badger"), false)

		assert.NoError(t, err)
		assert.NotNil(t, store.db)
		assert.True(t, store.initialized)
		assert.NoError(t, store.Close())
		assert.False(t, store.initialized)
	})

	t.Run("CloseTwice", func(t *testing.T) {
		t.Parallel()
		store := setupTestBadgerStore(t)
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close())
	})
}

func TestBadgerStore_Persistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "badger")

	store := NewBadgerStore()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	require.NoError(t, store.Initialize(dbPath, false))

	_, err := store.Put(ctx, "orders.xml", ocel.FormatXML, []byte("<log/>"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := NewBadgerStore()
	require.NoError(t, reopened.Initialize(dbPath, true))
	defer reopened.Close()

	meta, data, err := reopened.Get(ctx, "orders.xml")
	require.NoError(t, err)
	assert.Equal(t, "<log/>", string(data))
	assert.Equal(t, ocel.FormatXML, meta.Format)
	assert.True(t, fixed.Equal(meta.StoredAt))

	list, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "orders.xml", list[0].Name)
}

func TestBadgerStore_PutCanceledContext(t *testing.T) {
	t.Parallel()

	store := setupTestBadgerStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(ctx, "a.json", ocel.FormatJSON, []byte("{}"))
	assert.ErrorIs(t, err, context.Canceled)
}
