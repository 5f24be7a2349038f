package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltStoreRecordAndGet(t *testing.T) {
	store := newTestStore(t)

	inst := &Instance{ID: "1001", Name: "gofast-1", Address: "10.0.0.1", Role: RoleWorker}
	require.NoError(t, store.Record(inst))
	assert.False(t, inst.CreatedAt.IsZero())

	got, err := store.Get("1001")
	require.NoError(t, err)
	assert.Equal(t, "gofast-1", got.Name)
	assert.Equal(t, RoleWorker, got.Role)

	_, err = store.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBoltStoreRecordRequiresID(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.Record(&Instance{Name: "no-id"}))
}

func TestBoltStoreRemove(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Record(&Instance{ID: "a", Role: RoleWorker}))
	require.NoError(t, store.Remove("a"))
	require.NoError(t, store.Remove("a"))

	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBoltStoreListOrdered(t *testing.T) {
	store := newTestStore(t)
	base := time.Now()

	require.NoError(t, store.Record(&Instance{ID: "z", Role: RoleProxy, CreatedAt: base}))
	require.NoError(t, store.Record(&Instance{ID: "b", Role: RoleWorker, CreatedAt: base.Add(2 * time.Second)}))
	require.NoError(t, store.Record(&Instance{ID: "m", Role: RoleWorker, CreatedAt: base.Add(time.Second)}))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "z", list[0].ID)
	assert.Equal(t, "m", list[1].ID)
	assert.Equal(t, "b", list[2].ID)
}

func TestBoltStoreReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Record(&Instance{ID: "leaked", Role: RoleWorker}))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "leaked", list[0].ID)
}
