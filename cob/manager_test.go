package cob

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cobkit/cobkit/storage"
	"github.com/cobkit/cobkit/util/crypto"
)

func newManagerFixture(t *testing.T, store storage.OpStore) *Manager {
	m := NewManager(NewRegistry(func() Reducer { return &counterReducer{} }))
	priv, _, err := crypto.GenerateRandomEd25519KeyPair()
	require.NoError(t, err)
	m.key = priv
	m.store = store
	require.NoError(t, m.Run(context.Background()))
	t.Cleanup(func() {
		_ = m.Close(context.Background())
	})
	return m
}

func TestManager(t *testing.T) {
	t.Run("create get ids", func(t *testing.T) {
		m := newManagerFixture(t, nil)
		obj, err := m.CreateObject("test.counter", []byte("null"))
		require.NoError(t, err)

		got, err := m.Get(obj.Id())
		require.NoError(t, err)
		require.Same(t, obj, got)
		require.Equal(t, []string{obj.Id()}, m.Ids())

		_, err = m.Get("missing")
		require.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("deliver feeds the object worker", func(t *testing.T) {
		source := newManagerFixture(t, nil)
		sink := newManagerFixture(t, nil)

		obj, err := source.CreateObject("test.counter", []byte("null"))
		require.NoError(t, err)
		rawRoot, err := source.builder.Marshal(obj.dag.Root())
		require.NoError(t, err)
		raw1, err := obj.Propose(inc())
		require.NoError(t, err)
		raw2, err := obj.Propose(inc())
		require.NoError(t, err)

		replica, err := sink.OpenObject(rawRoot)
		require.NoError(t, err)

		// out of order on purpose; the worker parks and promotes
		require.NoError(t, sink.Deliver(context.Background(), obj.Id(), raw2))
		require.NoError(t, sink.Deliver(context.Background(), obj.Id(), raw1))

		require.Eventually(t, func() bool {
			return replica.State().(*counterState).N == 2
		}, time.Second, 5*time.Millisecond)
		require.Equal(t, obj.Hash(), replica.Hash())
	})

	t.Run("deliver to an unknown object", func(t *testing.T) {
		m := newManagerFixture(t, nil)
		err := m.Deliver(context.Background(), "missing", nil)
		require.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("open is idempotent per root", func(t *testing.T) {
		source := newManagerFixture(t, nil)
		sink := newManagerFixture(t, nil)

		obj, err := source.CreateObject("test.counter", []byte("null"))
		require.NoError(t, err)
		rawRoot, err := source.builder.Marshal(obj.dag.Root())
		require.NoError(t, err)

		first, err := sink.OpenObject(rawRoot)
		require.NoError(t, err)
		second, err := sink.OpenObject(rawRoot)
		require.NoError(t, err)
		require.Same(t, first, second)
	})

	t.Run("closed manager refuses work", func(t *testing.T) {
		m := newManagerFixture(t, nil)
		require.NoError(t, m.Close(context.Background()))

		_, err := m.CreateObject("test.counter", []byte("null"))
		require.ErrorIs(t, err, ErrClosed)
		err = m.Deliver(context.Background(), "any", nil)
		require.ErrorIs(t, err, ErrClosed)
	})

	t.Run("restart reloads persisted objects", func(t *testing.T) {
		store := storage.NewInMemoryStore()
		m := newManagerFixture(t, store)
		obj, err := m.CreateObject("test.counter", []byte("null"))
		require.NoError(t, err)
		_, err = obj.Propose(inc())
		require.NoError(t, err)
		require.NoError(t, m.Close(context.Background()))

		reopened := newManagerFixture(t, store)
		loaded, err := reopened.Get(obj.Id())
		require.NoError(t, err)
		require.Equal(t, 1, loaded.State().(*counterState).N)
		require.Equal(t, obj.Hash(), loaded.Hash())
	})
}
