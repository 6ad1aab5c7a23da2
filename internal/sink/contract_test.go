package sink_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
	"github.com/stacklok/toolhive-registry-bridge/internal/sink"
)

// runReadWriterContract exercises the behavior every registry backend must share.
// s must start empty.
func runReadWriterContract(t *testing.T, s sink.ReadWriter) {
	t.Helper()
	ctx := context.Background()

	a := registry.NewTestInstance("a", registry.WithMetadata("zone", "z1"))
	b := registry.NewTestInstance("b", registry.WithApp("orders"))

	t.Run("empty", func(t *testing.T) {
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = s.Get(ctx, "a")
		assert.ErrorIs(t, err, sink.ErrNotFound)
	})

	t.Run("register", func(t *testing.T) {
		require.NoError(t, s.Register(ctx, b))
		require.NoError(t, s.Register(ctx, a))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, a.Equal(got), "got %+v", got)

		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a", list[0].ID)
		assert.Equal(t, "b", list[1].ID)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("update changed fields only", func(t *testing.T) {
		next := a
		next.Status = registry.StatusDown
		next.App = "ignored"

		require.NoError(t, s.Update(ctx, next, registry.ChangeSet{registry.FieldStatus}))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, registry.StatusDown, got.Status)
		assert.Equal(t, a.App, got.App)
		assert.Equal(t, "z1", got.Metadata["zone"])
	})

	t.Run("update absent inserts", func(t *testing.T) {
		c := registry.NewTestInstance("c", registry.WithPort(9090))
		require.NoError(t, s.Update(ctx, c, registry.ChangeSet{registry.FieldPort}))

		got, err := s.Get(ctx, "c")
		require.NoError(t, err)
		assert.True(t, c.Equal(got), "got %+v", got)
	})

	t.Run("unregister", func(t *testing.T) {
		require.NoError(t, s.Unregister(ctx, a))
		require.NoError(t, s.Unregister(ctx, a))

		_, err := s.Get(ctx, "a")
		assert.ErrorIs(t, err, sink.ErrNotFound)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}
