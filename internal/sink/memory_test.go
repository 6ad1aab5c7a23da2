package sink_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
	"github.com/stacklok/toolhive-registry-bridge/internal/sink"
)

func TestMemorySink(t *testing.T) {
	t.Parallel()

	runReadWriterContract(t, sink.NewMemorySink())
}

func TestMemorySink_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := sink.NewMemorySink()
	rec := registry.NewTestInstance("a", registry.WithMetadata("k", "v"))
	require.NoError(t, s.Register(ctx, rec))

	rec.Metadata["k"] = "mutated"
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Metadata["k"])

	got.Metadata["k"] = "mutated"
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Metadata["k"])
}

func TestAsReader(t *testing.T) {
	t.Parallel()

	_, ok := sink.AsReader(sink.NewMemorySink())
	assert.True(t, ok)
}
