package dag

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/registry"
)

func testContext() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func noopRegistry(names ...string) *registry.Registry {
	r := registry.New()
	for _, name := range names {
		r.RegisterHandler(name, &registry.Handler{
			Fn: func(ctx context.Context, input any) error { return nil },
		})
	}
	return r
}

func TestBuild(t *testing.T) {
	r := noopRegistry("h")

	t.Run("links dependencies both ways", func(t *testing.T) {
		stages := []*Stage{
			{ID: "a", Handler: "h"},
			{ID: "b", Handler: "h", After: []string{"a"}},
		}
		graph, err := Build(testContext(), stages, r)
		require.NoError(t, err)
		require.Len(t, graph.Nodes, 2)

		assert.Contains(t, graph.Nodes["a"].Dependents, "b")
		assert.Contains(t, graph.Nodes["b"].Deps, "a")
		assert.Equal(t, int64(0), graph.Nodes["a"].depCount.Load())
		assert.Equal(t, int64(1), graph.Nodes["b"].depCount.Load())
	})

	t.Run("duplicate stage ID", func(t *testing.T) {
		stages := []*Stage{
			{ID: "a", Handler: "h"},
			{ID: "a", Handler: "h"},
		}
		_, err := Build(testContext(), stages, r)
		assert.ErrorContains(t, err, "duplicate stage ID 'a'")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		stages := []*Stage{{ID: "a", Handler: "h", After: []string{"dne"}}}
		_, err := Build(testContext(), stages, r)
		assert.ErrorContains(t, err, "unknown stage 'dne'")
	})

	t.Run("self dependency", func(t *testing.T) {
		stages := []*Stage{{ID: "a", Handler: "h", After: []string{"a"}}}
		_, err := Build(testContext(), stages, r)
		assert.ErrorContains(t, err, "depends on itself")
	})

	t.Run("unregistered handler", func(t *testing.T) {
		stages := []*Stage{{ID: "a", Handler: "nope"}}
		_, err := Build(testContext(), stages, r)
		assert.ErrorContains(t, err, "unregistered handler 'nope'")
	})

	t.Run("cycle detection", func(t *testing.T) {
		stages := []*Stage{
			{ID: "a", Handler: "h", After: []string{"c"}},
			{ID: "b", Handler: "h", After: []string{"a"}},
			{ID: "c", Handler: "h", After: []string{"b"}},
		}
		_, err := Build(testContext(), stages, r)
		assert.ErrorContains(t, err, "cycle detected")
	})
}

func TestHandlerNames(t *testing.T) {
	stages := []*Stage{
		{ID: "a", Handler: "x"},
		{ID: "b", Handler: "y"},
		{ID: "c", Handler: "x"},
	}
	assert.Equal(t, []string{"x", "y"}, HandlerNames(stages))
}
