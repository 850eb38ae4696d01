package dag

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/espforge/espforge/internal/registry"
)

// recorder collects stage execution order across workers.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
}

func (r *recorder) indexOf(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range r.order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestExecutorRunsStagesInDependencyOrder(t *testing.T) {
	rec := &recorder{}
	r := registry.New()
	r.RegisterHandler("record", &registry.Handler{
		Fn: func(ctx context.Context, input any) error {
			rec.record(input.(string))
			return nil
		},
	})

	// Diamond: a -> (b, c) -> d.
	stages := []*Stage{
		{ID: "a", Handler: "record", Input: "a"},
		{ID: "b", Handler: "record", Input: "b", After: []string{"a"}},
		{ID: "c", Handler: "record", Input: "c", After: []string{"a"}},
		{ID: "d", Handler: "record", Input: "d", After: []string{"b", "c"}},
	}
	graph, err := Build(testContext(), stages, r)
	require.NoError(t, err)

	exec := New(graph, 4, r)
	require.NoError(t, exec.Run(testContext()))

	assert.Len(t, rec.order, 4)
	assert.Equal(t, 0, rec.indexOf("a"))
	assert.Greater(t, rec.indexOf("d"), rec.indexOf("b"))
	assert.Greater(t, rec.indexOf("d"), rec.indexOf("c"))
}

func TestExecutorFailureSkipsDependents(t *testing.T) {
	rec := &recorder{}
	r := registry.New()
	r.RegisterHandler("record", &registry.Handler{
		Fn: func(ctx context.Context, input any) error {
			rec.record(input.(string))
			return nil
		},
	})
	boom := errors.New("build exploded")
	r.RegisterHandler("fail", &registry.Handler{
		Fn: func(ctx context.Context, input any) error { return boom },
	})

	stages := []*Stage{
		{ID: "ok", Handler: "record", Input: "ok"},
		{ID: "bad", Handler: "fail", After: []string{"ok"}},
		{ID: "downstream", Handler: "record", Input: "downstream", After: []string{"bad"}},
	}
	graph, err := Build(testContext(), stages, r)
	require.NoError(t, err)

	exec := New(graph, 2, r)
	err = exec.Run(testContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "pipeline failed for bad")

	// The downstream stage never ran; it was skipped, not executed.
	assert.Equal(t, -1, rec.indexOf("downstream"))
	assert.Equal(t, Failed, NodeState(graph.Nodes["downstream"].State.Load()))
	assert.ErrorContains(t, graph.Nodes["downstream"].Error, "skipped due to upstream failure of 'bad'")
}

func TestExecutorRespectsContextCancellation(t *testing.T) {
	r := registry.New()
	started := make(chan struct{})
	r.RegisterHandler("block", &registry.Handler{
		Fn: func(ctx context.Context, input any) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	})
	r.RegisterHandler("noop", &registry.Handler{
		Fn: func(ctx context.Context, input any) error { return nil },
	})

	stages := []*Stage{
		{ID: "blocker", Handler: "block"},
		{ID: "after", Handler: "noop", After: []string{"blocker"}},
	}
	graph, err := Build(testContext(), stages, r)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testContext())
	go func() {
		<-started
		cancel()
	}()

	exec := New(graph, 1, r)
	// Cancellation is not reported as a pipeline failure; the caller owns the
	// context and already knows it canceled.
	err = exec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Failed, NodeState(graph.Nodes["blocker"].State.Load()))
	assert.Equal(t, Failed, NodeState(graph.Nodes["after"].State.Load()))
}

func TestExecutorCancelSkipCascadesToDependents(t *testing.T) {
	r := registry.New()
	boom := errors.New("build exploded")
	r.RegisterHandler("fail", &registry.Handler{
		Fn: func(ctx context.Context, input any) error { return boom },
	})
	// Succeeds, but only after the failure has already canceled the run, so
	// its dependent reaches a worker with the context canceled.
	r.RegisterHandler("finishAfterCancel", &registry.Handler{
		Fn: func(ctx context.Context, input any) error {
			<-ctx.Done()
			return nil
		},
	})
	r.RegisterHandler("noop", &registry.Handler{
		Fn: func(ctx context.Context, input any) error { return nil },
	})

	// Two independent chains: the failing stage cannot reach mid or leaf
	// through its own dependents.
	stages := []*Stage{
		{ID: "bad", Handler: "fail"},
		{ID: "slow", Handler: "finishAfterCancel"},
		{ID: "mid", Handler: "noop", After: []string{"slow"}},
		{ID: "leaf", Handler: "noop", After: []string{"mid"}},
	}
	graph, err := Build(testContext(), stages, r)
	require.NoError(t, err)

	exec := New(graph, 2, r)
	done := make(chan error, 1)
	go func() { done <- exec.Run(testContext()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("Run never returned; dependents of a cancel-skipped stage were not released")
	}

	assert.Equal(t, Failed, NodeState(graph.Nodes["mid"].State.Load()))
	assert.Equal(t, Failed, NodeState(graph.Nodes["leaf"].State.Load()))
	assert.ErrorContains(t, graph.Nodes["leaf"].Error, "skipped due to upstream failure of 'mid'")
}

func TestExecutorEmptyGraph(t *testing.T) {
	graph, err := Build(testContext(), nil, registry.New())
	require.NoError(t, err)
	exec := New(graph, 2, registry.New())
	assert.NoError(t, exec.Run(testContext()))
}
