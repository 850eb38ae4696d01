package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/registry"
)

// Executor runs a stage graph on a pool of workers.
type Executor struct {
	Graph      *Graph
	numWorkers int
	registry   *registry.Registry
	wg         sync.WaitGroup
}

// New creates an Executor for the given graph.
func New(graph *Graph, numWorkers int, r *registry.Registry) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Executor{
		Graph:      graph,
		numWorkers: numWorkers,
		registry:   r,
	}
}

// Run executes the entire graph and returns an error if any stage fails.
// It respects the cancellation signal from the provided context.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *Node, len(e.Graph.Nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Debug("Initializing executor, finding root nodes...")
	rootNodeCount := 0
	for _, node := range e.Graph.Nodes {
		if node.depCount.Load() == 0 {
			logger.Debug("Found root node.", "stageID", node.ID)
			readyChan <- node
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	e.wg.Add(len(e.Graph.Nodes))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	logger.Debug("All stages completed.")
	close(readyChan)

	var failedStages []string
	var rootCauseError error
	for _, node := range e.Graph.Nodes {
		if NodeState(node.State.Load()) == Failed {
			logger.Error("Stage failed execution.", "stageID", node.ID, "error", node.Error)
			// A "skipped" error is a symptom, not a cause.
			if node.Error != nil && !strings.HasPrefix(node.Error.Error(), "skipped") && !errors.Is(node.Error, context.Canceled) {
				failedStages = append(failedStages, node.ID)
				if rootCauseError == nil {
					rootCauseError = node.Error
				}
			}
		}
	}

	if rootCauseError != nil {
		return fmt.Errorf("pipeline failed for %s: %w", strings.Join(failedStages, ", "), rootCauseError)
	}

	return nil
}

// skipDependents recursively marks all downstream nodes as failed and
// decrements the WaitGroup.
func (e *Executor) skipDependents(ctx context.Context, node *Node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range node.Dependents {
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping dependent stage due to upstream failure.", "stageID", dependent.ID, "dependency", node.ID)
			dependent.State.Store(int32(Failed))
			dependent.Error = fmt.Errorf("skipped due to upstream failure of '%s'", node.ID)
			e.wg.Done()
			e.skipDependents(ctx, dependent)
		})
	}
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for node := range readyChan {
		workerLogger := logger.With("workerID", workerID, "stageID", node.ID)

		if ctx.Err() != nil {
			node.skipOnce.Do(func() {
				workerLogger.Warn("Context canceled, skipping stage execution.")
				node.State.Store(int32(Failed))
				node.Error = ctx.Err()
				e.wg.Done()
				// The failing node only skips its own dependent closure; a
				// node from an unrelated chain drained here must skip its
				// dependents itself or Run waits on them forever.
				e.skipDependents(ctx, node)
			})
			continue
		}

		workerLogger.Debug("Worker picked up stage for execution.")
		node.State.Store(int32(Running))
		err := e.executeNode(ctx, node)

		if err != nil {
			workerLogger.Error("Stage execution failed.", "error", err)
			node.State.Store(int32(Failed))
			node.Error = err
			cancel()
			e.skipDependents(ctx, node)
			e.wg.Done()
			continue
		}

		workerLogger.Debug("Stage execution succeeded.")
		node.State.Store(int32(Done))

		for _, dependent := range node.Dependents {
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent stage.", "dependentID", dependent.ID)
				readyChan <- dependent
			}
		}

		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// executeNode resolves the stage's handler from the registry and invokes it.
func (e *Executor) executeNode(ctx context.Context, node *Node) error {
	logger := ctxlog.FromContext(ctx).With("stage", node.ID)
	logger.Info("Running stage.")

	handler, ok := e.registry.Handler(node.Stage.Handler)
	if !ok {
		// Build validates handler names, so this indicates a registry mutation.
		return fmt.Errorf("unknown stage handler '%s'", node.Stage.Handler)
	}

	if err := handler.Fn(ctx, node.Stage.Input); err != nil {
		return fmt.Errorf("stage '%s' failed: %w", node.ID, err)
	}
	logger.Info("Stage finished.")
	return nil
}
