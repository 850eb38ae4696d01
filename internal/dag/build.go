package dag

import (
	"context"
	"fmt"

	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/registry"
)

// Build constructs a complete, validated dependency graph from a stage plan.
func Build(ctx context.Context, stages []*Stage, r *registry.Registry) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")
	graph := &Graph{Nodes: make(map[string]*Node)}

	// First pass: create all nodes.
	for _, s := range stages {
		if _, exists := graph.Nodes[s.ID]; exists {
			return nil, fmt.Errorf("duplicate stage ID '%s'", s.ID)
		}
		if _, ok := r.Handler(s.Handler); !ok {
			return nil, fmt.Errorf("stage '%s' references unregistered handler '%s'", s.ID, s.Handler)
		}
		graph.Nodes[s.ID] = &Node{
			ID:         s.ID,
			Stage:      s,
			Deps:       make(map[string]*Node),
			Dependents: make(map[string]*Node),
		}
	}
	logger.Debug("Build: Node creation complete.", "node_count", len(graph.Nodes))

	// Second pass: link dependencies.
	for _, s := range stages {
		node := graph.Nodes[s.ID]
		for _, depID := range s.After {
			dep, ok := graph.Nodes[depID]
			if !ok {
				return nil, fmt.Errorf("stage '%s' depends on unknown stage '%s'", s.ID, depID)
			}
			if dep == node {
				return nil, fmt.Errorf("stage '%s' depends on itself", s.ID)
			}
			node.Deps[depID] = dep
			dep.Dependents[s.ID] = node
		}
	}
	logger.Debug("Build: Node linking complete.")

	// Third pass: initialize counters.
	for _, node := range graph.Nodes {
		node.SetInitialCounters()
	}

	if err := graph.detectCycles(); err != nil {
		return nil, fmt.Errorf("error validating stage graph: %w", err)
	}
	logger.Debug("Build: Cycle detection passed.")

	logger.Debug("Build: Graph construction successful.")
	return graph, nil
}

// detectCycles checks the graph for cycles using depth-first search with the
// classic permanent/temporary marking scheme.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			// A node already in the recursion stack means a cycle.
			return fmt.Errorf("cycle detected involving stage '%s'", n.ID)
		}

		temporary[n.ID] = true
		for _, dependent := range n.Dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, n := range g.Nodes {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}

// HandlerNames returns the set of handler names a stage plan references.
// The registry is validated against this before the executor starts.
func HandlerNames(stages []*Stage) []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range stages {
		if !seen[s.Handler] {
			seen[s.Handler] = true
			names = append(names, s.Handler)
		}
	}
	return names
}
