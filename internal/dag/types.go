package dag

import (
	"sync"
	"sync/atomic"
)

// NodeState tracks a node through its lifecycle.
type NodeState int32

const (
	Pending NodeState = iota
	Running
	Done
	Failed
)

// Stage is the unit of pipeline work: a registered handler name plus the
// input struct the handler receives. After lists the IDs of stages that must
// finish first.
type Stage struct {
	ID      string
	Handler string
	After   []string
	Input   any
}

// Node is a stage's vertex in the execution graph.
type Node struct {
	ID    string
	Stage *Stage

	// Deps holds the nodes this node waits for; Dependents the reverse edges.
	Deps       map[string]*Node
	Dependents map[string]*Node

	// State holds a NodeState value, manipulated atomically by the workers.
	State atomic.Int32
	// Error is set once, before State moves to Failed.
	Error error

	// depCount is the number of unfinished dependencies.
	depCount atomic.Int64
	// skipOnce guarantees a node is marked skipped at most once.
	skipOnce sync.Once
}

// Graph is the validated stage dependency graph.
type Graph struct {
	Nodes map[string]*Node
}

// SetInitialCounters primes the node's dependency counter before execution.
func (n *Node) SetInitialCounters() {
	n.depCount.Store(int64(len(n.Deps)))
}
