// Package dag builds and executes the pipeline's stage dependency graph.
// Stages declare their predecessors by ID; the executor runs ready stages on
// a small worker pool, fails fast on the first error, and skips every
// transitive dependent of a failed stage.
package dag
