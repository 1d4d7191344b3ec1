// Package dag is the execution layer of the application. It holds a generic
// Directed Acyclic Graph of string-identified nodes and an Executor that runs
// a caller-supplied function for every node on a bounded worker pool,
// respecting dependencies.
//
// A node runs only after all its dependencies completed successfully. When a
// node fails, everything downstream of it is skipped; independent branches
// keep running unless fail-fast mode is enabled.
package dag
