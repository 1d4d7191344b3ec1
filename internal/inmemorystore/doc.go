// Package inmemorystore provides a thread-safe, in-memory implementation
// of the nodestore.Store interface. It backs `--cache=memory` runs and
// tests, and is embedded by the SQLite store for live run state.
package inmemorystore
