// Package sqlitestore persists node instance provenance in a SQLite database
// so that re-running the pipeline over the same output directory can skip
// instances whose inputs did not change.
//
// Live run state is kept in memory by an embedded inmemorystore.Store; only
// finished instances and run metadata are written to disk. The schema is
// managed by golang-migrate from migrations embedded in the binary.
package sqlitestore
