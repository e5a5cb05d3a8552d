// Package database provides the SQLite catalog: scanned files, their tags,
// scan repositories and ordered sets of file keys.
//
// It handles storage and retrieval of:
//   - Files discovered by synchronization, keyed by a stable integer id
//   - (file, kind, value) tag triples
//   - Persisted named sets and the transient working set
//   - The transient mark set used for user selection
//
// Ordered sets always number their entries 0..n-1. Every structural change
// and its renumbering run in one transaction.
//
// The working set and mark set are TEMP tables, so the connection pool is
// pinned to a single connection; see Database.
package database
