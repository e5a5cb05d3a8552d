// Package indexer synchronizes the catalog with the image repositories on disk.
//
// A sync walks every repository root (recursively when the repository is
// flagged so), keeps the files whose extension is allowed and whose name
// matches none of the ignore globs, and diffs that list against the paths
// already cataloged for the repository:
//   - Paths missing on disk are deleted with their tags, marks and set entries
//   - New paths are inserted and their embedded tags imported
//
// Each repository's diff is applied in a single transaction. A cancellation
// requested with Cancel is observed between files; the transaction of the
// repository in flight is rolled back, repositories already committed stay
// committed, and nothing else is attempted.
//
// When a sync changes the catalog, or finds the default set out of date, the
// default set is regenerated from every cataloged file.
package indexer
