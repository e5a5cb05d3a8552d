/*
Package filesystem provides filesystem operations with retry logic for stale
file handle errors, which repositories on network mounts produce when the
server side changes underneath an open handle.

# Usage

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())

# Retry Behavior

Only ESTALE triggers retries; every other error is returned immediately.
Backoff starts at InitialBackoff and doubles up to MaxBackoff. Retries and
final failures are counted per operation in the metrics package.
*/
package filesystem
