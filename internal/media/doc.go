// Package media provides image handling for the catalog: a content-addressed
// thumbnail cache with a background generation worker, constrained image
// loading, and the embedded tag reader used during synchronization.
//
// The ThumbnailCache maps a catalog file id to one PNG in its directory:
//   - Get returns the cached file, generating it synchronously on a miss
//   - Enqueue schedules pre-generation on the single background worker
//   - Invalidate removes cached files after a content change
//
// Sources that cannot be decoded are replaced by a placeholder image.
package media
