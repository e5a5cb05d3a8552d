// Package session holds the working-set cursor and the Session that ties
// the catalog, the query compiler, the indexer and the thumbnail cache
// together for command handlers.
//
// A Session is built once with explicit collaborators; nothing is looked
// up globally. Its primary cursor publishes cursor changes on the event
// bus, and content changes on the bus invalidate cached thumbnails.
package session
