// Package events carries notifications between the catalog core and its
// front ends.
//
// A Bus is constructed once and passed to the components that publish or
// observe events. Handlers run synchronously on the publishing goroutine in
// registration order.
package events
