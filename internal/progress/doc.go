// Package progress carries crawl milestones from the spider to pluggable
// consumers. Emit never blocks; events are batched on a background goroutine
// and handed to each Sink in order.
package progress
