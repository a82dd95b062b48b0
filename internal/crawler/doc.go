// Package crawler defines the domain types and the small interfaces shared by
// the frontier, worker pool, extractor, executor, and sinks of the site spider.
package crawler
