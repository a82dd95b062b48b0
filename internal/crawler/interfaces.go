package crawler

import (
	"context"
	"io"
	"time"
)

// PageExecutor loads a page and evaluates a selector set against it.
type PageExecutor interface {
	Execute(ctx context.Context, request PageRequest) (PageResult, error)
}

// Sink receives records as pages are scraped.
type Sink interface {
	AddRecords(ctx context.Context, records []ScrapedRecord) error
}

// Initializer is implemented by sinks that need preparation before the first
// AddRecords call, such as creating a staging index.
type Initializer interface {
	Init(ctx context.Context) error
}

// Finisher is implemented by sinks that promote or flush their records once
// the crawl has drained.
type Finisher interface {
	Finish(ctx context.Context) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// RobotsPolicy reports whether robots.txt allows a URL.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// RateLimiter delays requests per domain.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes crawl notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
