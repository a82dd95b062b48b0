// Package memory is an in-process sink. It stages records in a slice and
// publishes them on Finish.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/site-spider/internal/crawler"
)

// Sink keeps staged and published documents in memory.
type Sink struct {
	mu           sync.Mutex
	mergeForeign bool
	staged       []crawler.Document
	published    []crawler.Document
	inits        int
	finishes     int
	addErr       error
}

// New returns an empty Sink. Seed with Publish to simulate an existing index.
func New(mergeForeign bool) *Sink {
	return &Sink{mergeForeign: mergeForeign}
}

// Publish replaces the live documents, as if indexed outside a crawl.
func (s *Sink) Publish(docs ...crawler.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append([]crawler.Document(nil), docs...)
}

// FailAdds makes every later AddRecords call return err.
func (s *Sink) FailAdds(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addErr = err
}

// Init clears the staging area.
func (s *Sink) Init(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	s.staged = nil
	return nil
}

// AddRecords stages records.
func (s *Sink) AddRecords(_ context.Context, records []crawler.ScrapedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	for _, r := range records {
		s.staged = append(s.staged, crawler.NewDocument(r))
	}
	return nil
}

// Finish promotes staged documents to published.
func (s *Sink) Finish(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishes++
	next := s.staged
	if s.mergeForeign {
		for _, d := range s.published {
			if d.Foreign() {
				next = append(next, d)
			}
		}
	}
	s.published = next
	s.staged = nil
	return nil
}

// Close is a no-op.
func (s *Sink) Close(context.Context) error { return nil }

// Staged returns a copy of the staged documents.
func (s *Sink) Staged() []crawler.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.Document(nil), s.staged...)
}

// Published returns a copy of the live documents.
func (s *Sink) Published() []crawler.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.Document(nil), s.published...)
}

// Calls returns how often Init and Finish ran.
func (s *Sink) Calls() (inits, finishes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits, s.finishes
}
