// Package gcs indexes records as newline-delimited JSON in a Cloud Storage
// object. Records stream into a staging object that Finish copies over the
// live one.
package gcs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/crawler"
	gcsstore "github.com/JakeFAU/site-spider/internal/storage/gcs"
)

const contentType = "application/x-ndjson"

// ErrNotInitialized is returned by AddRecords and Finish before Init.
var ErrNotInitialized = errors.New("gcs sink not initialized")

// Config names the live object.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	Object string `mapstructure:"object"`
}

// ObjectStore is the bucket access the sink needs. *gcsstore.BlobStore
// implements it.
type ObjectStore interface {
	NewWriter(ctx context.Context, path, contentType string) (io.WriteCloser, error)
	ReadObject(ctx context.Context, path string) ([]byte, error)
	Promote(ctx context.Context, src, dst string) error
}

// Sink streams documents to <object>.staging.
type Sink struct {
	store        ObjectStore
	object       string
	mergeForeign bool
	closeStore   func() error
	logger       *zap.Logger

	mu      sync.Mutex
	writer  io.WriteCloser
	encoder *json.Encoder
	written int
}

// New builds a Sink. closeStore, when set, runs on Close.
func New(store ObjectStore, cfg Config, mergeForeign bool, closeStore func() error, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		store:        store,
		object:       cfg.Object,
		mergeForeign: mergeForeign,
		closeStore:   closeStore,
		logger:       logger,
	}
}

func (s *Sink) staging() string { return s.object + ".staging" }

// Init opens the staging upload. The upload lives as long as ctx, so callers
// pass the crawl context.
func (s *Sink) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		_ = s.writer.Close()
	}
	w, err := s.store.NewWriter(ctx, s.staging(), contentType)
	if err != nil {
		return fmt.Errorf("open staging object: %w", err)
	}
	s.writer = w
	s.encoder = json.NewEncoder(w)
	s.written = 0
	return nil
}

// AddRecords appends one JSON line per record.
func (s *Sink) AddRecords(_ context.Context, records []crawler.ScrapedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return ErrNotInitialized
	}
	for _, r := range records {
		if err := s.encoder.Encode(crawler.NewDocument(r)); err != nil {
			return fmt.Errorf("write record %s: %w", r.UniqueID, err)
		}
		s.written++
	}
	return nil
}

// Finish appends foreign documents from the live object when merging,
// completes the staging upload, and promotes it.
func (s *Sink) Finish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return ErrNotInitialized
	}
	if s.mergeForeign {
		if err := s.appendForeign(ctx); err != nil {
			_ = s.writer.Close()
			s.writer = nil
			return err
		}
	}
	err := s.writer.Close()
	s.writer, s.encoder = nil, nil
	if err != nil {
		return fmt.Errorf("close staging object: %w", err)
	}
	if err := s.store.Promote(ctx, s.staging(), s.object); err != nil {
		return fmt.Errorf("promote staging object: %w", err)
	}
	s.logger.Info("object promoted", zap.String("object", s.object), zap.Int("records", s.written))
	return nil
}

// Close aborts an unfinished upload and releases the store.
func (s *Sink) Close(context.Context) error {
	s.mu.Lock()
	if s.writer != nil {
		_ = s.writer.Close()
		s.writer = nil
	}
	s.mu.Unlock()
	if s.closeStore != nil {
		return s.closeStore()
	}
	return nil
}

func (s *Sink) appendForeign(ctx context.Context) error {
	data, err := s.store.ReadObject(ctx, s.object)
	if errors.Is(err, gcsstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read live object: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	merged := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var doc crawler.Document
		if err := json.Unmarshal(line, &doc); err != nil {
			return fmt.Errorf("decode live object line: %w", err)
		}
		if !doc.Foreign() {
			continue
		}
		if err := s.encoder.Encode(doc); err != nil {
			return fmt.Errorf("write foreign document: %w", err)
		}
		merged++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan live object: %w", err)
	}
	s.logger.Info("merged foreign documents", zap.Int("documents", merged))
	return nil
}
