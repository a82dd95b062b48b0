// Package file writes the index as one JSON document on disk.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/crawler"
	"github.com/JakeFAU/site-spider/internal/storage/local"
)

// Config locates the index file.
type Config struct {
	Path string `mapstructure:"path"`
}

// Sink buffers records and writes them, sorted by uniqueId descending, when
// the crawl finishes. The file is replaced through a rename, so readers see
// either the previous index or the new one.
type Sink struct {
	path         string
	store        *local.BlobStore
	mergeForeign bool
	logger       *zap.Logger

	mu     sync.Mutex
	staged []crawler.Document
}

// New prepares a Sink writing to cfg.Path.
func New(cfg Config, mergeForeign bool, logger *zap.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("file sink path is required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve file sink path: %w", err)
	}
	store, err := local.New(local.Config{BaseDir: filepath.Dir(abs)})
	if err != nil {
		return nil, fmt.Errorf("file sink: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{path: abs, store: store, mergeForeign: mergeForeign, logger: logger}, nil
}

// Init clears anything staged by a previous run.
func (s *Sink) Init(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = nil
	return nil
}

// AddRecords stages records in memory.
func (s *Sink) AddRecords(_ context.Context, records []crawler.ScrapedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.staged = append(s.staged, crawler.NewDocument(r))
	}
	return nil
}

// Finish writes the staged records, plus foreign records from the current
// file when merging, and replaces the file.
func (s *Sink) Finish(ctx context.Context) error {
	s.mu.Lock()
	docs := append([]crawler.Document(nil), s.staged...)
	s.mu.Unlock()

	if s.mergeForeign {
		foreign, err := s.readForeign()
		if err != nil {
			return err
		}
		docs = append(docs, foreign...)
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].UniqueID > docs[j].UniqueID })
	if docs == nil {
		docs = []crawler.Document{}
	}

	payload, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	uri, err := s.store.PutObject(ctx, filepath.Base(s.path), "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	s.logger.Info("index written", zap.String("uri", uri), zap.Int("records", len(docs)))
	return nil
}

// Close is a no-op.
func (s *Sink) Close(context.Context) error { return nil }

func (s *Sink) readForeign() ([]crawler.Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read existing index: %w", err)
	}
	var existing []crawler.Document
	if err := json.Unmarshal(data, &existing); err != nil {
		return nil, fmt.Errorf("decode existing index %s: %w", s.path, err)
	}
	var foreign []crawler.Document
	for _, d := range existing {
		if d.Foreign() {
			foreign = append(foreign, d)
		}
	}
	return foreign, nil
}
