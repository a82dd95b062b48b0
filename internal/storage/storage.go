// Package storage resolves output locations such as "gs://bucket/dump.json"
// or "out/dump.json" to a crawler.BlobStore and the object key to write.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	gcsapi "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/site-spider/internal/crawler"
	"github.com/JakeFAU/site-spider/internal/storage/gcs"
	"github.com/JakeFAU/site-spider/internal/storage/local"
)

const gcsScheme = "gs://"

// Location is a parsed output location.
type Location struct {
	// Bucket is set for gs:// locations.
	Bucket string
	// Dir is the local directory for filesystem locations.
	Dir string
	Key string
}

// IsGCS reports whether l points at Cloud Storage.
func (l Location) IsGCS() bool { return l.Bucket != "" }

// ParseLocation splits raw into bucket or directory plus key.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, errors.New("output location is required")
	}
	if rest, ok := strings.CutPrefix(raw, gcsScheme); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if bucket == "" || !found || strings.Trim(key, "/") == "" {
			return Location{}, fmt.Errorf("gcs location %q must be gs://bucket/object", raw)
		}
		return Location{Bucket: bucket, Key: strings.Trim(key, "/")}, nil
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return Location{}, fmt.Errorf("resolve %q: %w", raw, err)
	}
	return Location{Dir: filepath.Dir(abs), Key: filepath.Base(abs)}, nil
}

// ClientFactory builds Cloud Storage clients.
type ClientFactory interface {
	NewClient(ctx context.Context) (*gcsapi.Client, error)
}

// DefaultClientFactory uses Application Default Credentials plus Options.
type DefaultClientFactory struct {
	Options []option.ClientOption
}

// NewClient implements ClientFactory.
func (f DefaultClientFactory) NewClient(ctx context.Context) (*gcsapi.Client, error) {
	client, err := gcsapi.NewClient(ctx, f.Options...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return client, nil
}

// Target is an opened location.
type Target struct {
	Store crawler.BlobStore
	Key   string
	close func() error
}

// Close releases the client behind Store, if any.
func (t Target) Close() error {
	if t.close == nil {
		return nil
	}
	return t.close()
}

// Open resolves raw to a blob store. factory may be nil for local paths.
func Open(ctx context.Context, raw string, factory ClientFactory, logger *zap.Logger) (Target, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return Target{}, err
	}
	if !loc.IsGCS() {
		store, err := local.New(local.Config{BaseDir: loc.Dir})
		if err != nil {
			return Target{}, err
		}
		return Target{Store: store, Key: loc.Key}, nil
	}
	store, closeFn, err := OpenBucket(ctx, loc.Bucket, factory, logger)
	if err != nil {
		return Target{}, err
	}
	return Target{Store: store, Key: loc.Key, close: closeFn}, nil
}

// OpenBucket connects to bucket and checks that it is reachable so that a
// misconfigured crawl fails before fetching anything.
func OpenBucket(
	ctx context.Context,
	bucket string,
	factory ClientFactory,
	logger *zap.Logger,
) (*gcs.BlobStore, func() error, error) {
	if factory == nil {
		factory = DefaultClientFactory{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := factory.NewClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close gcs client after bucket check", zap.Error(closeErr))
		}
		return nil, nil, fmt.Errorf("get gcs bucket %q attributes: %w", bucket, err)
	}
	store, err := gcs.New(client, gcs.Config{Bucket: bucket})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client.Close, nil
}
