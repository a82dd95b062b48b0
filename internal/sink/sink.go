// Package sink opens the indexing backend a crawl writes records to.
//
// Every backend follows the same lifecycle: Init prepares a staging area,
// AddRecords writes into it, and Finish swaps staging in for the live index
// in one step so readers never observe a half-built index.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/crawler"
	filesink "github.com/JakeFAU/site-spider/internal/sink/file"
	gcssink "github.com/JakeFAU/site-spider/internal/sink/gcs"
	memsink "github.com/JakeFAU/site-spider/internal/sink/memory"
	mongosink "github.com/JakeFAU/site-spider/internal/sink/mongo"
	pgsink "github.com/JakeFAU/site-spider/internal/sink/postgres"
	"github.com/JakeFAU/site-spider/internal/storage"
)

// Sink types.
const (
	TypeMemory   = "memory"
	TypeFile     = "file"
	TypePostgres = "postgres"
	TypeMongo    = "mongo"
	TypeGCS      = "gcs"
)

// ErrUnknownSink is returned by Open for an unsupported type.
var ErrUnknownSink = errors.New("unknown sink type")

// Config selects and configures a sink.
type Config struct {
	Type string `mapstructure:"type"`
	// MergeForeign carries records that were not produced by a crawl over
	// from the live index when staging is promoted.
	MergeForeign bool             `mapstructure:"merge_foreign"`
	File         filesink.Config  `mapstructure:"file"`
	Postgres     pgsink.Config    `mapstructure:"postgres"`
	Mongo        mongosink.Config `mapstructure:"mongo"`
	GCS          gcssink.Config   `mapstructure:"gcs"`
}

// Deps are optional collaborators for Open.
type Deps struct {
	Logger *zap.Logger
	// GCSClients builds Cloud Storage clients for the gcs sink.
	GCSClients storage.ClientFactory
}

// Closer is implemented by sinks that hold connections.
type Closer interface {
	Close(ctx context.Context) error
}

// Validate checks cfg without connecting to anything.
func (cfg Config) Validate() error {
	switch normalizeType(cfg.Type) {
	case TypeMemory:
		return nil
	case TypeFile:
		if strings.TrimSpace(cfg.File.Path) == "" {
			return errors.New("sink.file.path is required")
		}
	case TypePostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("sink.postgres.dsn is required")
		}
		return pgsink.ValidateTable(cfg.Postgres.Table)
	case TypeMongo:
		if cfg.Mongo.URI == "" || cfg.Mongo.Database == "" {
			return errors.New("sink.mongo.uri and sink.mongo.database are required")
		}
	case TypeGCS:
		if cfg.GCS.Bucket == "" || cfg.GCS.Object == "" {
			return errors.New("sink.gcs.bucket and sink.gcs.object are required")
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownSink, cfg.Type)
	}
	return nil
}

// Open builds the sink named by cfg.Type.
func Open(ctx context.Context, cfg Config, deps Deps) (crawler.Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("sink")

	switch normalizeType(cfg.Type) {
	case TypeMemory:
		return memsink.New(cfg.MergeForeign), nil
	case TypeFile:
		return filesink.New(cfg.File, cfg.MergeForeign, logger)
	case TypePostgres:
		return pgsink.Connect(ctx, cfg.Postgres, cfg.MergeForeign, logger)
	case TypeMongo:
		return mongosink.Connect(ctx, cfg.Mongo, cfg.MergeForeign, logger)
	default:
		store, closeFn, err := storage.OpenBucket(ctx, cfg.GCS.Bucket, deps.GCSClients, logger)
		if err != nil {
			return nil, err
		}
		return gcssink.New(store, cfg.GCS, cfg.MergeForeign, closeFn, logger), nil
	}
}

// Close closes s when it holds resources.
func Close(ctx context.Context, s crawler.Sink) error {
	if c, ok := s.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return TypeMemory
	}
	return t
}
