// Package mongo indexes records into a MongoDB collection through a staging
// collection that Finish renames over the live one.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/crawler"
)

const (
	defaultCollection = "site_search_records"
	connectTimeout    = 10 * time.Second
)

// Config locates the database and collection.
type Config struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// Sink writes documents to <collection>_staging and promotes it on Finish.
type Sink struct {
	client       *mongo.Client
	db           *mongo.Database
	collection   string
	mergeForeign bool
	logger       *zap.Logger
}

// Connect dials cfg.URI and pings the server.
func Connect(ctx context.Context, cfg Config, mergeForeign bool, logger *zap.Logger) (*Sink, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, errors.New("mongo uri and database are required")
	}
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := New(client.Database(cfg.Database), cfg.Collection, mergeForeign, logger)
	s.client = client
	return s, nil
}

// New builds a Sink on db. Close does not disconnect db's client.
func New(db *mongo.Database, collection string, mergeForeign bool, logger *zap.Logger) *Sink {
	if collection == "" {
		collection = defaultCollection
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{db: db, collection: collection, mergeForeign: mergeForeign, logger: logger}
}

func (s *Sink) staging() string { return s.collection + "_staging" }

// Init drops any leftover staging collection.
func (s *Sink) Init(ctx context.Context) error {
	if err := s.db.Collection(s.staging()).Drop(ctx); err != nil {
		return fmt.Errorf("drop staging collection: %w", err)
	}
	return nil
}

// AddRecords upserts records into staging keyed by uniqueId.
func (s *Sink) AddRecords(ctx context.Context, records []crawler.ScrapedRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: r.UniqueID}}).
			SetReplacement(crawler.NewDocument(r)).
			SetUpsert(true))
	}
	opts := options.BulkWrite().SetOrdered(false)
	if _, err := s.db.Collection(s.staging()).BulkWrite(ctx, models, opts); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}

// Finish copies foreign documents into staging when merging, then renames
// staging over the live collection.
func (s *Sink) Finish(ctx context.Context) error {
	if s.mergeForeign {
		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.D{{Key: "originType", Value: bson.D{{Key: "$ne", Value: crawler.OriginType}}}}}},
			{{Key: "$merge", Value: bson.D{
				{Key: "into", Value: s.staging()},
				{Key: "whenMatched", Value: "keepExisting"},
			}}},
		}
		cursor, err := s.db.Collection(s.collection).Aggregate(ctx, pipeline)
		if err != nil {
			return fmt.Errorf("merge foreign documents: %w", err)
		}
		_ = cursor.Close(ctx)
	}

	ns := func(c string) string { return s.db.Name() + "." + c }
	cmd := bson.D{
		{Key: "renameCollection", Value: ns(s.staging())},
		{Key: "to", Value: ns(s.collection)},
		{Key: "dropTarget", Value: true},
	}
	if err := s.db.Client().Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("promote staging collection: %w", err)
	}
	s.logger.Info("collection promoted", zap.String("collection", ns(s.collection)))
	return nil
}

// Close disconnects a client opened by Connect.
func (s *Sink) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}
