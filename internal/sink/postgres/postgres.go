// Package postgres indexes records into a Postgres table. A crawl writes to
// <table>_staging and Finish renames it over the live table in one
// transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/crawler"
)

const defaultTable = "site_search_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and target table.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// Pool is the subset of pgxpool.Pool the sink uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Sink writes records through Pool.
type Sink struct {
	pool         Pool
	table        string
	mergeForeign bool
	logger       *zap.Logger
}

// ValidateTable checks that table is usable as an unquoted identifier. Empty
// selects the default.
func ValidateTable(table string) error {
	if table == "" {
		return nil
	}
	if !validTableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

// Connect opens a pool for cfg.DSN.
func Connect(ctx context.Context, cfg Config, mergeForeign bool, logger *zap.Logger) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool, cfg.Table, mergeForeign, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool builds a Sink on an existing pool.
func NewWithPool(pool Pool, table string, mergeForeign bool, logger *zap.Logger) (*Sink, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	if table == "" {
		table = defaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{pool: pool, table: table, mergeForeign: mergeForeign, logger: logger}, nil
}

func (s *Sink) staging() string { return s.table + "_staging" }
func (s *Sink) retired() string { return s.table + "_old" }

// Init ensures the live table exists and recreates an empty staging table
// with the same shape.
func (s *Sink) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	unique_id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	content TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	hierarchy JSONB NOT NULL,
	metadata JSONB,
	weight_level INTEGER NOT NULL,
	weight_page_rank INTEGER NOT NULL,
	origin_type TEXT NOT NULL
)`, s.table),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.staging()),
		fmt.Sprintf(`CREATE TABLE %s (LIKE %s INCLUDING ALL)`, s.staging(), s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("prepare staging table: %w", err)
		}
	}
	return nil
}

// AddRecords upserts records into staging in one transaction.
func (s *Sink) AddRecords(ctx context.Context, records []crawler.ScrapedRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	unique_id, url, content, title, hierarchy, metadata, weight_level, weight_page_rank, origin_type
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (unique_id) DO UPDATE SET
	url = EXCLUDED.url,
	content = EXCLUDED.content,
	title = EXCLUDED.title,
	hierarchy = EXCLUDED.hierarchy,
	metadata = EXCLUDED.metadata,
	weight_level = EXCLUDED.weight_level,
	weight_page_rank = EXCLUDED.weight_page_rank`, s.staging())

	for _, r := range records {
		args, err := recordArgs(r)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert record %s: %w", r.UniqueID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// Finish swaps staging in for the live table.
func (s *Sink) Finish(ctx context.Context) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin swap: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if s.mergeForeign {
		merge := fmt.Sprintf(
			`INSERT INTO %s SELECT * FROM %s WHERE origin_type <> $1 ON CONFLICT (unique_id) DO NOTHING`,
			s.staging(), s.table,
		)
		tag, err := tx.Exec(ctx, merge, crawler.OriginType)
		if err != nil {
			return fmt.Errorf("merge foreign records: %w", err)
		}
		s.logger.Info("merged foreign records", zap.Int64("rows", tag.RowsAffected()))
	}
	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.retired()),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, s.table, s.retired()),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, s.staging(), s.table),
		fmt.Sprintf(`DROP TABLE %s`, s.retired()),
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("swap staging table: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit swap: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Sink) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func recordArgs(r crawler.ScrapedRecord) ([]any, error) {
	hierarchy, err := json.Marshal(r.Hierarchy)
	if err != nil {
		return nil, fmt.Errorf("marshal hierarchy: %w", err)
	}
	var metadata []byte
	if len(r.Metadata) > 0 {
		if metadata, err = json.Marshal(r.Metadata); err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	return []any{
		r.UniqueID,
		r.URL,
		r.Content,
		r.Title,
		hierarchy,
		metadata,
		r.Weight.Level,
		r.Weight.PageRank,
		crawler.OriginType,
	}, nil
}
