package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"tweetharvest/pkg/twitter"
)

// execer is the part of *pgxpool.Pool the sink needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink upserts records into a table of (id, doc, fetched_at). The id
// column is numeric(20,0) because post identifiers use the full uint64 range.
type PostgresSink struct {
	db    execer
	close func()
	table string
	now   func() time.Time
}

// OpenPostgres connects to dsn and creates table if needed.
func OpenPostgres(ctx context.Context, dsn, table string, maxConns int32) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive dsn parse: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive connect: %w", err)
	}

	sink := newPostgresSink(pool, table)
	sink.close = pool.Close
	if err := sink.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

func newPostgresSink(db execer, table string) *PostgresSink {
	return &PostgresSink{
		db:    db,
		close: func() {},
		table: pgx.Identifier{table}.Sanitize(),
		now:   time.Now,
	}
}

func (s *PostgresSink) ensureTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
		    id         numeric(20,0) PRIMARY KEY,
		    doc        jsonb NOT NULL,
		    fetched_at timestamptz NOT NULL
		)`, s.table))
	if err != nil {
		return fmt.Errorf("archive create table: %w", err)
	}
	return nil
}

// WriteRecord upserts rec; a later fetch of the same post replaces the document.
func (s *PostgresSink) WriteRecord(ctx context.Context, rec twitter.Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %d: %w", rec.ID, err)
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, doc, fetched_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, fetched_at = EXCLUDED.fetched_at`,
		s.table,
	), numericID(rec.ID), doc, s.now().UTC())
	if err != nil {
		return fmt.Errorf("archive upsert %d: %w", rec.ID, err)
	}
	return nil
}

func numericID(id uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(id), Valid: true}
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	s.close()
	return nil
}

// MultiRecordSink writes every record to each sink in order.
type MultiRecordSink []RecordSink

// WriteRecord stops at the first sink that fails.
func (m MultiRecordSink) WriteRecord(ctx context.Context, rec twitter.Record) error {
	for _, s := range m {
		if err := s.WriteRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and returns the first error.
func (m MultiRecordSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
