package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresWriter mirrors points into a SQL table with JSONB tags and fields
type PostgresWriter struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresWriter connects to dsn and creates the table if needed
func NewPostgresWriter(ctx context.Context, dsn, table string) (*PostgresWriter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	w := &PostgresWriter{pool: pool, table: pgx.Identifier{table}.Sanitize()}
	if err := w.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

func (w *PostgresWriter) ensureTable(ctx context.Context) error {
	_, err := w.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+w.table+` (
    id          BIGSERIAL PRIMARY KEY,
    ts          TIMESTAMPTZ NOT NULL,
    measurement TEXT NOT NULL,
    bucket      TEXT NOT NULL,
    org         TEXT NOT NULL,
    tags        JSONB NOT NULL,
    fields      JSONB NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", w.table, err)
	}
	return nil
}

func (w *PostgresWriter) Write(ctx context.Context, bucket, org string, p Point) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	fields, err := json.Marshal(p.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO `+w.table+` (ts, measurement, bucket, org, tags, fields) VALUES ($1,$2,$3,$4,$5,$6)`,
		p.Time, p.Measurement, bucket, org, string(tags), string(fields))
	if err != nil {
		return fmt.Errorf("postgres insert: %w", err)
	}
	return nil
}

func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}
