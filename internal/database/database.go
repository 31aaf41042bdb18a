package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the referencefiles table if needed, so a fresh
// database bootstraps itself on first start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS referencefiles (
	referencefile_id BIGSERIAL PRIMARY KEY,
	reference_curie TEXT NOT NULL,
	display_name TEXT NOT NULL,
	file_extension TEXT NOT NULL,
	file_class TEXT NOT NULL,
	file_publication_status TEXT NOT NULL,
	pdf_type TEXT,
	mod_abbreviation TEXT,
	md5sum TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	content_text TEXT,
	is_annotation BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (reference_curie, display_name, file_extension)
);
CREATE INDEX IF NOT EXISTS idx_referencefiles_curie ON referencefiles(reference_curie);
CREATE INDEX IF NOT EXISTS idx_referencefiles_class ON referencefiles(file_class);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
