// Package postgres persists documents, pages, jobs, tables and items. All
// repositories share one *sql.DB over the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	filename TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_fingerprint ON documents(fingerprint);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS pages (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	number INTEGER NOT NULL,
	text TEXT NOT NULL,
	tokens JSONB NOT NULL DEFAULT '[]'::jsonb,
	engine TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	low_confidence BOOLEAN NOT NULL DEFAULT FALSE,
	width DOUBLE PRECISION NOT NULL DEFAULT 0,
	height DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (document_id, number)
);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	state TEXT NOT NULL,
	attempts JSONB NOT NULL DEFAULT '[]'::jsonb,
	cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_document_id ON jobs(document_id);

CREATE TABLE IF NOT EXISTS extracted_tables (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	page_number INTEGER NOT NULL,
	header JSONB NOT NULL DEFAULT '[]'::jsonb,
	rows JSONB NOT NULL DEFAULT '[]'::jsonb,
	confidence DOUBLE PRECISION NOT NULL,
	table_type TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extracted_tables_document_id ON extracted_tables(document_id);

CREATE TABLE IF NOT EXISTS financial_items (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	table_id TEXT NOT NULL DEFAULT '',
	item_type TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	raw_value TEXT NOT NULL,
	numeric_value DOUBLE PRECISION,
	currency TEXT NOT NULL DEFAULT '',
	page_number INTEGER NOT NULL,
	confidence DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_financial_items_document_id ON financial_items(document_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
