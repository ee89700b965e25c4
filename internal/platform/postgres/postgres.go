// Package postgres opens the relational store and keeps its schema in place.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the four registry tables and their indexes if missing.
// BIGSERIAL ids double as the audit trail's monotonic read-order key.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS identities (
			id BIGSERIAL PRIMARY KEY,
			identifier TEXT UNIQUE NOT NULL,
			platform TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cases (
			id BIGSERIAL PRIMARY KEY,
			identity_id BIGINT NOT NULL REFERENCES identities(id),
			case_type TEXT NOT NULL,
			platform TEXT NOT NULL,
			reason TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'OPEN',
			mirror_thread_ref TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS case_events (
			id BIGSERIAL PRIMARY KEY,
			case_id BIGINT NOT NULL REFERENCES cases(id),
			event_type TEXT NOT NULL,
			message TEXT NOT NULL,
			author TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS identity_intel (
			id BIGSERIAL PRIMARY KEY,
			identity_id BIGINT NOT NULL REFERENCES identities(id),
			intel_type TEXT NOT NULL,
			value TEXT NOT NULL,
			author TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_identity_id ON cases(identity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_type ON cases(case_type)`,
		`CREATE INDEX IF NOT EXISTS idx_identities_identifier ON identities(identifier)`,
		`CREATE INDEX IF NOT EXISTS idx_events_case_id ON case_events(case_id)`,
		`CREATE INDEX IF NOT EXISTS idx_intel_identity_id ON identity_intel(identity_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
