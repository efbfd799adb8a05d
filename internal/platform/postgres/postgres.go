// Package postgres builds the pgx pool used by the results repository and
// the audit store.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"certproof/internal/platform/config"
)

// Schema creates the tables owned by this service. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS phone_certifications (
		id               UUID PRIMARY KEY,
		session_id       UUID NOT NULL,
		phone_hash       TEXT NOT NULL,
		phone_masked     TEXT NOT NULL,
		proof_level      TEXT NOT NULL,
		trust_score      INTEGER NOT NULL CHECK (trust_score BETWEEN 0 AND 100),
		otp_verified     BOOLEAN NOT NULL,
		ussd_captured    BOOLEAN NOT NULL,
		name_matched     BOOLEAN NOT NULL,
		sms_analyzed     BOOLEAN NOT NULL,
		name_match_score DOUBLE PRECISION,
		certified_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS phone_certifications_session_idx ON phone_certifications (session_id)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id              UUID PRIMARY KEY,
		category        TEXT NOT NULL,
		timestamp       TIMESTAMPTZ NOT NULL,
		session_id      UUID,
		action          TEXT NOT NULL,
		source          TEXT NOT NULL DEFAULT '',
		outcome         TEXT NOT NULL DEFAULT '',
		reason          TEXT NOT NULL DEFAULT '',
		subject_id_hash TEXT NOT NULL DEFAULT '',
		request_id      TEXT NOT NULL DEFAULT '',
		attributes      JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_session_idx ON audit_events (session_id, timestamp)`,
}

// New opens a pool and verifies connectivity. Returns nil when the DSN is empty.
func New(ctx context.Context, cfg config.Postgres) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range Schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
