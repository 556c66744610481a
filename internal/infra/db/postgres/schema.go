package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Schema is applied at startup and by the integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS launch_jobs (
    id              TEXT PRIMARY KEY,
    idempotency_key TEXT        NOT NULL,
    user_id         TEXT        NOT NULL,
    product_id      TEXT        NOT NULL DEFAULT '',
    launch_mode     TEXT        NOT NULL,
    status          TEXT        NOT NULL,
    correlation_tag TEXT        NOT NULL DEFAULT '',
    config          JSONB,
    results         JSONB       NOT NULL DEFAULT '{}'::jsonb,
    error_log       JSONB,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS launch_jobs_idempotency_key_uq
    ON launch_jobs (idempotency_key);

CREATE INDEX IF NOT EXISTS launch_jobs_in_flight_idx
    ON launch_jobs (updated_at)
    WHERE status NOT IN ('SUCCEEDED', 'FAILED');
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
