// Package postgres provides a PostgreSQL-backed persistence layer for
// finished decoder utterances (session id, selected grammar, hypothesis
// text, score, frame count, and segmentation), grounded on the teacher's
// pkg/memory/postgres package (pool construction, idempotent migration,
// fmt.Errorf wrapping convention).
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlUtterances = `
CREATE TABLE IF NOT EXISTS utterances (
    id           BIGSERIAL    PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    grammar      TEXT         NOT NULL DEFAULT '',
    hypothesis   TEXT         NOT NULL DEFAULT '',
    score        INTEGER      NOT NULL DEFAULT 0,
    frame_count  INTEGER      NOT NULL DEFAULT 0,
    segmentation JSONB        NOT NULL DEFAULT '[]',
    finished_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_utterances_session_id
    ON utterances (session_id);

CREATE INDEX IF NOT EXISTS idx_utterances_finished_at
    ON utterances (finished_at);
`

// Migrate creates the utterances table and its indexes if they do not
// already exist. It is idempotent and safe to call on every application
// start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlUtterances); err != nil {
		return fmt.Errorf("postgres store: migrate: %w", err)
	}
	return nil
}
