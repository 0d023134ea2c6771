// Package postgres implements [store.Store] on PostgreSQL using a
// [pgxpool.Pool]. It suits deployments where several frontdesk instances
// answer calls against one shared knowledge base and request queue.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, "postgres://frontdesk@localhost/frontdesk")
//	if err != nil { … }
//	defer s.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id           TEXT         PRIMARY KEY,
    phone_number TEXT         NOT NULL UNIQUE,
    name         TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

const ddlHelpRequests = `
CREATE TABLE IF NOT EXISTS help_requests (
    seq               BIGSERIAL    PRIMARY KEY,
    id                TEXT         NOT NULL UNIQUE,
    question          TEXT         NOT NULL,
    caller_id         TEXT         NOT NULL,
    phone_number      TEXT         NOT NULL DEFAULT '',
    status            TEXT         NOT NULL DEFAULT 'pending'
                      CHECK (status IN ('pending', 'resolved', 'delivered')),
    supervisor_answer TEXT         NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    resolved_at       TIMESTAMPTZ,
    delivered_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_help_requests_status
    ON help_requests (status);`

const ddlKnowledgeBase = `
CREATE TABLE IF NOT EXISTS knowledge_base (
    id         BIGSERIAL    PRIMARY KEY,
    question   TEXT         NOT NULL,
    answer     TEXT         NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

// Migrate creates all tables used by [Store]. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlCustomers, ddlHelpRequests, ddlKnowledgeBase} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
