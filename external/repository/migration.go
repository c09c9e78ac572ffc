package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE deny_list_category AS ENUM ('nationality', 'identity'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN CREATE TYPE deny_list_status AS ENUM ('active', 'invalid'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS deny_list_entries (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		category deny_list_category NOT NULL,
		value TEXT NOT NULL,
		status deny_list_status NOT NULL DEFAULT 'active',
		reason TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(category, value)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deny_list_active ON deny_list_entries (category) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS review_audits (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id TEXT NOT NULL,
		thread_id TEXT NOT NULL,
		applicant_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		log_lines TEXT[] NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_review_audits_session ON review_audits (session_id)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
