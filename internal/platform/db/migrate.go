package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// accountsDDL holds the credential store schema. The unique indexes on
// username and person_id are what serialize concurrent check-then-insert
// provisioning attempts: the second insert for the same person fails at the
// store boundary instead of creating a duplicate account.
const accountsDDL = `
CREATE TABLE IF NOT EXISTS account (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	person_id     TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS account_username_key ON account (username);
CREATE UNIQUE INDEX IF NOT EXISTS account_person_id_key ON account (person_id) WHERE person_id IS NOT NULL;
`

// Migrate applies the credential store schema. Safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, accountsDDL); err != nil {
		return fmt.Errorf("apply account schema: %w", err)
	}
	return nil
}
