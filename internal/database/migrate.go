package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		image         TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS user_keys (
		user_id    TEXT PRIMARY KEY,
		public_key TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id                       TEXT PRIMARY KEY,
		sender_id                TEXT NOT NULL,
		receiver_id              TEXT NOT NULL,
		content                  TEXT NOT NULL,
		image_url                TEXT,
		encrypted_aes_key        TEXT,
		sender_encrypted_aes_key TEXT,
		created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		read_at                  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_pair_time
		ON chat_messages (sender_id, receiver_id, created_at)`,
}

// Migrate applies the schema statements in order. Every statement is
// idempotent, so re-running on startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
