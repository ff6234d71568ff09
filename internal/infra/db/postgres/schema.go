package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// schema is the full DDL for every table the repositories in this package
// query. Applied by the seed command and by integration tests.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		credits INT NOT NULL DEFAULT 0,
		allow_message_storage BOOLEAN NOT NULL DEFAULT TRUE,
		data_encrypted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		content_type TEXT NOT NULL,
		content_id TEXT NOT NULL,
		period TEXT NOT NULL DEFAULT 'daily',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_subject
		ON conversations (user_id, content_type, content_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		selected_elements JSONB,
		encrypted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages (conversation_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS birth_charts (
		content_id TEXT PRIMARY KEY,
		positions JSONB NOT NULL,
		aspects JSONB
	);`,
	`CREATE TABLE IF NOT EXISTS relationship_factors (
		content_id TEXT PRIMARY KEY,
		items JSONB NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS transit_windows (
		content_id TEXT PRIMARY KEY,
		windows JSONB NOT NULL
	);`,
}

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
