package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/events.sql
var eventsSchemaSQL string

//go:embed migrations/elections.sql
var electionsSchemaSQL string

// MigrateEvents applies Events' schema. Idempotent: every statement is
// CREATE ... IF NOT EXISTS or CREATE OR REPLACE.
func MigrateEvents(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, eventsSchemaSQL); err != nil {
		return fmt.Errorf("run events migrations: %w", err)
	}
	return nil
}

// MigrateElections applies Elections' schema.
func MigrateElections(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, electionsSchemaSQL); err != nil {
		return fmt.Errorf("run elections migrations: %w", err)
	}
	return nil
}
