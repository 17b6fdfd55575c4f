package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearMessages removes every stored message. The schema is preserved.
func ClearMessages(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing messages", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE messages RESTART IDENTITY`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Messages cleared", clearLogPrefix))
	return nil
}
