// Package main is the entrypoint for straca.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stracadev/straca/internal/config"
	"github.com/stracadev/straca/internal/server"
	"github.com/stracadev/straca/pkg/db"
)

const usage = `Usage: straca [command]
       straca serve              Start straca (HTTP, optional COMMS transport and event relay).
       straca migrate up         Run message store migrations.
       straca migrate down       Roll back one migration (not supported by the current schema).
       straca migrate status     Show migration status.
       straca ensure-db [name]   Create database if missing (default name: straca_test). Uses DATABASE_URL host/user.
       straca clear              Delete all stored messages; schema is preserved.

Commands:
  serve            (default) Start the server.
  migrate up       Run database migrations only.
  migrate down     Roll back last migration (no-op).
  migrate status   Show current migration status.
  ensure-db [name] Create database (e.g. straca_test) on the same host as DATABASE_URL.
  clear            Truncate the messages table.
  help             Show this text.

Environment: DATABASE_URL (empty selects the in-memory store), MIGRATION_PATH, STRACA_HTTP_ADDR,
COMMS_URL, AUTH_ENABLED, MANIFEST_FILE. See README.
`

var errUnknownCommand = errors.New("unknown command")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errUnknownCommand) {
			fmt.Fprintf(os.Stderr, "%v\n%s", err, usage)
			os.Exit(1)
		}
		log.Fatalf("straca: %v", err)
	}
}

func run(args []string) error {
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			return fmt.Errorf("migrate: require subcommand (up, down, status)")
		}
		switch sub := args[1]; sub {
		case "up":
			return withPool(runMigrateUp)
		case "status":
			return withPool(func(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
				return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
			})
		case "down":
			return withPool(func(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
				return db.MigrationDown(ctx, pool, cfg.MigrationPath)
			})
		default:
			return fmt.Errorf("migrate: %w %q (use up, down, status)", errUnknownCommand, sub)
		}
	case "clear":
		return withPool(func(ctx context.Context, pool *pgxpool.Pool, _ *config.Config) error {
			if err := db.ClearMessages(ctx, pool); err != nil {
				return fmt.Errorf("clear messages: %w", err)
			}
			fmt.Println("Messages cleared.")
			return nil
		})
	case "ensure-db":
		dbName := "straca_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		return runEnsureDB(dbName)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	case "serve", "":
		return server.Run()
	default:
		return fmt.Errorf("%w %q", errUnknownCommand, cmd)
	}
}

// withPool loads DB config, opens a pool for the duration of fn and closes it.
func withPool(fn func(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, pool, cfg)
}

func runMigrateUp(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Printf("Applied %d migration(s) from %s.\n", len(migrations), cfg.MigrationPath)
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	targetURL, err := db.WithDatabase(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}
