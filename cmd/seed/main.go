// Command seed writes the demo data into Postgres and prints a bearer
// token per demo user. The in-memory store lives inside cmd/ledger, so
// there is nothing to seed without DATABASE_URL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"banking_ledger/internal/api/middleware"
	"banking_ledger/internal/config"
	"banking_ledger/internal/logging"
	"banking_ledger/internal/repository/gormstore"
	"banking_ledger/internal/seed"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	if cfg.Database.Driver != "postgres" {
		logger.Error("Seeding needs DATABASE_URL; the memory store is not shared between processes")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := gormstore.Open(cfg.Database.URL)
	if err != nil {
		logger.Error("Failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Error("Migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if _, err := seed.Run(ctx, store, time.Now().UTC(), logger); err != nil {
		logger.Error("Seeding failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	for _, userID := range seed.Users {
		token, expiresAt, err := middleware.IssueToken(cfg.Auth.JWTSecret, userID, cfg.Auth.TokenTTL)
		if err != nil {
			logger.Error("Failed to issue token", slog.String("user_id", userID), slog.String("error", err.Error()))
			os.Exit(1)
		}
		fmt.Printf("%s\t%s\t(expires %s)\n", userID, token, expiresAt.Format(time.RFC3339))
	}
}
