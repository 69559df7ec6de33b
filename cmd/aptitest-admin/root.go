package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/database"
	"github.com/stemsi/aptitest-backend/internal/logger"
	"github.com/stemsi/aptitest-backend/internal/repository"
)

var rootCmd = &cobra.Command{
	Use:          "aptitest-admin",
	Short:        "Operator tools for the aptitude test backend",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("store", "", "Store driver: postgres or sqlite (overrides STORE_DRIVER)")

	rootCmd.AddCommand(codesCmd)
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(hashAdminCodeCmd)
}

// env loads configuration and a logger, honoring the --store flag.
func env(cmd *cobra.Command) (*config.Config, zerolog.Logger) {
	cfg := config.Load()
	if s, _ := cmd.Flags().GetString("store"); s != "" {
		cfg.StoreDriver = s
	}
	return cfg, logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

// openStore connects the durable store selected by the configuration.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repository.Set, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresSet(pool), pool.Close, nil
	case config.DriverSQLite:
		db, err := database.NewSQLite(ctx, cfg.SQLiteDSN, log)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLiteSet(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
