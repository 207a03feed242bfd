// Command libraryctl is the operator tool for catalog imports and admin
// account bootstrap. It talks to the database directly.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	"github.com/angelmondragon/libraryhub-backend/pkg/db"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// env is what every subcommand needs once config and the database are up.
type env struct {
	cfg  *config.Config
	logg *logger.Logger
	db   *db.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "libraryctl",
		Short:         "Operator commands for the library backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newImportBooksCmd(), newCreateAdminCmd(), newPromoteCmd())
	return root
}

// withEnv loads config, opens the database and closes it after fn returns.
func withEnv(ctx context.Context, fn func(ctx context.Context, e *env) error) (err error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "libraryctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		Output:      os.Stderr,
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { err = multierr.Append(err, client.Close()) }()

	return fn(logg.WithField(ctx, "env", cfg.App.Env), &env{cfg: cfg, logg: logg, db: client})
}
