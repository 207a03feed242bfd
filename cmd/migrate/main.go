package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	"github.com/angelmondragon/libraryhub-backend/pkg/db"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/angelmondragon/libraryhub-backend/pkg/migrate"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func main() {
	var dir string
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the library database schema with goose",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dir, "dir", migrate.DefaultDir, "goose migrations directory")

	for _, name := range migrate.Commands {
		command := name
		root.AddCommand(&cobra.Command{
			Use:   command,
			Short: "goose " + command,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(cmd.Context(), command, dir, func(ctx context.Context, sqlDB *sql.DB) error {
					return migrate.Run(ctx, sqlDB, dir, command)
				})
			},
		})
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "to <version>",
			Short: "Migrate up or down to an exact version (YYYYMMDDHHMMSS)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				target, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withDB(cmd.Context(), "to", dir, func(ctx context.Context, sqlDB *sql.DB) error {
					return migrate.MigrateToVersion(ctx, sqlDB, dir, target)
				})
			},
		},
		&cobra.Command{
			Use:   "pending",
			Short: "List migrations not yet applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(cmd.Context(), "pending", dir, func(ctx context.Context, sqlDB *sql.DB) error {
					pending, err := migrate.Pending(ctx, sqlDB, dir)
					if err != nil {
						return err
					}
					for _, m := range pending {
						fmt.Fprintf(cmd.OutOrStdout(), "%d  %s\n", m.Version, m.Name)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Write an empty SQL migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := migrate.CreateSQLMigration(dir, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created migration:", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check migration file names and goose sections",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := migrate.ValidateDir(dir); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migration validation passed")
				return nil
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

// withDB loads config and hands fn the raw connection goose needs.
func withDB(ctx context.Context, command, dir string, fn func(context.Context, *sql.DB) error) (err error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": command, "dir": dir})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "resource not working: database", err)
		return err
	}
	defer func() { err = multierr.Append(err, client.Close()) }()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}

	logg.Info(ctx, "migrate ready")
	return fn(ctx, sqlDB)
}
