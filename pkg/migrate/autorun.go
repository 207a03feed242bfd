package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	"github.com/angelmondragon/libraryhub-backend/pkg/db"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
)

// MaybeRunDev updates the schema on startup, but only in dev with the
// auto-migrate flag on. Postgres gets the goose files; a sqlite file is
// built straight from the models since the SQL is Postgres-only.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	driver := db.Driver(cfg.DB)
	ctx = logg.WithFields(ctx, map[string]any{"driver": driver, "dir": DefaultDir})

	if driver == db.DriverSQLite {
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite automigrate: %w", err)
		}
		logg.Info(ctx, "migrate.dev.automigrated")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return err
	}
	logg.Info(ctx, "migrate.dev.up_complete")
	return nil
}
