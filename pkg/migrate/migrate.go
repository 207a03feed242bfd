// Package migrate wraps goose for the Postgres schema under DefaultDir.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

const (
	DefaultDir = "pkg/migrate/migrations"
	dialect    = "postgres"
)

// Commands lists the goose commands Run accepts.
var Commands = []string{"up", "up-by-one", "down", "redo", "status", "version"}

func prepare(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Run executes one of Commands against db. goose prints its own progress.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	known := false
	for _, c := range Commands {
		known = known || c == command
	}
	if !known {
		return fmt.Errorf("unsupported goose command %q", command)
	}
	if err := prepare(db); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until target is the newest
// applied version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, target int64) error {
	if err := prepare(db); err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current < target:
		err = goose.UpToContext(ctx, db, dir, target)
	case current > target:
		err = goose.DownToContext(ctx, db, dir, target)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

// Pending returns migrations in dir newer than the database version.
func Pending(ctx context.Context, db *sql.DB, dir string) ([]Migration, error) {
	all, err := ListDir(dir)
	if err != nil {
		return nil, err
	}
	if err := prepare(db); err != nil {
		return nil, err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	var pending []Migration
	for _, m := range all {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending, nil
}
