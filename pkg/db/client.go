// Package db owns the gorm connection: opening it for the configured driver,
// tuning its pool and running transactions.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Client struct {
	conn *gorm.DB
}

// New opens the database. Postgres is the production driver; sqlite serves
// local runs against a file.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	var dialector gorm.Dialector
	switch Driver(cfg) {
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		// Simple protocol keeps pgbouncer in transaction mode happy.
		dialector = postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newGormLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", Driver(cfg), err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", Driver(cfg), err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "driver", Driver(cfg)), "database connection established")
	}
	return &Client{conn: conn}, nil
}

// NewFromConn wraps a connection opened elsewhere, such as a test database.
func NewFromConn(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

// Driver maps the configured name onto DriverPostgres or DriverSQLite.
func Driver(cfg config.DBConfig) string {
	if strings.EqualFold(strings.TrimSpace(cfg.Driver), DriverSQLite) {
		return DriverSQLite
	}
	return DriverPostgres
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction. An error or panic from fn rolls back; the
// panic is re-raised afterwards.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
