// Package dbtest opens isolated in-memory databases for package tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/angelmondragon/libraryhub-backend/pkg/db"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New returns a migrated sqlite database private to the calling test.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:library_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// NewClient wraps New in a db.Client.
func NewClient(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := New(t)
	return db.NewFromConn(conn), conn
}
