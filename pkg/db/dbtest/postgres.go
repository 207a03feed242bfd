package dbtest

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresDSNEnv names the database used by tests that need real row locks.
const PostgresDSNEnv = "LIBRARY_TEST_POSTGRES_DSN"

// Statements collects the SQL built by a dry-run handle.
type Statements struct {
	mu  sync.Mutex
	sql []string
}

func (s *Statements) add(sql string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sql = append(s.sql, sql)
}

// All returns the statements built so far, in order.
func (s *Statements) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sql...)
}

// Last returns the most recent statement, or "" when nothing was built.
func (s *Statements) Last() string {
	all := s.All()
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}

// PostgresDryRun returns a postgres-dialect handle that renders queries
// without connecting, so tests can assert the exact SQL Postgres would see.
func PostgresDryRun(t testing.TB) (*gorm.DB, *Statements) {
	t.Helper()
	conn, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost dbname=library_dryrun sslmode=disable"}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open postgres dry run: %v", err)
	}

	stmts := &Statements{}
	record := func(db *gorm.DB) { stmts.add(db.Statement.SQL.String()) }
	if err := conn.Callback().Query().After("gorm:query").Register("dbtest:record_query", record); err != nil {
		t.Fatalf("register query recorder: %v", err)
	}
	if err := conn.Callback().Delete().After("gorm:delete").Register("dbtest:record_delete", record); err != nil {
		t.Fatalf("register delete recorder: %v", err)
	}
	return conn, stmts
}

// Postgres opens the database named by PostgresDSNEnv and migrates the
// models into it. The test is skipped when the variable is unset.
func Postgres(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}
