package loans

import (
	"context"
	"strings"
	"testing"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/dbtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockQueriesRenderForUpdateOnPostgres(t *testing.T) {
	conn, stmts := dbtest.PostgresDryRun(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	cases := []struct {
		name string
		run  func() error
	}{
		{"LockByID", func() error { _, err := repo.LockByID(ctx, uuid.New()); return err }},
		{"LockActiveForUserBook", func() error { _, err := repo.LockActiveForUserBook(ctx, uuid.New(), uuid.New()); return err }},
		{"LockByUser", func() error { _, err := repo.LockByUser(ctx, uuid.New()); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.run())
			sql := stmts.Last()
			assert.Contains(t, sql, `FROM "loans"`)
			assert.True(t, strings.HasSuffix(sql, "FOR UPDATE"), sql)
		})
	}
}

func TestBookIDOfDoesNotLock(t *testing.T) {
	conn, stmts := dbtest.PostgresDryRun(t)
	_, err := NewRepository(conn).BookIDOf(context.Background(), uuid.New())
	require.NoError(t, err)
	sql := stmts.Last()
	assert.Contains(t, sql, "book_id")
	assert.Contains(t, sql, `FROM "loans"`)
	assert.NotContains(t, sql, "FOR UPDATE")
}
