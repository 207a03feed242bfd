package auth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/libraryhub-backend/internal/users"
	pkgAuth "github.com/angelmondragon/libraryhub-backend/pkg/auth"
	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/angelmondragon/libraryhub-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testJWTConfig = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "libraryhub-test",
	ExpirationMinutes: 60,
}

// cheap argon params keep the suite fast
var testPasswordConfig = config.PasswordConfig{
	ArgonMemoryKB:    8,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     8,
	ArgonKeyLen:      16,
}

type stubSessionManager struct {
	opened  map[string]uuid.UUID
	revoked []string
	openErr error
}

func newStubSessionManager() *stubSessionManager {
	return &stubSessionManager{opened: map[string]uuid.UUID{}}
}

func (s *stubSessionManager) Open(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.openErr != nil {
		return "", s.openErr
	}
	id := uuid.NewString()
	s.opened[id] = userID
	return id, nil
}

func (s *stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	delete(s.opened, accessID)
	return nil
}

func newTestService(t *testing.T) (Service, *stubSessionManager, *gorm.DB) {
	t.Helper()
	_, conn := dbtest.NewClient(t)
	sessions := newStubSessionManager()
	svc, err := NewService(ServiceParams{
		UserRepo:       users.NewRepository(conn),
		SessionManager: sessions,
		JWTConfig:      testJWTConfig,
		PasswordConfig: testPasswordConfig,
		AdminCode:      "let-me-in",
		Logger:         logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Now:            func() time.Time { return time.Now() },
	})
	require.NoError(t, err)
	return svc, sessions, conn
}

func strPtr(value string) *string {
	return &value
}

func validRegistration() RegisterRequest {
	return RegisterRequest{
		Name:       "Ada Lovelace",
		MatricNo:   "CSC/2020/001",
		Department: "Computer Science",
		Password:   "analytical",
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRegisterStudentIssuesToken(t *testing.T) {
	svc, sessions, _ := newTestService(t)

	resp, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	require.NotNil(t, resp.User)
	assert.Equal(t, enums.RoleStudent, resp.User.Role)

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, "CSC/2020/001", claims.Subject)
	assert.Equal(t, resp.User.ID, sessions.opened[claims.ID])
}

func TestRegisterRejectsDuplicateMatricNo(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	_, err = svc.Register(ctx, validRegistration())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestRegisterAdminRequiresCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := validRegistration()
	req.Role = "admin"
	_, err := svc.Register(ctx, req)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	req.AdminCode = strPtr("wrong")
	_, err = svc.Register(ctx, req)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	req.AdminCode = strPtr("let-me-in")
	resp, err := svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleAdmin, resp.User.Role)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]func(*RegisterRequest){
		"unknown role":   func(r *RegisterRequest) { r.Role = "librarian" },
		"short password": func(r *RegisterRequest) { r.Password = "abc" },
		"blank name":     func(r *RegisterRequest) { r.Name = "  " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRegistration()
			mutate(&req)
			_, err := svc.Register(ctx, req)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestLogin(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	resp, err := svc.Login(ctx, LoginRequest{MatricNo: " CSC/2020/001 ", Password: "analytical"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	require.NotNil(t, resp.User.LastLoginAt)
	assert.Len(t, sessions.opened, 2)

	_, err = svc.Login(ctx, LoginRequest{MatricNo: "CSC/2020/001", Password: "wrong-password"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = svc.Login(ctx, LoginRequest{MatricNo: "nobody", Password: "analytical"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestLoginUpgradesOutdatedHash(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	older := testPasswordConfig
	older.ArgonKeyLen = 24
	oldHash, err := security.HashPassword("analytical", older)
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.User{}).Where("matric_no = ?", "CSC/2020/001").
		UpdateColumn("password_hash", oldHash).Error)

	_, err = svc.Login(ctx, LoginRequest{MatricNo: "CSC/2020/001", Password: "analytical"})
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, conn.First(&stored, "matric_no = ?", "CSC/2020/001").Error)
	assert.NotEqual(t, oldHash, stored.PasswordHash)
	assert.False(t, security.NeedsRehash(stored.PasswordHash, testPasswordConfig))
}

func TestLoginSessionFailure(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	sessions.openErr = errors.New("redis down")
	_, err = svc.Login(ctx, LoginRequest{MatricNo: "CSC/2020/001", Password: "analytical"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Logout(ctx, "access-1"))
	assert.Equal(t, []string{"access-1"}, sessions.revoked)

	err := svc.Logout(ctx, " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestCreateAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)

	admin, err := svc.CreateAdmin(context.Background(), CreateAdminRequest{
		Name:       "Root",
		MatricNo:   "STAFF-1",
		Department: "Library",
		Password:   "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RoleAdmin, admin.Role)

	resp, err := svc.Login(context.Background(), LoginRequest{MatricNo: "STAFF-1", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, enums.RoleAdmin, resp.User.Role)
}
