package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/libraryhub-backend/internal/users"
	pkgAuth "github.com/angelmondragon/libraryhub-backend/pkg/auth"
	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	"github.com/angelmondragon/libraryhub-backend/pkg/db"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/angelmondragon/libraryhub-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	tokenTypeBearer           = "bearer"
	matricNoUniqueConstraint  = "users_matric_no_key"
)

// Service defines the behavior needed by the auth controller and CLI.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Logout(ctx context.Context, accessID string) error
	CreateAdmin(ctx context.Context, req CreateAdminRequest) (*users.UserDTO, error)
}

type userRepository interface {
	FindByMatricNo(ctx context.Context, matricNo string) (*models.User, error)
	MatricNoTaken(ctx context.Context, matricNo string) (bool, error)
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type sessionManager interface {
	Open(ctx context.Context, userID uuid.UUID) (string, error)
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	AdminCode      string
	Logger         *logger.Logger
	Now            func() time.Time
}

type service struct {
	users     userRepository
	session   sessionManager
	jwtCfg    config.JWTConfig
	pwCfg     config.PasswordConfig
	adminCode string
	logg      *logger.Logger
	now       func() time.Time
}

// NewService constructs the auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.UserRepo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user repository is required")
	case params.SessionManager == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session manager is required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		users:     params.UserRepo,
		session:   params.SessionManager,
		jwtCfg:    params.JWTConfig,
		pwCfg:     params.PasswordConfig,
		adminCode: params.AdminCode,
		logg:      params.Logger,
		now:       now,
	}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	role := enums.RoleStudent
	if raw := strings.TrimSpace(req.Role); raw != "" {
		parsed, err := enums.ParseRole(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role")
		}
		role = parsed
	}
	if role == enums.RoleAdmin && !s.adminCodeMatches(req.AdminCode) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "invalid admin code")
	}

	user, err := s.createUser(ctx, CreateAdminRequest{
		Name:       req.Name,
		MatricNo:   req.MatricNo,
		Department: req.Department,
		Password:   req.Password,
	}, role)
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "user registered")
	return s.issue(ctx, user)
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.authenticate(ctx, req.MatricNo, req.Password)
	if err != nil {
		return nil, err
	}
	if err := s.recordLogin(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session")
	}
	if err := s.session.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

// CreateAdmin bypasses the admin code. Only operator tooling should call it.
func (s *service) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*users.UserDTO, error) {
	user, err := s.createUser(ctx, req, enums.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "admin created")
	return users.FromModel(user), nil
}

func (s *service) createUser(ctx context.Context, req CreateAdminRequest, role enums.Role) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	matricNo := strings.TrimSpace(req.MatricNo)
	department := strings.TrimSpace(req.Department)
	if name == "" || matricNo == "" || department == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name, matric_no and department are required")
	}
	if err := security.CheckPassword(req.Password); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	taken, err := s.users.MatricNoTaken(ctx, matricNo)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check matric number")
	}
	if taken {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "matric number already registered")
	}

	hash, err := security.HashPassword(req.Password, s.pwCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	user, err := s.users.Create(ctx, users.CreateUserDTO{
		Name:         name,
		MatricNo:     matricNo,
		Department:   department,
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		if db.IsUniqueViolation(err, matricNoUniqueConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "matric number already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}
	return user, nil
}

func (s *service) issue(ctx context.Context, user *models.User) (*TokenResponse, error) {
	accessID, err := s.session.Open(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open session")
	}
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now().UTC(), pkgAuth.AccessTokenPayload{
		UserID:   user.ID,
		MatricNo: user.MatricNo,
		Role:     user.Role,
		JTI:      accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int(s.jwtCfg.TokenTTL().Seconds()),
		User:        users.FromModel(user),
	}, nil
}

func (s *service) authenticate(ctx context.Context, matricNo, password string) (*models.User, error) {
	input := strings.TrimSpace(matricNo)
	if input == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByMatricNo(ctx, input)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if security.NeedsRehash(user.PasswordHash, s.pwCfg) {
		s.rehash(ctx, user, password)
	}
	return user, nil
}

// rehash upgrades a stored hash to the configured cost. Failures only cost a
// retry on the next login.
func (s *service) rehash(ctx context.Context, user *models.User, password string) {
	hash, err := security.HashPassword(password, s.pwCfg)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.logg.Warn(s.logg.WithField(s.logg.WithUserID(ctx, user.ID.String()), "error", err.Error()), "auth.rehash_failed")
		return
	}
	user.PasswordHash = hash
}

func (s *service) recordLogin(ctx context.Context, user *models.User) error {
	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last login")
	}
	user.LastLoginAt = &now
	return nil
}

func (s *service) adminCodeMatches(code *string) bool {
	if code == nil || s.adminCode == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*code), []byte(s.adminCode)) == 1
}
