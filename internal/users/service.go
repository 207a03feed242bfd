package users

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/libraryhub-backend/internal/holds"
	"github.com/angelmondragon/libraryhub-backend/internal/loans"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/angelmondragon/libraryhub-backend/pkg/pagination"
	"github.com/angelmondragon/libraryhub-backend/pkg/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ListQuery carries admin listing filters.
type ListQuery struct {
	Role   string
	Query  string
	Limit  int
	Cursor string
}

// UpdateInput is an admin edit. Nil fields keep their value.
type UpdateInput struct {
	Name       *string
	Department *string
	Role       *string
}

// SelfUpdateInput is what a user may change on their own profile.
type SelfUpdateInput struct {
	Name           *string
	Department     *string
	ProfilePicture *storage.Upload
}

// Service exposes account management.
type Service interface {
	List(ctx context.Context, query ListQuery) (UserPageDTO, error)
	Me(ctx context.Context, userID uuid.UUID) (UserDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (UserDTO, error)
	UpdateMe(ctx context.Context, userID uuid.UUID, input SelfUpdateInput) (UserDTO, error)
	Delete(ctx context.Context, actorID, id uuid.UUID) error
	Promote(ctx context.Context, matricNo string) (UserDTO, error)
}

// ServiceParams groups dependencies for the user service.
type ServiceParams struct {
	Tx       txRunner
	Repo     *Repository
	LoanRepo *loans.Repository
	HoldRepo *holds.Repository
	Store    storage.Store
	Logger   *logger.Logger
}

type service struct {
	tx       txRunner
	repo     *Repository
	loanRepo *loans.Repository
	holdRepo *holds.Repository
	store    storage.Store
	logg     *logger.Logger
}

// NewService builds a user service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user repo is required")
	case params.LoanRepo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan repo is required")
	case params.HoldRepo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold repo is required")
	case params.Store == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "blob store is required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &service{
		tx:       params.Tx,
		repo:     params.Repo,
		loanRepo: params.LoanRepo,
		holdRepo: params.HoldRepo,
		store:    params.Store,
		logg:     params.Logger,
	}, nil
}

func (s *service) List(ctx context.Context, query ListQuery) (UserPageDTO, error) {
	filter := ListFilter{Query: query.Query}
	if raw := strings.TrimSpace(query.Role); raw != "" {
		role, err := enums.ParseRole(raw)
		if err != nil {
			return UserPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role filter")
		}
		filter.Role = role
	}

	rows, next, err := s.repo.List(ctx, filter, pagination.Params{Limit: query.Limit, Cursor: query.Cursor})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return UserPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return UserPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	return UserPageDTO{Users: fromModels(rows), NextCursor: next}, nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (UserDTO, error) {
	user, err := s.load(ctx, s.repo, userID)
	if err != nil {
		return UserDTO{}, err
	}
	return *FromModel(user), nil
}

// Update applies an admin edit, including role changes.
func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (UserDTO, error) {
	var role *enums.Role
	if input.Role != nil && strings.TrimSpace(*input.Role) != "" {
		parsed, err := enums.ParseRole(*input.Role)
		if err != nil {
			return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role")
		}
		role = &parsed
	}

	var updated *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		applyProfile(user, input.Name, input.Department)
		if role != nil {
			user.Role = *role
		}
		if err := repo.SaveProfile(ctx, user); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
		}
		updated = user
		return nil
	})
	if err != nil {
		return UserDTO{}, err
	}

	s.logg.Info(s.logg.WithField(ctx, "target_user_id", id.String()), "user updated")
	return *FromModel(updated), nil
}

// UpdateMe edits the caller's own profile. A new picture is stored before the
// row changes; the previous one is removed after commit.
func (s *service) UpdateMe(ctx context.Context, userID uuid.UUID, input SelfUpdateInput) (UserDTO, error) {
	var staged *storage.Object
	if input.ProfilePicture != nil {
		obj, err := storage.PutImage(ctx, s.store, storage.PrefixProfilePictures, *input.ProfilePicture)
		if err != nil {
			if errors.Is(err, storage.ErrUnsupportedImage) {
				return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported image format")
			}
			return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store profile picture")
		}
		staged = &obj
	}

	var (
		updated *models.User
		oldKey  string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := s.load(ctx, repo, userID)
		if err != nil {
			return err
		}
		applyProfile(user, input.Name, input.Department)
		if staged != nil {
			if user.ProfilePictureKey != nil {
				oldKey = *user.ProfilePictureKey
			}
			user.ProfilePictureURL = &staged.URL
			user.ProfilePictureKey = &staged.Key
		}
		if err := repo.SaveProfile(ctx, user); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
		}
		updated = user
		return nil
	})
	if err != nil {
		return UserDTO{}, storage.Discard(ctx, s.store, staged, err)
	}

	s.removeBlob(ctx, oldKey)
	s.logg.Info(ctx, "profile updated")
	return *FromModel(updated), nil
}

// Delete removes an account with no copies out, along with its holds and
// loan history. Admins cannot delete themselves.
func (s *service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	if actorID == id {
		return pkgerrors.New(pkgerrors.CodeInvalidOp, "cannot delete your own account")
	}

	var pictureKey string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}

		loanRepo := s.loanRepo.WithTx(tx)
		held, err := loanRepo.LockByUser(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock loans")
		}
		var active int64
		for _, loan := range held {
			if loan.IsActive() {
				active++
			}
		}
		if active > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "user has books on loan").
				WithDetails(map[string]any{"active_loans": active})
		}
		if err := s.holdRepo.WithTx(tx).DeleteByUser(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete holds")
		}
		if err := loanRepo.DeleteByUser(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete loans")
		}
		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete user")
		}
		if user.ProfilePictureKey != nil {
			pictureKey = *user.ProfilePictureKey
		}
		return nil
	})
	if err != nil {
		return err
	}

	ctx = s.logg.WithField(ctx, "target_user_id", id.String())
	s.removeBlob(ctx, pictureKey)
	s.logg.Info(ctx, "user deleted")
	return nil
}

// Promote grants the admin role to the account with matricNo.
func (s *service) Promote(ctx context.Context, matricNo string) (UserDTO, error) {
	matricNo = strings.TrimSpace(matricNo)
	if matricNo == "" {
		return UserDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "matric number is required")
	}
	user, err := s.repo.FindByMatricNo(ctx, matricNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	admin := string(enums.RoleAdmin)
	return s.Update(ctx, user.ID, UpdateInput{Role: &admin})
}

func (s *service) load(ctx context.Context, repo *Repository, id uuid.UUID) (*models.User, error) {
	user, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) removeBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "blob_key", key), "failed to remove stale profile picture: "+err.Error())
	}
}

func applyProfile(user *models.User, name, department *string) {
	if name != nil {
		if trimmed := strings.TrimSpace(*name); trimmed != "" {
			user.Name = trimmed
		}
	}
	if department != nil {
		if trimmed := strings.TrimSpace(*department); trimmed != "" {
			user.Department = trimmed
		}
	}
}
