package holds

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/libraryhub-backend/internal/inventory"
	"github.com/angelmondragon/libraryhub-backend/pkg/db"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/angelmondragon/libraryhub-backend/pkg/metrics"
	"github.com/angelmondragon/libraryhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const uniqueHoldConstraint = "hold_requests_user_book_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Viewer is the authenticated caller of a listing.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.Role
}

type ListQuery struct {
	BookID uuid.UUID
	Limit  int
	Cursor string
}

// Service exposes the hold queue.
type Service interface {
	PlaceHold(ctx context.Context, userID uuid.UUID, role enums.Role, bookID uuid.UUID) (HoldDTO, error)
	List(ctx context.Context, viewer Viewer, query ListQuery) (HoldPageDTO, error)
}

// ServiceParams groups dependencies for the hold service.
type ServiceParams struct {
	Tx      txRunner
	Repo    *Repository
	Ledger  inventory.Ledger
	Metrics *metrics.CirculationMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	tx      txRunner
	repo    *Repository
	ledger  inventory.Ledger
	metrics *metrics.CirculationMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold repo is required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory ledger is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:      params.Tx,
		repo:    params.Repo,
		ledger:  params.Ledger,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// PlaceHold queues the student for a book that has no free copy. Holds are
// never promoted to loans automatically.
func (s *service) PlaceHold(ctx context.Context, userID uuid.UUID, role enums.Role, bookID uuid.UUID) (HoldDTO, error) {
	switch role {
	case enums.RoleStudent:
	case enums.RoleAdmin:
		return HoldDTO{}, s.rejected("forbidden", pkgerrors.New(pkgerrors.CodeForbidden, "only students can place holds"))
	default:
		return HoldDTO{}, s.rejected("forbidden", pkgerrors.New(pkgerrors.CodeForbidden, "unknown role"))
	}
	if userID == uuid.Nil {
		return HoldDTO{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user is required")
	}
	if bookID == uuid.Nil {
		return HoldDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}

	hold := &models.HoldRequest{
		UserID:      userID,
		BookID:      bookID,
		RequestDate: dbtypes.NewDate(s.now()),
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		repo := s.repo.WithTx(tx)

		book, err := ledger.LockBook(ctx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return s.rejected("book_missing", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "book not found"))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock book")
		}

		available, err := ledger.Available(ctx, book)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute availability")
		}
		if available > 0 {
			return s.rejected("available", pkgerrors.New(pkgerrors.CodeInvalidOp, "book is available; request a loan instead"))
		}

		exists, err := repo.Exists(ctx, userID, bookID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing hold")
		}
		if exists {
			return s.rejected("duplicate", pkgerrors.New(pkgerrors.CodeConflict, "hold already placed for this book"))
		}

		if err := repo.Create(ctx, hold); err != nil {
			if db.IsUniqueViolation(err, uniqueHoldConstraint) {
				return s.rejected("duplicate", pkgerrors.Wrap(pkgerrors.CodeConflict, err, "hold already placed for this book"))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create hold")
		}
		return nil
	})
	if err != nil {
		return HoldDTO{}, err
	}

	s.metrics.IncHold()
	s.logg.Info(s.logg.WithBookID(ctx, bookID.String()), "hold placed")

	stored, err := s.repo.FindByID(ctx, hold.ID)
	if err != nil {
		return HoldDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hold")
	}
	return FromModel(*stored), nil
}

// List returns the caller's holds, or every hold for admins.
func (s *service) List(ctx context.Context, viewer Viewer, query ListQuery) (HoldPageDTO, error) {
	filter := ListFilter{BookID: query.BookID}
	switch viewer.Role {
	case enums.RoleAdmin:
	case enums.RoleStudent:
		filter.UserID = viewer.UserID
	default:
		return HoldPageDTO{}, pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}

	rows, next, err := s.repo.List(ctx, filter, pagination.Params{Limit: query.Limit, Cursor: query.Cursor})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return HoldPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return HoldPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list holds")
	}
	return HoldPageDTO{Holds: FromModels(rows), NextCursor: next}, nil
}

func (s *service) rejected(reason string, err error) error {
	s.metrics.IncRejection("hold", reason)
	return err
}
