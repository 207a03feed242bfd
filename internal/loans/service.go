package loans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/libraryhub-backend/internal/inventory"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/angelmondragon/libraryhub-backend/pkg/metrics"
	"github.com/angelmondragon/libraryhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultLoanPeriodDays is the lending period applied at approval.
const DefaultLoanPeriodDays = 14

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Viewer is the authenticated caller of a listing.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.Role
}

// ListQuery carries listing filters from the controller.
type ListQuery struct {
	Status string
	Limit  int
	Cursor string
}

// Service implements the loan lifecycle.
type Service interface {
	Request(ctx context.Context, userID, bookID uuid.UUID) (LoanDTO, error)
	Approve(ctx context.Context, loanID uuid.UUID) (LoanDTO, error)
	Reject(ctx context.Context, loanID uuid.UUID) (LoanDTO, error)
	Return(ctx context.Context, userID, bookID uuid.UUID) (ReturnResultDTO, error)
	List(ctx context.Context, viewer Viewer, query ListQuery) (LoanPageDTO, error)
	ListActive(ctx context.Context, query ListQuery) (LoanPageDTO, error)
	ListOverdue(ctx context.Context, query ListQuery) (LoanPageDTO, error)
}

// ServiceParams groups dependencies for the loan service.
type ServiceParams struct {
	Tx             txRunner
	Repo           *Repository
	Ledger         inventory.Ledger
	// Fines defaults to the standard per-day rate.
	Fines          *FineCalculator
	LoanPeriodDays int
	Metrics        *metrics.CirculationMetrics
	Logger         *logger.Logger
	// Now defaults to time.Now.
	Now            func() time.Time
}

type service struct {
	tx         txRunner
	repo       *Repository
	ledger     inventory.Ledger
	fines      FineCalculator
	loanPeriod int
	metrics    *metrics.CirculationMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds a loan service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan repo is required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory ledger is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	period := params.LoanPeriodDays
	if period <= 0 {
		period = DefaultLoanPeriodDays
	}
	fines := FineCalculator{perDay: DefaultFinePerDay}
	if params.Fines != nil {
		fines = *params.Fines
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:         params.Tx,
		repo:       params.Repo,
		ledger:     params.Ledger,
		fines:      fines,
		loanPeriod: period,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        now,
	}, nil
}

func (s *service) today() dbtypes.Date {
	return dbtypes.NewDate(s.now())
}

// Request files a pending loan. Stock is checked at approval, not here.
func (s *service) Request(ctx context.Context, userID, bookID uuid.UUID) (LoanDTO, error) {
	if userID == uuid.Nil {
		return LoanDTO{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user is required")
	}
	if bookID == uuid.Nil {
		return LoanDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "book_id is required")
	}

	exists, err := s.repo.BookExists(ctx, bookID)
	if err != nil {
		return LoanDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
	}
	if !exists {
		return LoanDTO{}, s.rejected("request", "book_missing", pkgerrors.New(pkgerrors.CodeNotFound, "book not found"))
	}

	loan := &models.Loan{
		UserID:      userID,
		BookID:      bookID,
		RequestDate: s.today(),
		Status:      enums.LoanStatusPending,
	}
	if err := s.repo.Create(ctx, loan); err != nil {
		return LoanDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loan")
	}

	s.metrics.IncTransition("requested")
	ctx = s.logg.WithLoanID(s.logg.WithBookID(ctx, bookID.String()), loan.ID.String())
	s.logg.Info(ctx, "loan requested")
	return s.load(ctx, loan.ID)
}

// Approve moves a pending loan to approved. The book row is locked before the
// loan row, the same order book deletion uses, and both stay locked until
// commit so two approvals of the last copy cannot both pass.
func (s *service) Approve(ctx context.Context, loanID uuid.UUID) (LoanDTO, error) {
	if loanID == uuid.Nil {
		return LoanDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "loan id is required")
	}

	today := s.today()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ledger := s.ledger.WithTx(tx)

		bookID, err := repo.BookIDOf(ctx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return s.rejected("approve", "not_pending", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "pending loan not found"))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
		}

		book, err := ledger.LockBook(ctx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "book not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock book")
		}

		loan, err := s.lockPending(ctx, repo, loanID, enums.LoanStatusApproved)
		if err != nil {
			return s.rejected("approve", "not_pending", err)
		}

		available, err := ledger.Available(ctx, book)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute availability")
		}
		if available <= 0 {
			return s.rejected("approve", "out_of_stock", pkgerrors.New(pkgerrors.CodeInvalidOp, "book out of stock"))
		}

		duplicate, err := repo.HasActive(ctx, loan.UserID, loan.BookID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active loans")
		}
		if duplicate {
			return s.rejected("approve", "duplicate_active", pkgerrors.New(pkgerrors.CodeConflict, "user already has this book on loan"))
		}

		borrowed := today
		due := today.AddDays(s.loanPeriod)
		loan.Status = enums.LoanStatusApproved
		loan.BorrowedOn = &borrowed
		loan.DueDate = &due
		if err := repo.Save(ctx, loan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve loan")
		}
		return nil
	})
	if err != nil {
		return LoanDTO{}, err
	}

	s.metrics.IncTransition("approved")
	s.logg.Info(s.logg.WithLoanID(ctx, loanID.String()), "loan approved")
	return s.load(ctx, loanID)
}

// Reject closes a pending loan without lending.
func (s *service) Reject(ctx context.Context, loanID uuid.UUID) (LoanDTO, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loan, err := s.lockPending(ctx, repo, loanID, enums.LoanStatusRejected)
		if err != nil {
			return s.rejected("reject", "not_pending", err)
		}
		loan.Status = enums.LoanStatusRejected
		if err := repo.Save(ctx, loan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject loan")
		}
		return nil
	})
	if err != nil {
		return LoanDTO{}, err
	}

	s.metrics.IncTransition("rejected")
	s.logg.Info(s.logg.WithLoanID(ctx, loanID.String()), "loan rejected")
	return s.load(ctx, loanID)
}

// Return closes the caller's active loan for the book and prices any delay.
func (s *service) Return(ctx context.Context, userID, bookID uuid.UUID) (ReturnResultDTO, error) {
	if userID == uuid.Nil {
		return ReturnResultDTO{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user is required")
	}
	if bookID == uuid.Nil {
		return ReturnResultDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "book_id is required")
	}

	today := s.today()
	var (
		returned  *models.Loan
		available int
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loan, err := repo.LockActiveForUserBook(ctx, userID, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return s.rejected("return", "no_active_loan", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "no active loan for this book"))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock loan")
		}

		returnDate := today
		loan.Returned = true
		loan.ReturnDate = &returnDate
		if err := repo.Save(ctx, loan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "return loan")
		}

		available, err = s.ledger.WithTx(tx).AvailableByID(ctx, bookID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute availability")
		}
		returned = loan
		return nil
	})
	if err != nil {
		return ReturnResultDTO{}, err
	}

	var (
		daysLate int
		fine     = decimal.Zero
	)
	if returned.DueDate != nil {
		daysLate = DaysLate(*returned.DueDate, today)
		fine = s.fines.Fine(*returned.DueDate, today)
	}

	s.metrics.IncTransition("returned")
	s.metrics.ObserveFine(fine)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"loan_id":   returned.ID.String(),
		"book_id":   bookID.String(),
		"days_late": daysLate,
		"fine":      fine.String(),
	})
	s.logg.Info(ctx, "loan returned")

	dto, err := s.load(ctx, returned.ID)
	if err != nil {
		return ReturnResultDTO{}, err
	}
	return ReturnResultDTO{
		Loan:              dto,
		DaysLate:          daysLate,
		Fine:              fine,
		AvailableQuantity: available,
	}, nil
}

// List returns the caller's loans, or every loan for admins.
func (s *service) List(ctx context.Context, viewer Viewer, query ListQuery) (LoanPageDTO, error) {
	filter := ListFilter{}
	switch viewer.Role {
	case enums.RoleAdmin:
	case enums.RoleStudent:
		if viewer.UserID == uuid.Nil {
			return LoanPageDTO{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user is required")
		}
		filter.UserID = viewer.UserID
	default:
		return LoanPageDTO{}, pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}

	if raw := strings.TrimSpace(query.Status); raw != "" {
		status, err := enums.ParseLoanStatus(raw)
		if err != nil {
			return LoanPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Status = status
	}
	return s.list(ctx, filter, query)
}

// ListActive returns every approved, unreturned loan.
func (s *service) ListActive(ctx context.Context, query ListQuery) (LoanPageDTO, error) {
	return s.list(ctx, ListFilter{ActiveOnly: true}, query)
}

// ListOverdue returns active loans whose due date is before today.
func (s *service) ListOverdue(ctx context.Context, query ListQuery) (LoanPageDTO, error) {
	today := s.today()
	return s.list(ctx, ListFilter{ActiveOnly: true, DueBefore: &today}, query)
}

func (s *service) list(ctx context.Context, filter ListFilter, query ListQuery) (LoanPageDTO, error) {
	rows, next, err := s.repo.List(ctx, filter, pagination.Params{Limit: query.Limit, Cursor: query.Cursor})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return LoanPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return LoanPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loans")
	}
	return LoanPageDTO{
		Loans:      FromModels(rows, s.today()),
		NextCursor: next,
	}, nil
}

// lockPending loads the loan for a status change out of pending. A loan that
// is missing or already decided reads as not found.
func (s *service) lockPending(ctx context.Context, repo *Repository, loanID uuid.UUID, target enums.LoanStatus) (*models.Loan, error) {
	if loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id is required")
	}
	loan, err := repo.LockByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "pending loan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock loan")
	}
	if !loan.Status.CanTransitionTo(target) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("pending loan not found (status %s)", loan.Status))
	}
	return loan, nil
}

func (s *service) load(ctx context.Context, loanID uuid.UUID) (LoanDTO, error) {
	loan, err := s.repo.FindByID(ctx, loanID)
	if err != nil {
		return LoanDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	return FromModel(*loan, s.today()), nil
}

// rejected counts business-rule refusals; infrastructure failures pass through
// uncounted.
func (s *service) rejected(operation, reason string, err error) error {
	if typed := pkgerrors.As(err); typed != nil && typed.Code() != pkgerrors.CodeDependency {
		s.metrics.IncRejection(operation, reason)
	}
	return err
}
