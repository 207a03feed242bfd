package loans

import (
	"context"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	"github.com/angelmondragon/libraryhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository encapsulates loan persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a loan repository to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListFilter narrows loan listings. Zero values mean "no filter".
type ListFilter struct {
	UserID uuid.UUID
	BookID uuid.UUID
	Status enums.LoanStatus
	// ActiveOnly keeps approved, unreturned loans.
	ActiveOnly bool
	// DueBefore keeps loans whose due date is strictly earlier.
	DueBefore *dbtypes.Date
}

func (r *Repository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

// FindByID loads a loan with its borrower and book.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	if err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Book").
		First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// LockByID loads the loan row with SELECT ... FOR UPDATE.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// BookIDOf returns the book a loan is for without locking the loan row.
func (r *Repository) BookIDOf(ctx context.Context, loanID uuid.UUID) (uuid.UUID, error) {
	var loan models.Loan
	if err := r.db.WithContext(ctx).
		Select("book_id").
		Where("id = ?", loanID).
		Take(&loan).Error; err != nil {
		return uuid.Nil, err
	}
	return loan.BookID, nil
}

// LockByUser locks every loan row of a user, pending ones included, so no
// approval can land while the caller inspects them.
func (r *Repository) LockByUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error) {
	var rows []models.Loan
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("id").
		Find(&rows).Error
	return rows, err
}

// LockActiveForUserBook locks the borrower's active loan for the book.
func (r *Repository) LockActiveForUserBook(ctx context.Context, userID, bookID uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	if err := r.active(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Order("due_date ASC").
		First(&loan).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// HasActive reports whether the user already holds a copy of the book.
func (r *Repository) HasActive(ctx context.Context, userID, bookID uuid.UUID) (bool, error) {
	var count int64
	if err := r.active(ctx).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// BookExists reports whether the catalog has the book.
func (r *Repository) BookExists(ctx context.Context, bookID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ?", bookID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save persists the mutable loan columns.
func (r *Repository) Save(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).
		Model(loan).
		Select("status", "borrowed_on", "due_date", "return_date", "returned", "updated_at").
		Updates(loan).Error
}

// List returns a cursor page of loans, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Loan, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Preload("User").
		Preload("Book")

	if filter.UserID != uuid.Nil {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.BookID != uuid.Nil {
		query = query.Where("book_id = ?", filter.BookID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ActiveOnly {
		query = query.Where("status = ? AND returned = ?", enums.LoanStatusApproved, false)
	}
	if filter.DueBefore != nil {
		query = query.Where("due_date < ?", *filter.DueBefore)
	}

	var records []models.Loan
	if err := query.Scopes(pagination.Keyset(cursor, params.Limit)).Find(&records).Error; err != nil {
		return nil, "", err
	}

	page, next := pagination.Trim(records, params.Limit, func(l models.Loan) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return page, next, nil
}

// DeleteByBook removes every loan row of a book. Callers check for active
// loans first.
func (r *Repository) DeleteByBook(ctx context.Context, bookID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("book_id = ?", bookID).Delete(&models.Loan{}).Error
}

// DeleteByUser removes every loan row of a user.
func (r *Repository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Loan{}).Error
}

func (r *Repository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("status = ? AND returned = ?", enums.LoanStatusApproved, false)
}
