// Package inventory derives book availability from loan rows. It stores no
// state: available = quantity - active loans, recomputed on every call.
package inventory

import (
	"context"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger answers availability questions inside or outside a transaction.
type Ledger interface {
	WithTx(tx *gorm.DB) Ledger
	// LockBook loads the book row with SELECT ... FOR UPDATE so concurrent
	// approvals and holds on the same title serialize.
	LockBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error)
	ActiveLoanCount(ctx context.Context, bookID uuid.UUID) (int64, error)
	Available(ctx context.Context, book *models.Book) (int, error)
	AvailableByID(ctx context.Context, bookID uuid.UUID) (int, error)
	AvailableMany(ctx context.Context, books []models.Book) (map[uuid.UUID]int, error)
}

type ledger struct {
	db *gorm.DB
}

// NewLedger returns a ledger bound to the provided database.
func NewLedger(db *gorm.DB) Ledger {
	return &ledger{db: db}
}

func (l *ledger) WithTx(tx *gorm.DB) Ledger {
	if tx == nil {
		return l
	}
	return &ledger{db: tx}
}

// Compute applies the availability formula.
func Compute(quantity int, active int64) int {
	return quantity - int(active)
}

func (l *ledger) LockBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error) {
	var book models.Book
	if err := l.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", bookID).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (l *ledger) ActiveLoanCount(ctx context.Context, bookID uuid.UUID) (int64, error) {
	var count int64
	if err := l.activeLoans(ctx).
		Where("book_id = ?", bookID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (l *ledger) Available(ctx context.Context, book *models.Book) (int, error) {
	active, err := l.ActiveLoanCount(ctx, book.ID)
	if err != nil {
		return 0, err
	}
	return Compute(book.Quantity, active), nil
}

func (l *ledger) AvailableByID(ctx context.Context, bookID uuid.UUID) (int, error) {
	var book models.Book
	if err := l.db.WithContext(ctx).First(&book, "id = ?", bookID).Error; err != nil {
		return 0, err
	}
	return l.Available(ctx, &book)
}

// AvailableMany computes availability for a page of books with one grouped query.
func (l *ledger) AvailableMany(ctx context.Context, books []models.Book) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(books))
	if len(books) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, 0, len(books))
	for _, book := range books {
		ids = append(ids, book.ID)
	}

	var rows []struct {
		BookID uuid.UUID
		Active int64
	}
	if err := l.activeLoans(ctx).
		Select("book_id, COUNT(*) AS active").
		Where("book_id IN ?", ids).
		Group("book_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	active := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		active[row.BookID] = row.Active
	}
	for _, book := range books {
		out[book.ID] = Compute(book.Quantity, active[book.ID])
	}
	return out, nil
}

func (l *ledger) activeLoans(ctx context.Context) *gorm.DB {
	return l.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("status = ? AND returned = ?", enums.LoanStatusApproved, false)
}
