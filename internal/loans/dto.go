package loans

import (
	"time"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// BookSummaryDTO is the slice of the book a loan listing needs.
type BookSummaryDTO struct {
	ID     uuid.UUID `json:"id"`
	Title  string    `json:"title"`
	Author string    `json:"author"`
	ISBN   string    `json:"isbn"`
}

// BorrowerDTO identifies the student on a loan.
type BorrowerDTO struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	MatricNo   string    `json:"matric_no"`
	Department string    `json:"department"`
}

type LoanDTO struct {
	ID          uuid.UUID        `json:"id"`
	UserID      uuid.UUID        `json:"user_id"`
	BookID      uuid.UUID        `json:"book_id"`
	RequestDate dbtypes.Date     `json:"request_date"`
	BorrowedOn  *dbtypes.Date    `json:"borrowed_on"`
	DueDate     *dbtypes.Date    `json:"due_date"`
	ReturnDate  *dbtypes.Date    `json:"return_date"`
	Returned    bool             `json:"returned"`
	Status      enums.LoanStatus `json:"status"`
	Overdue     bool             `json:"overdue"`
	Book        *BookSummaryDTO  `json:"book,omitempty"`
	User        *BorrowerDTO     `json:"user,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// LoanPageDTO is a cursor page of loans.
type LoanPageDTO struct {
	Loans      []LoanDTO `json:"loans"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// ReturnResultDTO reports a completed return with its fine and the book's new
// availability.
type ReturnResultDTO struct {
	Loan              LoanDTO         `json:"loan"`
	DaysLate          int             `json:"days_late"`
	Fine              decimal.Decimal `json:"fine"`
	AvailableQuantity int             `json:"available_quantity"`
}

// FromModel maps a loan row; today drives the overdue flag.
func FromModel(loan models.Loan, today dbtypes.Date) LoanDTO {
	dto := LoanDTO{
		ID:          loan.ID,
		UserID:      loan.UserID,
		BookID:      loan.BookID,
		RequestDate: loan.RequestDate,
		BorrowedOn:  loan.BorrowedOn,
		DueDate:     loan.DueDate,
		ReturnDate:  loan.ReturnDate,
		Returned:    loan.Returned,
		Status:      loan.Status,
		Overdue:     loan.IsOverdue(today),
		CreatedAt:   loan.CreatedAt,
		UpdatedAt:   loan.UpdatedAt,
	}
	if loan.Book != nil {
		dto.Book = &BookSummaryDTO{
			ID:     loan.Book.ID,
			Title:  loan.Book.Title,
			Author: loan.Book.Author,
			ISBN:   loan.Book.ISBN,
		}
	}
	if loan.User != nil {
		dto.User = &BorrowerDTO{
			ID:         loan.User.ID,
			Name:       loan.User.Name,
			MatricNo:   loan.User.MatricNo,
			Department: loan.User.Department,
		}
	}
	return dto
}

// FromModels maps a page of loans.
func FromModels(rows []models.Loan, today dbtypes.Date) []LoanDTO {
	return lo.Map(rows, func(loan models.Loan, _ int) LoanDTO {
		return FromModel(loan, today)
	})
}
