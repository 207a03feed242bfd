package dbtest

import (
	"fmt"
	"testing"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedUser inserts a user with the given role and a unique matric number.
func SeedUser(t testing.TB, conn *gorm.DB, role enums.Role) *models.User {
	t.Helper()
	user := &models.User{
		Name:         "User " + role.String(),
		MatricNo:     fmt.Sprintf("MAT-%s", uuid.NewString()[:8]),
		Department:   "Computer Science",
		Role:         role,
		PasswordHash: "hash",
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedBook inserts a book with the given total quantity.
func SeedBook(t testing.TB, conn *gorm.DB, quantity int) *models.Book {
	t.Helper()
	book := &models.Book{
		Title:    "Book " + uuid.NewString()[:6],
		Author:   "Author",
		ISBN:     "ISBN-" + uuid.NewString()[:13],
		Quantity: quantity,
	}
	if err := conn.Create(book).Error; err != nil {
		t.Fatalf("seed book: %v", err)
	}
	return book
}

// SeedLoan inserts a loan in the given state. Approved loans get borrowed and
// due dates relative to requested; returned loans get returnedOn.
func SeedLoan(t testing.TB, conn *gorm.DB, userID, bookID uuid.UUID, status enums.LoanStatus, requested dbtypes.Date, returnedOn *dbtypes.Date) *models.Loan {
	t.Helper()
	loan := &models.Loan{
		UserID:      userID,
		BookID:      bookID,
		RequestDate: requested,
		Status:      status,
	}
	if status == enums.LoanStatusApproved {
		borrowed := requested
		due := requested.AddDays(14)
		loan.BorrowedOn = &borrowed
		loan.DueDate = &due
	}
	if returnedOn != nil {
		loan.Returned = true
		loan.ReturnDate = returnedOn
	}
	if err := conn.Create(loan).Error; err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	return loan
}
