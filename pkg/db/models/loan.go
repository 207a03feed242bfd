package models

import (
	"time"

	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Loan is a borrow request and, once approved, the checkout of one copy.
// A loan is active while status=approved and returned=false.
type Loan struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index:loans_user_id_idx"`
	BookID      uuid.UUID        `gorm:"column:book_id;type:uuid;not null;index:loans_book_id_idx"`
	RequestDate dbtypes.Date     `gorm:"column:request_date;not null"`
	BorrowedOn  *dbtypes.Date    `gorm:"column:borrowed_on"`
	DueDate     *dbtypes.Date    `gorm:"column:due_date;index:loans_due_date_idx"`
	ReturnDate  *dbtypes.Date    `gorm:"column:return_date"`
	Returned    bool             `gorm:"column:returned;not null;default:false"`
	Status      enums.LoanStatus `gorm:"column:status;type:text;not null;default:'pending';index:loans_status_idx"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`

	User *User `gorm:"foreignKey:UserID;references:ID"`
	Book *Book `gorm:"foreignKey:BookID;references:ID"`
}

func (l *Loan) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the loan currently holds a copy.
func (l Loan) IsActive() bool {
	return l.Status == enums.LoanStatusApproved && !l.Returned
}

// IsOverdue reports whether an active loan is past its due date on day today.
func (l Loan) IsOverdue(today dbtypes.Date) bool {
	return l.IsActive() && l.DueDate != nil && l.DueDate.Before(today)
}
