package models

import (
	"time"

	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HoldRequest records a student's wish to borrow a book with no free copy.
type HoldRequest struct {
	ID          uuid.UUID    `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID    `gorm:"column:user_id;type:uuid;not null;index:hold_requests_user_id_idx;uniqueIndex:hold_requests_user_book_key"`
	BookID      uuid.UUID    `gorm:"column:book_id;type:uuid;not null;index:hold_requests_book_id_idx;uniqueIndex:hold_requests_user_book_key"`
	RequestDate dbtypes.Date `gorm:"column:request_date;not null"`
	CreatedAt   time.Time    `gorm:"column:created_at;autoCreateTime"`

	User *User `gorm:"foreignKey:UserID;references:ID"`
	Book *Book `gorm:"foreignKey:BookID;references:ID"`
}

func (h *HoldRequest) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
