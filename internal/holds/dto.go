package holds

import (
	"time"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type HoldDTO struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	BookID      uuid.UUID    `json:"book_id"`
	RequestDate dbtypes.Date `json:"request_date"`
	BookTitle   string       `json:"book_title,omitempty"`
	UserName    string       `json:"user_name,omitempty"`
	MatricNo    string       `json:"matric_no,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// HoldPageDTO is a cursor page of holds.
type HoldPageDTO struct {
	Holds      []HoldDTO `json:"holds"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

func FromModel(hold models.HoldRequest) HoldDTO {
	dto := HoldDTO{
		ID:          hold.ID,
		UserID:      hold.UserID,
		BookID:      hold.BookID,
		RequestDate: hold.RequestDate,
		CreatedAt:   hold.CreatedAt,
	}
	if hold.Book != nil {
		dto.BookTitle = hold.Book.Title
	}
	if hold.User != nil {
		dto.UserName = hold.User.Name
		dto.MatricNo = hold.User.MatricNo
	}
	return dto
}

func FromModels(rows []models.HoldRequest) []HoldDTO {
	return lo.Map(rows, func(hold models.HoldRequest, _ int) HoldDTO {
		return FromModel(hold)
	})
}
