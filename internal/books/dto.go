package books

import (
	"time"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// BookDTO is a catalog entry with its derived availability.
type BookDTO struct {
	ID                uuid.UUID `json:"id"`
	Title             string    `json:"title"`
	Author            string    `json:"author"`
	ISBN              string    `json:"isbn"`
	Quantity          int       `json:"quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	Description       *string   `json:"description"`
	Category          *string   `json:"category"`
	CoverImageURL     *string   `json:"cover_image_url"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type BookPageDTO struct {
	Books      []BookDTO `json:"books"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// FromModel maps a book row given its computed availability.
func FromModel(book models.Book, available int) BookDTO {
	return BookDTO{
		ID:                book.ID,
		Title:             book.Title,
		Author:            book.Author,
		ISBN:              book.ISBN,
		Quantity:          book.Quantity,
		AvailableQuantity: available,
		Description:       book.Description,
		Category:          book.Category,
		CoverImageURL:     book.CoverImageURL,
		CreatedAt:         book.CreatedAt,
		UpdatedAt:         book.UpdatedAt,
	}
}

func fromModels(rows []models.Book, available map[uuid.UUID]int) []BookDTO {
	return lo.Map(rows, func(book models.Book, _ int) BookDTO {
		return FromModel(book, available[book.ID])
	})
}
