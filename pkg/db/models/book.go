package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book is a catalog title. Quantity is the number of owned copies and is never
// touched by loan transitions.
type Book struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title         string    `gorm:"column:title;not null"`
	Author        string    `gorm:"column:author;not null"`
	ISBN          string    `gorm:"column:isbn;not null;uniqueIndex:books_isbn_key"`
	Quantity      int       `gorm:"column:quantity;not null;default:0;check:books_quantity_check,quantity >= 0"`
	Description   *string   `gorm:"column:description"`
	Category      *string   `gorm:"column:category;index:books_category_idx"`
	CoverImageURL *string   `gorm:"column:cover_image_url"`
	CoverImageKey *string   `gorm:"column:cover_image_key"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Book) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
