package books

import (
	"context"
	"strings"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	"github.com/angelmondragon/libraryhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository encapsulates catalog persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a book repository bound to the provided gorm DB.
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

// ListFilter narrows catalog listings.
type ListFilter struct {
	// Query matches title, author or ISBN, case-insensitively.
	Query    string
	Category string
}

func (r *Repository) Create(ctx context.Context, book *models.Book) error {
	return r.db.WithContext(ctx).Create(book).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// ISBNTaken reports whether another book already carries isbn.
func (r *Repository) ISBNTaken(ctx context.Context, isbn string, exclude uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Book{}).Where("isbn = ?", isbn)
	if exclude != uuid.Nil {
		query = query.Where("id <> ?", exclude)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save persists every editable column.
func (r *Repository) Save(ctx context.Context, book *models.Book) error {
	return r.db.WithContext(ctx).
		Model(book).
		Select("title", "author", "isbn", "quantity", "description", "category", "cover_image_url", "cover_image_key", "updated_at").
		Updates(book).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Book{}).Error
}

// List returns a cursor page of books, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Book, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).Model(&models.Book{})
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(isbn) LIKE ?", like, like, like)
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("LOWER(category) = ?", strings.ToLower(category))
	}

	var records []models.Book
	if err := query.Scopes(pagination.Keyset(cursor, params.Limit)).Find(&records).Error; err != nil {
		return nil, "", err
	}

	page, next := pagination.Trim(records, params.Limit, func(b models.Book) pagination.Cursor {
		return pagination.Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
	})
	return page, next, nil
}

// Categories lists the distinct non-empty categories in the catalog.
func (r *Repository) Categories(ctx context.Context) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("category IS NOT NULL AND category <> ''").
		Distinct("category").
		Order("category ASC").
		Pluck("category", &out).Error
	return out, err
}
