package holds

import (
	"context"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	"github.com/angelmondragon/libraryhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository encapsulates hold request persistence.
type Repository struct {
	db *gorm.DB
}

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

// ListFilter narrows hold listings. Zero values mean "no filter".
type ListFilter struct {
	UserID uuid.UUID
	BookID uuid.UUID
}

func (r *Repository) Create(ctx context.Context, hold *models.HoldRequest) error {
	return r.db.WithContext(ctx).Create(hold).Error
}

// Exists reports whether the user already waits on the book.
func (r *Repository) Exists(ctx context.Context, userID, bookID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.HoldRequest{}).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.HoldRequest, error) {
	var hold models.HoldRequest
	if err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Book").
		First(&hold, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &hold, nil
}

// List returns a cursor page of holds, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.HoldRequest, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Model(&models.HoldRequest{}).
		Preload("User").
		Preload("Book")
	if filter.UserID != uuid.Nil {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.BookID != uuid.Nil {
		query = query.Where("book_id = ?", filter.BookID)
	}

	var records []models.HoldRequest
	if err := query.Scopes(pagination.Keyset(cursor, params.Limit)).Find(&records).Error; err != nil {
		return nil, "", err
	}

	page, next := pagination.Trim(records, params.Limit, func(h models.HoldRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: h.CreatedAt, ID: h.ID}
	})
	return page, next, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.HoldRequest{}).Count(&count).Error
	return count, err
}

func (r *Repository) DeleteByBook(ctx context.Context, bookID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("book_id = ?", bookID).Delete(&models.HoldRequest{}).Error
}

func (r *Repository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.HoldRequest{}).Error
}
