package books

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/libraryhub-backend/internal/holds"
	"github.com/angelmondragon/libraryhub-backend/internal/inventory"
	"github.com/angelmondragon/libraryhub-backend/internal/loans"
	"github.com/angelmondragon/libraryhub-backend/pkg/db"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/angelmondragon/libraryhub-backend/pkg/pagination"
	"github.com/angelmondragon/libraryhub-backend/pkg/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const uniqueISBNConstraint = "books_isbn_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ListQuery carries catalog listing filters.
type ListQuery struct {
	Query    string
	Category string
	Limit    int
	Cursor   string
}

// BookInput is the full set of editable fields. Update replaces every field;
// Cover is optional there.
type BookInput struct {
	Title       string
	Author      string
	ISBN        string
	Quantity    int
	Description *string
	Category    *string
	Cover       *storage.Upload
}

// ImportReport summarizes a bulk catalog import.
type ImportReport struct {
	Created []BookDTO `json:"created"`
	Skipped []string  `json:"skipped"`
}

// Service exposes catalog management.
type Service interface {
	List(ctx context.Context, query ListQuery) (BookPageDTO, error)
	Get(ctx context.Context, id uuid.UUID) (BookDTO, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, input BookInput) (BookDTO, error)
	Update(ctx context.Context, id uuid.UUID, input BookInput) (BookDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Import(ctx context.Context, inputs []BookInput) (ImportReport, error)
}

// ServiceParams groups dependencies for the catalog service.
type ServiceParams struct {
	Tx       txRunner
	Repo     *Repository
	LoanRepo *loans.Repository
	HoldRepo *holds.Repository
	Ledger   inventory.Ledger
	Store    storage.Store
	Logger   *logger.Logger
}

type service struct {
	tx       txRunner
	repo     *Repository
	loanRepo *loans.Repository
	holdRepo *holds.Repository
	ledger   inventory.Ledger
	store    storage.Store
	logg     *logger.Logger
}

// NewService builds a catalog service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book repo is required")
	case params.LoanRepo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan repo is required")
	case params.HoldRepo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold repo is required")
	case params.Ledger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory ledger is required")
	case params.Store == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "blob store is required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &service{
		tx:       params.Tx,
		repo:     params.Repo,
		loanRepo: params.LoanRepo,
		holdRepo: params.HoldRepo,
		ledger:   params.Ledger,
		store:    params.Store,
		logg:     params.Logger,
	}, nil
}

func (s *service) List(ctx context.Context, query ListQuery) (BookPageDTO, error) {
	rows, next, err := s.repo.List(ctx, ListFilter{Query: query.Query, Category: query.Category}, pagination.Params{
		Limit:  query.Limit,
		Cursor: query.Cursor,
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return BookPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return BookPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list books")
	}
	available, err := s.ledger.AvailableMany(ctx, rows)
	if err != nil {
		return BookPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute availability")
	}
	return BookPageDTO{Books: fromModels(rows, available), NextCursor: next}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (BookDTO, error) {
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return BookDTO{}, notFoundOr(err, "load book")
	}
	return s.toDTO(ctx, s.ledger, book)
}

func (s *service) Categories(ctx context.Context) ([]string, error) {
	out, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return out, nil
}

// Create adds a title. A cover image is required.
func (s *service) Create(ctx context.Context, input BookInput) (BookDTO, error) {
	if input.Cover == nil {
		return BookDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "cover_image is required")
	}
	return s.create(ctx, input)
}

func (s *service) create(ctx context.Context, input BookInput) (BookDTO, error) {
	input = normalize(input)
	if err := validate(input); err != nil {
		return BookDTO{}, err
	}

	taken, err := s.repo.ISBNTaken(ctx, input.ISBN, uuid.Nil)
	if err != nil {
		return BookDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check isbn")
	}
	if taken {
		return BookDTO{}, pkgerrors.New(pkgerrors.CodeConflict, "a book with this ISBN already exists")
	}

	staged, err := s.stageCover(ctx, input.Cover)
	if err != nil {
		return BookDTO{}, err
	}

	book := &models.Book{
		Title:       input.Title,
		Author:      input.Author,
		ISBN:        input.ISBN,
		Quantity:    input.Quantity,
		Description: input.Description,
		Category:    input.Category,
	}
	if staged != nil {
		book.CoverImageURL = &staged.URL
		book.CoverImageKey = &staged.Key
	}
	if err := s.repo.Create(ctx, book); err != nil {
		return BookDTO{}, storage.Discard(ctx, s.store, staged, isbnConflictOr(err, "create book"))
	}

	s.logg.Info(s.logg.WithBookID(ctx, book.ID.String()), "book created")
	return FromModel(*book, book.Quantity), nil
}

// Update replaces every field. A new cover is written before the row changes
// and the previous cover is removed only after commit.
func (s *service) Update(ctx context.Context, id uuid.UUID, input BookInput) (BookDTO, error) {
	input = normalize(input)
	if err := validate(input); err != nil {
		return BookDTO{}, err
	}

	staged, err := s.stageCover(ctx, input.Cover)
	if err != nil {
		return BookDTO{}, err
	}

	var (
		updated *models.Book
		oldKey  string
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ledger := s.ledger.WithTx(tx)

		book, err := ledger.LockBook(ctx, id)
		if err != nil {
			return notFoundOr(err, "lock book")
		}

		if input.ISBN != book.ISBN {
			taken, err := repo.ISBNTaken(ctx, input.ISBN, book.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check isbn")
			}
			if taken {
				return pkgerrors.New(pkgerrors.CodeConflict, "a book with this ISBN already exists")
			}
		}

		active, err := ledger.ActiveLoanCount(ctx, book.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
		}
		if int64(input.Quantity) < active {
			return pkgerrors.New(pkgerrors.CodeInvalidOp, "quantity cannot be lower than copies currently on loan").
				WithDetails(map[string]any{"active_loans": active})
		}

		book.Title = input.Title
		book.Author = input.Author
		book.ISBN = input.ISBN
		book.Quantity = input.Quantity
		book.Description = input.Description
		book.Category = input.Category
		if staged != nil {
			if book.CoverImageKey != nil {
				oldKey = *book.CoverImageKey
			}
			book.CoverImageURL = &staged.URL
			book.CoverImageKey = &staged.Key
		}
		if err := repo.Save(ctx, book); err != nil {
			return isbnConflictOr(err, "update book")
		}
		updated = book
		return nil
	})
	if err != nil {
		return BookDTO{}, storage.Discard(ctx, s.store, staged, err)
	}

	ctx = s.logg.WithBookID(ctx, id.String())
	s.removeBlob(ctx, oldKey)
	s.logg.Info(ctx, "book updated")
	return s.toDTO(ctx, s.ledger, updated)
}

// Delete removes a title with no copies out. Its holds and closed loans go
// with it; the cover is removed after commit.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	var coverKey string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		book, err := ledger.LockBook(ctx, id)
		if err != nil {
			return notFoundOr(err, "lock book")
		}
		active, err := ledger.ActiveLoanCount(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
		}
		if active > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "book has copies on loan").
				WithDetails(map[string]any{"active_loans": active})
		}
		// Book, then loans, then holds: the order approvals and account
		// deletion take the same rows in.
		if err := s.loanRepo.WithTx(tx).DeleteByBook(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete loans")
		}
		if err := s.holdRepo.WithTx(tx).DeleteByBook(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete holds")
		}
		if err := s.repo.WithTx(tx).Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete book")
		}
		if book.CoverImageKey != nil {
			coverKey = *book.CoverImageKey
		}
		return nil
	})
	if err != nil {
		return err
	}

	ctx = s.logg.WithBookID(ctx, id.String())
	s.removeBlob(ctx, coverKey)
	s.logg.Info(ctx, "book deleted")
	return nil
}

// Import creates books without covers, skipping ISBNs already in the catalog.
func (s *service) Import(ctx context.Context, inputs []BookInput) (ImportReport, error) {
	report := ImportReport{Created: []BookDTO{}, Skipped: []string{}}
	for _, input := range inputs {
		input.Cover = nil
		dto, err := s.create(ctx, input)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				report.Skipped = append(report.Skipped, strings.TrimSpace(input.ISBN))
				continue
			}
			return report, err
		}
		report.Created = append(report.Created, dto)
	}
	return report, nil
}

func (s *service) stageCover(ctx context.Context, upload *storage.Upload) (*storage.Object, error) {
	if upload == nil {
		return nil, nil
	}
	obj, err := storage.PutImage(ctx, s.store, storage.PrefixBookCovers, *upload)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImage) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported image format")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store cover image")
	}
	return &obj, nil
}

func (s *service) removeBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "blob_key", key), "failed to remove stale cover image: "+err.Error())
	}
}

func (s *service) toDTO(ctx context.Context, ledger inventory.Ledger, book *models.Book) (BookDTO, error) {
	available, err := ledger.Available(ctx, book)
	if err != nil {
		return BookDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute availability")
	}
	return FromModel(*book, available), nil
}

func normalize(input BookInput) BookInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Author = strings.TrimSpace(input.Author)
	input.ISBN = strings.TrimSpace(input.ISBN)
	input.Description = trimmedOrNil(input.Description)
	input.Category = trimmedOrNil(input.Category)
	return input
}

func validate(input BookInput) error {
	switch {
	case input.Title == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	case input.Author == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "author is required")
	case input.ISBN == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "isbn is required")
	case input.Quantity < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be zero or more")
	}
	return nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func notFoundOr(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "book not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func isbnConflictOr(err error, action string) error {
	if db.IsUniqueViolation(err, uniqueISBNConstraint) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a book with this ISBN already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
