package books

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/libraryhub-backend/internal/holds"
	"github.com/angelmondragon/libraryhub-backend/internal/inventory"
	"github.com/angelmondragon/libraryhub-backend/internal/loans"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/angelmondragon/libraryhub-backend/pkg/storage"
	"github.com/angelmondragon/libraryhub-backend/pkg/storage/local"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	svc  Service
	conn *gorm.DB
	root string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.NewClient(t)
	root := t.TempDir()
	store, err := local.New(root, "/static")
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Tx:       client,
		Repo:     NewRepository(conn),
		LoanRepo: loans.NewRepository(conn),
		HoldRepo: holds.NewRepository(conn),
		Ledger:   inventory.NewLedger(conn),
		Store:    store,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, conn: conn, root: root}
}

func (f *fixture) blobExists(key string) bool {
	_, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(key)))
	return err == nil
}

func (f *fixture) blobCount(t *testing.T) int {
	t.Helper()
	count := 0
	err := filepath.Walk(f.root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			count++
		}
		return err
	})
	require.NoError(t, err)
	return count
}

func cover(name string) *storage.Upload {
	return &storage.Upload{Filename: name, Body: strings.NewReader("image-bytes")}
}

func strPtr(s string) *string { return &s }

func validInput(isbn string) BookInput {
	return BookInput{
		Title:       " Dune ",
		Author:      "Frank Herbert",
		ISBN:        isbn,
		Quantity:    2,
		Description: strPtr("desert planet"),
		Category:    strPtr("Fiction"),
		Cover:       cover("dune.PNG"),
	}
}

func TestCreateStoresCoverAndTrimsFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	book, err := f.svc.Create(ctx, validInput("978-0441013593"))
	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, 2, book.AvailableQuantity)
	require.NotNil(t, book.CoverImageURL)
	assert.True(t, strings.HasPrefix(*book.CoverImageURL, "/static/book-covers/"))

	var stored models.Book
	require.NoError(t, f.conn.First(&stored, "id = ?", book.ID).Error)
	require.NotNil(t, stored.CoverImageKey)
	assert.True(t, f.blobExists(*stored.CoverImageKey))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noCover := validInput("1")
	noCover.Cover = nil
	_, err := f.svc.Create(ctx, noCover)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	badExt := validInput("2")
	badExt.Cover = cover("notes.pdf")
	_, err = f.svc.Create(ctx, badExt)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	negative := validInput("3")
	negative.Quantity = -1
	_, err = f.svc.Create(ctx, negative)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, 0, f.blobCount(t), "rejected uploads leave no blobs behind")
}

func TestCreateDuplicateISBNConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, validInput("dup"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, validInput("dup"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 1, f.blobCount(t))
}

func TestGetAndListReportAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := dbtest.SeedUser(t, f.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, f.conn, 3)
	dbtest.SeedLoan(t, f.conn, student.ID, book.ID, enums.LoanStatusApproved, dbtypes.MustDate("2024-01-01"), nil)

	got, err := f.svc.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, 2, got.AvailableQuantity)

	_, err = f.svc.Get(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	page, err := f.svc.List(ctx, ListQuery{Query: strings.ToUpper(book.Title[:6])})
	require.NoError(t, err)
	require.Len(t, page.Books, 1)
	assert.Equal(t, 2, page.Books[0].AvailableQuantity)
}

func TestListFiltersByCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, validInput("a"))
	require.NoError(t, err)
	other := validInput("b")
	other.Category = strPtr("History")
	other.Cover = cover("b.jpg")
	_, err = f.svc.Create(ctx, other)
	require.NoError(t, err)

	page, err := f.svc.List(ctx, ListQuery{Category: "history"})
	require.NoError(t, err)
	require.Len(t, page.Books, 1)
	assert.Equal(t, "b", page.Books[0].ISBN)

	categories, err := f.svc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fiction", "History"}, categories)
}

func TestUpdateReplacesCoverAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, validInput("isbn-1"))
	require.NoError(t, err)
	var before models.Book
	require.NoError(t, f.conn.First(&before, "id = ?", created.ID).Error)

	input := validInput("isbn-1")
	input.Title = "Dune Messiah"
	input.Quantity = 5
	input.Cover = cover("messiah.webp")
	updated, err := f.svc.Update(ctx, created.ID, input)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.Equal(t, 5, updated.AvailableQuantity)

	var after models.Book
	require.NoError(t, f.conn.First(&after, "id = ?", created.ID).Error)
	assert.NotEqual(t, *before.CoverImageKey, *after.CoverImageKey)
	assert.False(t, f.blobExists(*before.CoverImageKey), "old cover removed")
	assert.True(t, f.blobExists(*after.CoverImageKey))
}

func TestUpdateFailureKeepsRowAndDropsNewBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Create(ctx, validInput("one"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, validInput("two"))
	require.NoError(t, err)

	input := validInput("two")
	input.Cover = cover("clash.png")
	_, err = f.svc.Update(ctx, first.ID, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var stored models.Book
	require.NoError(t, f.conn.First(&stored, "id = ?", first.ID).Error)
	assert.Equal(t, "one", stored.ISBN)
	assert.True(t, f.blobExists(*stored.CoverImageKey))
	assert.Equal(t, 2, f.blobCount(t), "staged cover discarded")

	_, err = f.svc.Update(ctx, uuid.New(), validInput("three"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, 2, f.blobCount(t))
}

func TestUpdateRejectsQuantityBelowActiveLoans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := dbtest.SeedUser(t, f.conn, enums.RoleStudent)
	second := dbtest.SeedUser(t, f.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, f.conn, 2)
	day := dbtypes.MustDate("2024-01-01")
	dbtest.SeedLoan(t, f.conn, first.ID, book.ID, enums.LoanStatusApproved, day, nil)
	dbtest.SeedLoan(t, f.conn, second.ID, book.ID, enums.LoanStatusApproved, day, nil)

	input := BookInput{Title: book.Title, Author: book.Author, ISBN: book.ISBN, Quantity: 1}
	_, err := f.svc.Update(ctx, book.ID, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidOp))

	input.Quantity = 2
	updated, err := f.svc.Update(ctx, book.ID, input)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.AvailableQuantity)
}

func TestDeletePolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	borrower := dbtest.SeedUser(t, f.conn, enums.RoleStudent)
	created, err := f.svc.Create(ctx, validInput("del"))
	require.NoError(t, err)
	day := dbtypes.MustDate("2024-01-01")
	returned := day.AddDays(2)

	active := dbtest.SeedLoan(t, f.conn, borrower.ID, created.ID, enums.LoanStatusApproved, day, nil)
	err = f.svc.Delete(ctx, created.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	require.NoError(t, f.conn.Model(&models.Loan{}).Where("id = ?", active.ID).
		Updates(map[string]any{"returned": true, "return_date": returned}).Error)
	dbtest.SeedLoan(t, f.conn, borrower.ID, created.ID, enums.LoanStatusPending, day, nil)
	require.NoError(t, f.conn.Create(&models.HoldRequest{UserID: borrower.ID, BookID: created.ID, RequestDate: day}).Error)

	require.NoError(t, f.svc.Delete(ctx, created.ID))

	var loanCount, holdCount int64
	require.NoError(t, f.conn.Model(&models.Loan{}).Where("book_id = ?", created.ID).Count(&loanCount).Error)
	require.NoError(t, f.conn.Model(&models.HoldRequest{}).Where("book_id = ?", created.ID).Count(&holdCount).Error)
	assert.Zero(t, loanCount)
	assert.Zero(t, holdCount)
	assert.Equal(t, 0, f.blobCount(t), "cover removed with the book")

	err = f.svc.Delete(ctx, created.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestImportSkipsExistingISBNs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := dbtest.SeedBook(t, f.conn, 1)

	report, err := f.svc.Import(ctx, []BookInput{
		{Title: "New", Author: "A", ISBN: "fresh", Quantity: 1},
		{Title: "Old", Author: "B", ISBN: existing.ISBN, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, report.Created, 1)
	assert.Nil(t, report.Created[0].CoverImageURL)
	assert.Equal(t, []string{existing.ISBN}, report.Skipped)

	_, err = f.svc.Import(ctx, []BookInput{{Title: "", Author: "x", ISBN: "y"}})
	var typed *pkgerrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}
