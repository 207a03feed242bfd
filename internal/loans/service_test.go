package loans

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/libraryhub-backend/internal/holds"
	"github.com/angelmondragon/libraryhub-backend/internal/inventory"
	"github.com/angelmondragon/libraryhub-backend/pkg/db"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/angelmondragon/libraryhub-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) set(day string) {
	c.now = dbtypes.MustDate(day).Add(10 * time.Hour)
}

type harness struct {
	svc    Service
	client *db.Client
	conn   *gorm.DB
	clock  *fakeClock
	logg   *logger.Logger
	ledger inventory.Ledger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, conn := dbtest.NewClient(t)
	clock := &fakeClock{}
	clock.set("2024-01-01")
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ledger := inventory.NewLedger(conn)

	svc, err := NewService(ServiceParams{
		Tx:      client,
		Repo:    NewRepository(conn),
		Ledger:  ledger,
		Metrics: metrics.NewCirculationMetrics(prometheus.NewRegistry()),
		Logger:  logg,
		Now:     clock.Now,
	})
	require.NoError(t, err)
	return &harness{svc: svc, client: client, conn: conn, clock: clock, logg: logg, ledger: ledger}
}

func (h *harness) available(t *testing.T, bookID uuid.UUID) int {
	t.Helper()
	n, err := h.ledger.AvailableByID(context.Background(), bookID)
	require.NoError(t, err)
	return n
}

func TestRequestCreatesPendingLoan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, h.conn, 0)

	loan, err := h.svc.Request(ctx, student.ID, book.ID)
	require.NoError(t, err, "requests are accepted even without stock")
	assert.Equal(t, enums.LoanStatusPending, loan.Status)
	assert.Equal(t, "2024-01-01", loan.RequestDate.String())
	assert.False(t, loan.Returned)
	assert.Nil(t, loan.DueDate)
	require.NotNil(t, loan.Book)
	assert.Equal(t, book.Title, loan.Book.Title)

	_, err = h.svc.Request(ctx, student.ID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestApproveSetsDatesAndLeavesQuantity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, h.conn, 2)

	requested, err := h.svc.Request(ctx, student.ID, book.ID)
	require.NoError(t, err)

	h.clock.set("2024-01-03")
	approved, err := h.svc.Approve(ctx, requested.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStatusApproved, approved.Status)
	require.NotNil(t, approved.BorrowedOn)
	require.NotNil(t, approved.DueDate)
	assert.Equal(t, "2024-01-03", approved.BorrowedOn.String())
	assert.Equal(t, "2024-01-17", approved.DueDate.String())

	assert.Equal(t, 1, h.available(t, book.ID))
	var reloaded models.Book
	require.NoError(t, h.conn.First(&reloaded, "id = ?", book.ID).Error)
	assert.Equal(t, 2, reloaded.Quantity)

	_, err = h.svc.Approve(ctx, requested.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "approved loans are no longer pending")
	_, err = h.svc.Reject(ctx, requested.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestApproveOutOfStockChangesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	second := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, h.conn, 1)

	a, err := h.svc.Request(ctx, first.ID, book.ID)
	require.NoError(t, err)
	b, err := h.svc.Request(ctx, second.ID, book.ID)
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, a.ID)
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, b.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidOp))
	assert.Contains(t, err.Error(), "book out of stock")

	var stored models.Loan
	require.NoError(t, h.conn.First(&stored, "id = ?", b.ID).Error)
	assert.Equal(t, enums.LoanStatusPending, stored.Status)
	assert.Nil(t, stored.BorrowedOn)
	assert.Nil(t, stored.DueDate)
	assert.Equal(t, 0, h.available(t, book.ID), "availability never goes negative")
}

func TestApproveRejectsSecondActiveLoanForSameBook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, h.conn, 3)

	first, err := h.svc.Request(ctx, student.ID, book.ID)
	require.NoError(t, err)
	second, err := h.svc.Request(ctx, student.ID, book.ID)
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, first.ID)
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, second.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 2, h.available(t, book.ID))
}

func TestApproveUnknownLoan(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Approve(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRejectClosesPendingLoan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, h.conn, 1)

	loan, err := h.svc.Request(ctx, student.ID, book.ID)
	require.NoError(t, err)
	rejected, err := h.svc.Reject(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStatusRejected, rejected.Status)
	assert.Equal(t, 1, h.available(t, book.ID))

	_, err = h.svc.Approve(ctx, loan.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReturnOnTimeHasNoFine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, h.conn, 2)
	dbtest.SeedLoan(t, h.conn, student.ID, book.ID, enums.LoanStatusApproved, dbtypes.MustDate("2024-01-01"), nil)
	assert.Equal(t, 1, h.available(t, book.ID))

	h.clock.set("2024-01-15")
	result, err := h.svc.Return(ctx, student.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, result.Fine.IsZero())
	assert.Equal(t, 0, result.DaysLate)
	assert.Equal(t, 2, result.AvailableQuantity)
	assert.True(t, result.Loan.Returned)
	assert.Equal(t, "2024-01-15", result.Loan.ReturnDate.String())
	assert.Equal(t, enums.LoanStatusApproved, result.Loan.Status)

	_, err = h.svc.Return(ctx, student.ID, book.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "a returned loan cannot be returned twice")
}

func TestReturnIgnoresPendingLoans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, h.conn, 1)
	dbtest.SeedLoan(t, h.conn, student.ID, book.ID, enums.LoanStatusPending, dbtypes.MustDate("2024-01-01"), nil)

	_, err := h.svc.Return(ctx, student.ID, book.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListScopesAndFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	other := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, h.conn, 5)
	day := dbtypes.MustDate("2023-12-01")

	dbtest.SeedLoan(t, h.conn, student.ID, book.ID, enums.LoanStatusApproved, day, nil)
	dbtest.SeedLoan(t, h.conn, other.ID, book.ID, enums.LoanStatusPending, day, nil)
	dbtest.SeedLoan(t, h.conn, other.ID, book.ID, enums.LoanStatusApproved, dbtypes.MustDate("2023-12-30"), nil)

	own, err := h.svc.List(ctx, Viewer{UserID: student.ID, Role: enums.RoleStudent}, ListQuery{})
	require.NoError(t, err)
	require.Len(t, own.Loans, 1)
	assert.Equal(t, student.ID, own.Loans[0].UserID)
	assert.True(t, own.Loans[0].Overdue)

	all, err := h.svc.List(ctx, Viewer{Role: enums.RoleAdmin}, ListQuery{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, all.Loans, 1)
	assert.Equal(t, enums.LoanStatusPending, all.Loans[0].Status)

	_, err = h.svc.List(ctx, Viewer{Role: enums.RoleAdmin}, ListQuery{Status: "lost"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	active, err := h.svc.ListActive(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, active.Loans, 2)

	overdue, err := h.svc.ListOverdue(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, overdue.Loans, 1, "due 2023-12-15 is overdue, due 2024-01-13 is not")
	assert.Equal(t, student.ID, overdue.Loans[0].UserID)
}

func TestListPaginates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, h.conn, 1)
	for i := 0; i < 3; i++ {
		_, err := h.svc.Request(ctx, student.ID, book.ID)
		require.NoError(t, err)
	}

	viewer := Viewer{UserID: student.ID, Role: enums.RoleStudent}
	first, err := h.svc.List(ctx, viewer, ListQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Loans, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := h.svc.List(ctx, viewer, ListQuery{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Loans, 1)
	assert.Empty(t, second.NextCursor)
	assert.NotContains(t, []uuid.UUID{first.Loans[0].ID, first.Loans[1].ID}, second.Loans[0].ID)
}

// One copy, one borrower, one waiter, a late return.
func TestCirculationScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	bob := dbtest.SeedUser(t, h.conn, enums.RoleStudent)
	book := dbtest.SeedBook(t, h.conn, 1)

	holdSvc, err := holds.NewService(holds.ServiceParams{
		Tx:     h.client,
		Repo:   holds.NewRepository(h.conn),
		Ledger: h.ledger,
		Logger: h.logg,
		Now:    h.clock.Now,
	})
	require.NoError(t, err)

	loan, err := h.svc.Request(ctx, alice.ID, book.ID)
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, h.available(t, book.ID))

	_, err = holdSvc.PlaceHold(ctx, bob.ID, enums.RoleStudent, book.ID)
	require.NoError(t, err)

	h.clock.set("2024-02-04")
	result, err := h.svc.Return(ctx, alice.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, result.DaysLate)
	assert.True(t, result.Fine.Equal(decimal.NewFromInt(1000)), "got fine %s", result.Fine)
	assert.Equal(t, 1, result.AvailableQuantity)
	assert.Equal(t, 1, h.available(t, book.ID))

	var holdCount int64
	require.NoError(t, h.conn.Model(&models.HoldRequest{}).Count(&holdCount).Error)
	assert.EqualValues(t, 1, holdCount, "holds are never promoted automatically")
}
