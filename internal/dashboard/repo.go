package dashboard

import (
	"context"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository runs the aggregate queries behind the admin dashboard.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a dashboard repository to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type statusCount struct {
	Status enums.LoanStatus
	Total  int64
}

func (r *Repository) CountBooks(ctx context.Context) (int64, error) {
	return r.count(r.db.WithContext(ctx).Model(&models.Book{}))
}

func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	return r.count(r.db.WithContext(ctx).Model(&models.User{}))
}

func (r *Repository) CountHolds(ctx context.Context) (int64, error) {
	return r.count(r.db.WithContext(ctx).Model(&models.HoldRequest{}))
}

func (r *Repository) CountActiveLoans(ctx context.Context) (int64, error) {
	return r.count(r.active(ctx))
}

// CountOverdueLoans counts active loans whose due date is before today.
func (r *Repository) CountOverdueLoans(ctx context.Context, today dbtypes.Date) (int64, error) {
	return r.count(r.active(ctx).Where("due_date < ?", today))
}

func (r *Repository) CountPendingLoans(ctx context.Context) (int64, error) {
	return r.count(r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("status = ?", enums.LoanStatusPending))
}

func (r *Repository) CountReturnedLoans(ctx context.Context) (int64, error) {
	return r.count(r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("returned = ?", true))
}

// TotalCopies sums quantity across the catalogue.
func (r *Repository) TotalCopies(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Book{}).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}

// LoansByStatus returns loan counts keyed by status. Statuses with no rows
// are reported as zero.
func (r *Repository) LoansByStatus(ctx context.Context) (map[enums.LoanStatus]int64, error) {
	var rows []statusCount
	if err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[enums.LoanStatus]int64{
		enums.LoanStatusPending:  0,
		enums.LoanStatusApproved: 0,
		enums.LoanStatusRejected: 0,
	}
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

func (r *Repository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("status = ? AND returned = ?", enums.LoanStatusApproved, false)
}

func (r *Repository) count(q *gorm.DB) (int64, error) {
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
