package dashboard

import (
	"context"
	"time"

	"github.com/angelmondragon/libraryhub-backend/internal/loans"
	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type overdueLister interface {
	ListOverdue(ctx context.Context, query loans.ListQuery) (loans.LoanPageDTO, error)
}

// Service assembles admin dashboard figures.
type Service interface {
	Stats(ctx context.Context) (StatsDTO, error)
	Summary(ctx context.Context) (SummaryDTO, error)
	Overdue(ctx context.Context, query loans.ListQuery) (loans.LoanPageDTO, error)
}

// ServiceParams groups dashboard dependencies.
type ServiceParams struct {
	Repo  *Repository
	Loans overdueLister
	Now   func() time.Time
}

type service struct {
	repo  *Repository
	loans overdueLister
	now   func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dashboard repo is required")
	case params.Loans == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan service is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, loans: params.Loans, now: now}, nil
}

// Stats runs its counts concurrently; the first failure cancels the rest.
func (s *service) Stats(ctx context.Context) (StatsDTO, error) {
	var out StatsDTO
	today := dbtypes.NewDate(s.now())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.TotalBooks, err = s.repo.CountBooks(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.BorrowedBooks, err = s.repo.CountActiveLoans(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.OverdueBooks, err = s.repo.CountOverdueLoans(gctx, today)
		return err
	})
	g.Go(func() (err error) {
		out.ActiveUsers, err = s.repo.CountUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.PendingRequests, err = s.repo.CountPendingLoans(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return StatsDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dashboard stats")
	}
	return out, nil
}

func (s *service) Summary(ctx context.Context) (SummaryDTO, error) {
	var (
		out    SummaryDTO
		active int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.TotalCopies, err = s.repo.TotalCopies(gctx)
		return err
	})
	g.Go(func() (err error) {
		active, err = s.repo.CountActiveLoans(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.LoansByStatus, err = s.repo.LoansByStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.ReturnedLoans, err = s.repo.CountReturnedLoans(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Holds, err = s.repo.CountHolds(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return SummaryDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dashboard summary")
	}
	out.AvailableCopies = out.TotalCopies - active
	if out.LoansByStatus == nil {
		out.LoansByStatus = map[enums.LoanStatus]int64{}
	}
	return out, nil
}

func (s *service) Overdue(ctx context.Context, query loans.ListQuery) (loans.LoanPageDTO, error) {
	return s.loans.ListOverdue(ctx, query)
}
