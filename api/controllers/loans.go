package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/libraryhub-backend/api/responses"
	"github.com/angelmondragon/libraryhub-backend/api/validators"
	"github.com/angelmondragon/libraryhub-backend/internal/loans"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/google/uuid"
)

type loanBookRequest struct {
	BookID string `json:"book_id" validate:"required,uuid"`
}

func LoanRequest(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body loanBookRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loan, err := svc.Request(r.Context(), p.UserID, uuid.MustParse(body.BookID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, loan)
	}
}

// LoanReturn closes the caller's active loan on the given book and reports
// any fine.
func LoanReturn(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body loanBookRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Return(r.Context(), p.UserID, uuid.MustParse(body.BookID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func LoanApprove(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return loanDecision(svc.Approve, logg)
}

func LoanReject(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return loanDecision(svc.Reject, logg)
}

func loanDecision(decide func(context.Context, uuid.UUID) (loans.LoanDTO, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "loanID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loan, err := decide(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loan)
	}
}

// LoanList returns the caller's loans, or all loans for admins, optionally
// filtered by status.
func LoanList(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pg, err := pageFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), loans.Viewer{UserID: p.UserID, Role: p.Role}, loans.ListQuery{
			Status: validators.SanitizeString(r.URL.Query().Get("status"), 32),
			Limit:  pg.limit,
			Cursor: pg.cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func LoanListActive(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pg, err := pageFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListActive(r.Context(), loans.ListQuery{Limit: pg.limit, Cursor: pg.cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
