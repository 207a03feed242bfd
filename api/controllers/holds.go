package controllers

import (
	"net/http"

	"github.com/angelmondragon/libraryhub-backend/api/responses"
	"github.com/angelmondragon/libraryhub-backend/api/validators"
	"github.com/angelmondragon/libraryhub-backend/internal/holds"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
)

// HoldList returns the caller's holds, or every hold for admins.
func HoldList(svc holds.Service, logg *logger.Logger) http.HandlerFunc {
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
		bookID, err := validators.ParseQueryUUID(r, "book_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), holds.Viewer{UserID: p.UserID, Role: p.Role}, holds.ListQuery{
			BookID: bookID,
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
