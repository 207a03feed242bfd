package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/libraryhub-backend/api/responses"
	"github.com/angelmondragon/libraryhub-backend/api/validators"
	"github.com/angelmondragon/libraryhub-backend/internal/users"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
)

const profilePictureField = "profile_picture"

type userUpdateRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Department *string `json:"department,omitempty" validate:"omitempty,max=255"`
	Role       *string `json:"role,omitempty"`
}

func UserList(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pg, err := pageFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		result, err := svc.List(r.Context(), users.ListQuery{
			Role:   validators.SanitizeString(q.Get("role"), 32),
			Query:  validators.SanitizeString(q.Get("q"), 200),
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

func UserMe(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Me(r.Context(), p.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// UserUpdateMe accepts a multipart form so a profile picture can ride along,
// or plain JSON for name/department edits.
func UserUpdateMe(svc users.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input users.SelfUpdateInput
		if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/") {
			if err := validators.ParseMultipart(w, r, maxUploadBytes); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			defer func() { _ = r.MultipartForm.RemoveAll() }()

			picture, closePicture, err := validators.FormImage(r, profilePictureField, false)
			defer closePicture()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input = users.SelfUpdateInput{
				Name:           validators.FormOptionalString(r, "name"),
				Department:     validators.FormOptionalString(r, "department"),
				ProfilePicture: picture,
			}
		} else {
			var body userUpdateRequest
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input = users.SelfUpdateInput{Name: body.Name, Department: body.Department}
		}

		result, err := svc.UpdateMe(r.Context(), p.UserID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func UserUpdate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body userUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Update(r.Context(), id, users.UpdateInput{
			Name:       body.Name,
			Department: body.Department,
			Role:       body.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func UserDelete(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), p.UserID, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail{Detail: "User deleted"})
	}
}
