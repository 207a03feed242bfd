package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/libraryhub-backend/api/responses"
	"github.com/angelmondragon/libraryhub-backend/api/validators"
	"github.com/angelmondragon/libraryhub-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
)

// AuthRegister creates an account and signs it in.
func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Register(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AuthLogin accepts JSON {matric_no, password} or an OAuth2-style form with
// username and password.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeLogin(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AuthLogout revokes the session behind the presented token.
func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Logout(r.Context(), p.AccessID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail{Detail: "logged out"})
	}
}

func decodeLogin(r *http.Request) (auth.LoginRequest, error) {
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return auth.LoginRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid form body")
		}
		body := auth.LoginRequest{
			MatricNo: strings.TrimSpace(r.PostForm.Get("username")),
			Password: r.PostForm.Get("password"),
		}
		if body.MatricNo == "" {
			body.MatricNo = strings.TrimSpace(r.PostForm.Get("matric_no"))
		}
		return body, validators.ValidateStruct(&body)
	}

	var body auth.LoginRequest
	err := validators.DecodeJSONBody(r, &body)
	return body, err
}
