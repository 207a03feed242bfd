package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/libraryhub-backend/api/middleware"
	"github.com/angelmondragon/libraryhub-backend/api/validators"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/pagination"
)

type page struct {
	limit  int
	cursor string
}

func pageFromQuery(r *http.Request) (page, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return page{}, err
	}
	return page{limit: limit, cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}, nil
}

func requirePrincipal(r *http.Request) (middleware.Principal, error) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return middleware.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return p, nil
}

// detail is the plain acknowledgement body for endpoints with nothing to return.
type detail struct {
	Detail string `json:"detail"`
}
