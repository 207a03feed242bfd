package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func fieldError(key, msg string, cause error) *pkgerrors.Error {
	if cause == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": key})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, msg).WithDetails(map[string]any{"field": key})
}

// ParseQueryInt reads an integer query parameter within [lo, hi], returning
// fallback when it is absent.
func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, fieldError(key, "query parameter must be numeric", nil)
	case n < lo || n > hi:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi})
	}
	return n, nil
}

// ParseQueryUUID returns uuid.Nil when the parameter is absent.
func ParseQueryUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldError(key, "query parameter must be a uuid", err)
	}
	return id, nil
}

func URLParamUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, key)))
	if err != nil {
		return uuid.Nil, fieldError(key, "invalid "+key, err)
	}
	return id, nil
}
