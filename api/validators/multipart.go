package validators

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/storage"
)

const maxFormFieldLen = 2048

// ParseMultipart bounds the body to maxBytes and parses it as a multipart
// form. Callers must call r.MultipartForm.RemoveAll when done.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "upload too large").
				WithDetails(map[string]any{"max_bytes": maxBytes})
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	return nil
}

// FormString returns the trimmed form value.
func FormString(r *http.Request, key string) string {
	return SanitizeString(r.FormValue(key), maxFormFieldLen)
}

// FormOptionalString returns nil when the field was not sent at all.
func FormOptionalString(r *http.Request, key string) *string {
	if r.MultipartForm != nil {
		if _, ok := r.MultipartForm.Value[key]; !ok {
			return nil
		}
	} else if _, ok := r.Form[key]; !ok {
		return nil
	}
	v := FormString(r, key)
	return &v
}

// FormInt parses an integer form field.
func FormInt(r *http.Request, key string) (int, error) {
	raw := FormString(r, key)
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{key: "is required"})
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{key: "must be an integer"})
	}
	return value, nil
}

// FormImage opens the uploaded file under field. A missing optional file
// yields a nil upload; the returned closer is always safe to call.
func FormImage(r *http.Request, field string, required bool) (*storage.Upload, func(), error) {
	noop := func() {}
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			if required {
				return nil, noop, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{field: "is required"})
			}
			return nil, noop, nil
		}
		return nil, noop, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid upload")
	}
	if _, err := storage.ImageExt(header.Filename); err != nil {
		_ = file.Close()
		return nil, noop, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported image format")
	}
	return &storage.Upload{Filename: header.Filename, Body: file}, closer(file), nil
}

func closer(f multipart.File) func() {
	return func() { _ = f.Close() }
}
