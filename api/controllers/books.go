package controllers

import (
	"net/http"

	"github.com/angelmondragon/libraryhub-backend/api/responses"
	"github.com/angelmondragon/libraryhub-backend/api/validators"
	"github.com/angelmondragon/libraryhub-backend/internal/books"
	"github.com/angelmondragon/libraryhub-backend/internal/holds"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
)

const coverField = "cover_image"

func BookList(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pg, err := pageFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		result, err := svc.List(r.Context(), books.ListQuery{
			Query:    validators.SanitizeString(q.Get("q"), 200),
			Category: validators.SanitizeString(q.Get("category"), 100),
			Limit:    pg.limit,
			Cursor:   pg.cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func BookGet(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "bookID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func BookCategories(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Categories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// BookCreate takes a multipart form; the cover image is required.
func BookCreate(svc books.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, cleanup, err := bookInputFromForm(w, r, maxUploadBytes, true)
		defer cleanup()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// BookUpdate replaces every field; a new cover is optional.
func BookUpdate(svc books.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "bookID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, cleanup, err := bookInputFromForm(w, r, maxUploadBytes, false)
		defer cleanup()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func BookDelete(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "bookID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail{Detail: "Book deleted"})
	}
}

// BookPlaceHold puts the calling student on the waitlist for a book.
func BookPlaceHold(svc holds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookID, err := validators.URLParamUUID(r, "bookID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		hold, err := svc.PlaceHold(r.Context(), p.UserID, p.Role, bookID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, hold)
	}
}

type bookForm struct {
	Title    string `json:"title" validate:"required,max=255"`
	Author   string `json:"author" validate:"required,max=255"`
	ISBN     string `json:"isbn" validate:"required,max=32"`
	Quantity int    `json:"quantity" validate:"min=0"`
}

func bookInputFromForm(w http.ResponseWriter, r *http.Request, maxBytes int64, coverRequired bool) (books.BookInput, func(), error) {
	cleanup := func() {}
	if err := validators.ParseMultipart(w, r, maxBytes); err != nil {
		return books.BookInput{}, cleanup, err
	}
	cleanup = func() { _ = r.MultipartForm.RemoveAll() }

	quantity, err := validators.FormInt(r, "quantity")
	if err != nil {
		return books.BookInput{}, cleanup, err
	}
	form := bookForm{
		Title:    validators.FormString(r, "title"),
		Author:   validators.FormString(r, "author"),
		ISBN:     validators.FormString(r, "isbn"),
		Quantity: quantity,
	}
	if err := validators.ValidateStruct(&form); err != nil {
		return books.BookInput{}, cleanup, err
	}

	cover, closeCover, err := validators.FormImage(r, coverField, coverRequired)
	if err != nil {
		return books.BookInput{}, cleanup, err
	}
	removeForm := cleanup
	cleanup = func() {
		closeCover()
		removeForm()
	}

	return books.BookInput{
		Title:       form.Title,
		Author:      form.Author,
		ISBN:        form.ISBN,
		Quantity:    form.Quantity,
		Description: validators.FormOptionalString(r, "description"),
		Category:    validators.FormOptionalString(r, "category"),
		Cover:       cover,
	}, cleanup, nil
}
