// Package storage defines the blob store used for cover images and profile pictures.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidKey is returned for keys that would escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

// Object identifies a stored blob and where clients can fetch it.
type Object struct {
	Key string
	URL string
}

// Store writes and removes blobs. Put must return a URL that serves the object.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (Object, error)
	Delete(ctx context.Context, key string) error
}

const (
	PrefixBookCovers      = "book-covers"
	PrefixProfilePictures = "profile-pictures"
)

// NewObjectKey returns "<prefix>/<uuid>.<ext>".
func NewObjectKey(prefix, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return fmt.Sprintf("%s/%s.%s", strings.Trim(prefix, "/"), uuid.NewString(), ext)
}

// CleanKey normalizes key and rejects absolute or parent-relative paths.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + trimmed)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(trimmed, "./") || strings.HasPrefix(trimmed, "/") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
