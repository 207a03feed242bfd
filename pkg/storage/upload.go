package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

// ErrUnsupportedImage is returned for uploads outside the image allow-list.
var ErrUnsupportedImage = errors.New("unsupported image format")

var imageContentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// Upload is an image received from a client.
type Upload struct {
	Filename string
	Body     io.Reader
}

// ImageExt validates filename against the allow-list and returns its
// lower-case extension.
func ImageExt(filename string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(strings.TrimSpace(filename))), ".")
	if _, ok := imageContentTypes[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, ext)
	}
	return ext, nil
}

// PutImage stores upload under a fresh key below prefix.
func PutImage(ctx context.Context, store Store, prefix string, upload Upload) (Object, error) {
	ext, err := ImageExt(upload.Filename)
	if err != nil {
		return Object{}, err
	}
	return store.Put(ctx, NewObjectKey(prefix, ext), imageContentTypes[ext], upload.Body)
}

// Discard removes a staged object after the write that would have referenced
// it failed. The returned error always carries cause.
func Discard(ctx context.Context, store Store, staged *Object, cause error) error {
	if staged == nil || staged.Key == "" {
		return cause
	}
	if err := store.Delete(ctx, staged.Key); err != nil {
		return multierr.Append(cause, fmt.Errorf("discard %s: %w", staged.Key, err))
	}
	return cause
}
