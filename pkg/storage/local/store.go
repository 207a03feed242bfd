// Package local stores blobs on disk and serves them under a public URL prefix.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/angelmondragon/libraryhub-backend/pkg/storage"
	"go.uber.org/multierr"
)

type Store struct {
	root    string
	baseURL string
}

var _ storage.Store = (*Store)(nil)

// New creates the root directory when missing.
func New(root, baseURL string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &Store{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *Store) Put(ctx context.Context, key, _ string, body io.Reader) (storage.Object, error) {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return storage.Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return storage.Object{}, err
	}

	full := s.path(clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return storage.Object{}, fmt.Errorf("creating object dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return storage.Object{}, fmt.Errorf("creating object: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		err = multierr.Combine(err, f.Close(), os.Remove(full))
		return storage.Object{}, fmt.Errorf("writing object: %w", err)
	}
	if err := f.Close(); err != nil {
		return storage.Object{}, multierr.Append(fmt.Errorf("closing object: %w", err), os.Remove(full))
	}

	return storage.Object{Key: clean, URL: s.URL(clean)}, nil
}

// Delete removes the object. Missing objects are not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(s.path(clean)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

func (s *Store) URL(key string) string {
	return s.baseURL + "/" + key
}

// Handler serves stored objects; mount it under the base URL path.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(s.baseURL, http.FileServer(noListing{http.Dir(s.root)}))
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
