package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe  = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Migration is one goose SQL file on disk.
type Migration struct {
	Version int64
	Name    string
	Path    string
}

// ListDir returns the SQL migrations in dir ordered by version. Bad file
// names, repeated versions and files missing a goose Up or Down section are
// errors.
func ListDir(dir string) ([]Migration, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	byVersion := map[int64]string{}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		m := fileNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("version %d used by both %q and %q", version, prev, e.Name())
		}
		byVersion[version] = e.Name()

		path := filepath.Join(dir, e.Name())
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				return nil, fmt.Errorf("migration %q has no %q section", e.Name(), marker)
			}
		}
		out = append(out, Migration{Version: version, Name: m[2], Path: path})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ValidateDir checks every migration in dir without touching a database.
func ValidateDir(dir string) error {
	_, err := ListDir(dir)
	return err
}

// CreateSQLMigration writes an empty goose migration named after name. The
// version is the current UTC second, bumped past the newest existing file so
// two quick calls never collide.
func CreateSQLMigration(dir string, name string) (string, error) {
	slug := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	existing, err := ListDir(dir)
	if err != nil {
		return "", err
	}

	version, _ := strconv.ParseInt(time.Now().UTC().Format(versionLayout), 10, 64)
	if n := len(existing); n > 0 && existing[n-1].Version >= version {
		version = existing[n-1].Version + 1
	}

	path := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", version, slug))
	body := fmt.Sprintf("-- +goose Up\n-- +goose StatementBegin\n-- %[1]s\n-- +goose StatementEnd\n\n"+
		"-- +goose Down\n-- +goose StatementBegin\n-- undo %[1]s\n-- +goose StatementEnd\n", slug)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}
