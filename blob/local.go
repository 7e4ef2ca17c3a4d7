package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalStore writes blobs under a date-based directory layout:
// <base>/YYYY/MM/DD/<name>. Locations are absolute filesystem paths.
type LocalStore struct {
	base string
	now  func() time.Time
}

// NewLocalStore creates a LocalStore rooted at base.
func NewLocalStore(base string) *LocalStore {
	return &LocalStore{base: base, now: time.Now}
}

func (s *LocalStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.base, s.now().Format("2006/01/02"), filepath.Dir(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	// A blob is written at most once per name; a prior write wins.
	if _, err := os.Stat(path); err == nil {
		return abs, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s: %w", path, err)
	}
	return abs, nil
}
