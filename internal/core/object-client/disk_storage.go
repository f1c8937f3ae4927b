package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var _ ObjectStore = (*DiskStore)(nil)

// DiskStore keeps objects as files under a root directory. Keys map to
// relative paths and may not escape the root.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DiskStore{root: abs}, nil
}

// Fetch returns a handle over the stored file itself; Close leaves it in place.
func (d *DiskStore) Fetch(ctx context.Context, key string) (*models.LocalHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrFetch, err)
	}
	p, err := d.resolve(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrFetch, err)
	}

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: get %q: %w", core.ErrFetch, key, core.ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stat %q: %w", core.ErrFetch, key, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: get %q: %w", core.ErrFetch, key, core.ErrObjectNotFound)
	}
	return &models.LocalHandle{Key: key, Path: p, Size: info.Size()}, nil
}

// Put stores body under a fresh key derived from name.
func (d *DiskStore) Put(ctx context.Context, name string, body io.Reader, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := NewFileKey(name, time.Now())
	p, err := d.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := os.Rename(f.Name(), p); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	return key, nil
}

// URL returns a file:// URL for key under the blob dir.
func (d *DiskStore) URL(key string) string {
	p := filepath.Join(d.root, filepath.FromSlash(key))
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}

func (d *DiskStore) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	p := filepath.Join(d.root, filepath.FromSlash(key))
	if p != d.root && !strings.HasPrefix(p, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes the blob dir", key)
	}
	return p, nil
}
