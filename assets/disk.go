package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiskStore keeps images in a local directory that the server exposes under baseURL.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, filepath.FromSlash(KeyPrefix)), 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (d *DiskStore) Dir() string {
	return d.dir
}

func (d *DiskStore) PublicURL(key string) string {
	return d.baseURL + "/" + key
}

func (d *DiskStore) Upload(ctx context.Context, originalName, contentType string, r io.Reader) (Asset, error) {
	key, err := newKey(originalName)
	if err != nil {
		return Asset{}, err
	}

	target := filepath.Join(d.dir, filepath.FromSlash(key))
	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Asset{}, fmt.Errorf("create %s: %w", key, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(target)
		return Asset{}, fmt.Errorf("write %s: %w", key, err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Key: key, URL: d.PublicURL(key), Size: n, LastModified: info.ModTime()}, nil
}

// List returns images newest first.
func (d *DiskStore) List(ctx context.Context) ([]Asset, error) {
	root := filepath.Join(d.dir, filepath.FromSlash(KeyPrefix))
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	var out []Asset
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := extension(e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		key := KeyPrefix + e.Name()
		out = append(out, Asset{Key: key, URL: d.PublicURL(key), Size: info.Size(), LastModified: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

func (d *DiskStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(d.dir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
