// Package assets stores uploaded blog images on local disk or in S3.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyPrefix is the folder every uploaded image lives under.
const KeyPrefix = "blog-images/"

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrInvalidKey      = errors.New("invalid asset key")
	ErrNotFound        = errors.New("asset not found")
)

var allowedExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
}

type Asset struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Markdown is the snippet the editor pastes into a post.
func (a Asset) Markdown() string {
	return fmt.Sprintf("![Image Description](%s)", a.URL)
}

type Store interface {
	Upload(ctx context.Context, originalName, contentType string, r io.Reader) (Asset, error)
	PublicURL(key string) string
	List(ctx context.Context) ([]Asset, error)
	Delete(ctx context.Context, key string) error
}

// extension returns the lower-cased extension of name if it is an allowed image type.
func extension(name string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return ext, nil
}

// newKey picks a random name so uploads never overwrite each other.
func newKey(originalName string) (string, error) {
	ext, err := extension(originalName)
	if err != nil {
		return "", err
	}
	return KeyPrefix + uuid.New().String() + "." + ext, nil
}

func contentTypeFor(key, given string) string {
	if given != "" && given != "application/octet-stream" {
		return given
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
	if ct, ok := allowedExtensions[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// CleanKey validates a key taken from a request path.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if !strings.HasPrefix(key, KeyPrefix) || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	if path.Clean(key) != key {
		return "", ErrInvalidKey
	}
	if _, err := extension(key); err != nil {
		return "", ErrInvalidKey
	}
	return key, nil
}
