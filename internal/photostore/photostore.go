// Package photostore archives evidence images after a submission.
package photostore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var ErrNotFound = errors.New("photo not found")

type PhotoStore interface {
	// Save stores r under a key derived from prefix. Prefix may contain "/"
	// to group files, e.g. by flow.
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (storageKey string, err error)
	Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, storageKey string) error
}

// Linker is implemented by stores whose objects are reachable at a public URL.
type Linker interface {
	PublicURL(storageKey string) string
}

// CleanPrefix turns an arbitrary prefix into a relative slash-separated path
// made of safe characters only.
func CleanPrefix(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '/':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.TrimLeft(path.Clean("/"+b.String()), "/")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}

func MimeTypeToExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func ExtToMimeType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Noop accepts and discards everything. It backs PHOTO_BACKEND=none.
type Noop struct{}

func (Noop) Save(_ context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return CleanPrefix(prefix) + MimeTypeToExt(mimeType), nil
}

func (Noop) Get(context.Context, string) (io.ReadCloser, string, error) {
	return nil, "", ErrNotFound
}

func (Noop) Delete(context.Context, string) error { return nil }
