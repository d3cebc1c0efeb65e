/*
covers.go - Book cover uploads

Covers are stored in an object bucket and referenced from books by public
URL. The ledger never sees the bytes; the admin API uploads first and passes
the returned URL to CreateBook.
*/
package covers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

const MaxSize = 5 << 20

var (
	ErrUnsupportedType = errors.New("unsupported cover content type")
	ErrTooLarge        = errors.New("cover exceeds size limit")
	ErrEmpty           = errors.New("cover is empty")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Store uploads a cover and returns the URL clients fetch it from.
type Store interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// Validate checks a cover before it is sent to the bucket.
func Validate(size int64, contentType string) error {
	if size <= 0 {
		return ErrEmpty
	}
	if size > MaxSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, MaxSize)
	}
	if _, ok := extensions[mediaType(contentType)]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	return nil
}

// NewKey returns a fresh object key for a cover of the given type,
// e.g. covers/2b1f.../cover.png.
func NewKey(contentType string) string {
	return path.Join("covers", uuid.NewString(), "cover"+extensions[mediaType(contentType)])
}

// Put validates the cover, picks a key, and uploads it.
func Put(ctx context.Context, s Store, r io.Reader, size int64, contentType string) (string, error) {
	if err := Validate(size, contentType); err != nil {
		return "", err
	}
	return s.Upload(ctx, NewKey(contentType), r, size, mediaType(contentType))
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
