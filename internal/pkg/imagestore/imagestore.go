// Package imagestore keeps course images on the local disk or in an S3 bucket.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("image not found")

// Store reads and writes image objects addressed by slash separated keys.
type Store interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	URL(key string) string
}

// CourseImageKey is where a course's card image is stored.
func CourseImageKey(courseUUID, sourceKey string) string {
	name := path.Base(NormalizeKey(sourceKey))
	if name == "." || name == "/" || name == "" {
		name = "image"
	}
	return path.Join("media", "course", "image", courseUUID+"-"+name)
}

// NormalizeKey strips leading slashes and rejects parent references.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimLeft(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return ""
	}
	return key
}

// Copy duplicates src to dst inside the store and returns the public URL of dst.
func Copy(ctx context.Context, s Store, src, dst string) (string, error) {
	r, err := s.Open(ctx, src)
	if err != nil {
		return "", err
	}
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", src, err)
	}
	if err := s.Put(ctx, dst, body, DetectContentType(body)); err != nil {
		return "", err
	}
	return s.URL(dst), nil
}

// DetectContentType sniffs the image type from its leading bytes.
func DetectContentType(body []byte) string {
	if len(body) == 0 {
		return "application/octet-stream"
	}
	return mimetype.Detect(body).String()
}
