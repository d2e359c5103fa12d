package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local stores images below a directory and serves them under baseURL.
type Local struct {
	root    string
	baseURL string
}

func NewLocal(root, baseURL string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("image store root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create image store root: %w", err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}, nil
}

func (l *Local) resolve(key string) (string, error) {
	key = NormalizeKey(key)
	if key == "" {
		return "", fmt.Errorf("invalid image key")
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, err
}

func (l *Local) Put(_ context.Context, key string, body []byte, _ string) error {
	p, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return fmt.Errorf("write image %s: %w", key, err)
	}
	return nil
}

func (l *Local) URL(key string) string {
	key = NormalizeKey(key)
	if l.baseURL == "" {
		return "/" + key
	}
	return l.baseURL + "/" + key
}
