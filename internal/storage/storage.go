// Package storage keeps the bytes of uploaded attachments.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when an upload exceeds the size limit
var ErrTooLarge = errors.New("file exceeds size limit")

// ErrNotFound is returned for unknown keys
var ErrNotFound = errors.New("stored file not found")

// Store persists attachment bytes under opaque keys
type Store interface {
	Put(ctx context.Context, ext string, r io.Reader, maxSize int64) (key string, size int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// LocalStore keeps files in a directory on local disk
type LocalStore struct {
	dir string
}

// NewLocalStore creates the upload directory if needed
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Put writes r to a new uuid-named file. Reading stops one byte past maxSize
// so oversized uploads are detected without buffering them.
func (s *LocalStore) Put(ctx context.Context, ext string, r io.Reader, maxSize int64) (string, int64, error) {
	key := uuid.NewString()
	if ext = strings.TrimPrefix(strings.ToLower(ext), "."); ext != "" {
		key += "." + ext
	}

	path := filepath.Join(s.dir, key)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, copyErr := io.Copy(f, io.LimitReader(r, maxSize+1))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		err = fmt.Errorf("failed to write file: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("failed to close file: %w", closeErr)
	case n > maxSize:
		err = ErrTooLarge
	case ctx.Err() != nil:
		err = ctx.Err()
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Error("Failed to remove partial upload", "key", key, "error", rmErr)
		}
		return "", 0, err
	}

	return key, n, nil
}

// Open returns a reader for a stored file
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete removes a stored file; unknown keys are ignored
func (s *LocalStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// path maps a key to a file inside the store directory
func (s *LocalStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}
