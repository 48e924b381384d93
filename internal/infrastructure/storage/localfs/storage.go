package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

// Storage keeps uploaded source images under basePath/images.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/artifacts"
	}
	if err := os.MkdirAll(filepath.Join(basePath, imagesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

const imagesDir = "images"

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path, err := s.imagePath(key)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, data)
		return err
	}); err != nil {
		return fmt.Errorf("write image %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.imagePath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "open image", fmt.Errorf("key %s", key))
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes a stored image. A missing key is not an error.
func (s *Storage) Delete(_ context.Context, key string) error {
	path, err := s.imagePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image %s: %w", key, err)
	}
	return nil
}

func (s *Storage) imagePath(key string) (string, error) {
	if err := validateName(key); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "image key", err)
	}
	return filepath.Join(s.basePath, imagesDir, key), nil
}

// validateName accepts a single path element only.
func validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("name %q is reserved", name)
	case strings.ContainsAny(name, `/\`) || filepath.Base(name) != name:
		return fmt.Errorf("name %q must not contain path separators", name)
	}
	return nil
}

// writeAtomic writes to a temp file in the target directory and renames it in
// place, so readers never observe a partial blob.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
