package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/prappser/prappser_cdn/internal/cdnerr"
)

const DefaultLocalPath = "files/chunks"

// LocalStorage keeps objects as files below basePath. Writes go to a
// temporary file in the target directory and are renamed into place, so
// readers never observe a partially written chunk.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(config *BackendConfig) (*LocalStorage, error) {
	basePath := config.LocalPath
	if basePath == "" {
		basePath = DefaultLocalPath
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating storage directory: %v", cdnerr.ErrIO, err)
	}

	return &LocalStorage{basePath: basePath}, nil
}

func (s *LocalStorage) fullPath(path string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(path)) {
		return "", fmt.Errorf("%w: %q escapes the storage directory", cdnerr.ErrInvalidPath, path)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(path)), nil
}

func (s *LocalStorage) Store(ctx context.Context, path string, reader io.Reader) error {
	fullPath, err := s.fullPath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fullPath)

	// MkdirAll succeeds when another writer created the directory first.
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", cdnerr.ErrIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", cdnerr.ErrIO, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %v", cdnerr.ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %v", cdnerr.ErrIO, path, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming into %s: %v", cdnerr.ErrIO, path, err)
	}

	return nil
}

func (s *LocalStorage) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := s.fullPath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", cdnerr.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", cdnerr.ErrIO, err)
	}

	return file, nil
}

func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := s.fullPath(path)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", cdnerr.ErrIO, err)
	}

	return true, nil
}
