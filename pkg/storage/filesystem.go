package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage persists uploaded documents flat under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	s := &LocalStorage{baseDir: baseDir}
	if err := s.EnsureDir(); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureDir creates the base directory when missing. Calling it repeatedly is harmless.
func (s *LocalStorage) EnsureDir() error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("create upload directory: %w", err)
	}
	return nil
}

// SaveStream copies from reader into the named file and returns the bytes written.
// A partially written file is removed when the copy fails.
func (s *LocalStorage) SaveStream(filename string, r io.Reader) (int64, error) {
	if err := s.EnsureDir(); err != nil {
		return 0, err
	}
	path := s.resolve(filename)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	written, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write upload stream: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("close upload file: %w", closeErr)
	}
	return written, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(filename string) (*os.File, error) {
	file, err := os.Open(s.resolve(filename))
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(filename string) error {
	if err := os.Remove(s.resolve(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

func (s *LocalStorage) resolve(filename string) string {
	return filepath.Join(s.baseDir, filepath.Base(filename))
}
