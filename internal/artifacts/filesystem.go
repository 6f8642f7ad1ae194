package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilesystemStore keeps artifacts under a local base directory
type FilesystemStore struct {
	basePath string
}

// NewFilesystemStore creates the base directory if needed
func NewFilesystemStore(basePath string) (*FilesystemStore, error) {
	if basePath == "" {
		basePath = "./models"
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &FilesystemStore{basePath: basePath}, nil
}

func (s *FilesystemStore) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// Put writes data to a new file; existing files are never replaced
func (s *FilesystemStore) Put(ctx context.Context, key string, data []byte) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temp file first so readers never see a partial artifact
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".artifact-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	// Link fails if the target exists, which keeps keys write-once
	if err := os.Link(tmpName, fullPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, key)
		}
		return fmt.Errorf("failed to publish file: %w", err)
	}
	return nil
}

// Get reads the artifact at key
func (s *FilesystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return data, nil
}

// Exists checks if an artifact exists
func (s *FilesystemStore) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

// Delete removes an artifact; deleting a missing key is not an error
func (s *FilesystemStore) Delete(ctx context.Context, key string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// URI returns the local path of key
func (s *FilesystemStore) URI(key string) string {
	p, err := s.path(key)
	if err != nil {
		return key
	}
	return p
}
