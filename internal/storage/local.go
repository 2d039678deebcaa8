// Package storage persists attachment blobs. Records in message_files
// reference blobs by stored name.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var ErrBlobNotFound = errors.New("blob not found")

// BlobStore reads and writes attachment payloads.
type BlobStore interface {
	Save(data []byte, extension string) (string, error)
	Load(storedName string) ([]byte, error)
	Delete(storedName string) error
}

// LocalStore keeps blobs on the local filesystem under a single
// directory, named by uuid so original names never touch the disk.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the upload directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save writes the payload under a fresh uuid name and returns it.
func (s *LocalStore) Save(data []byte, extension string) (string, error) {
	name := uuid.NewString()
	if extension != "" {
		name += extension
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o640); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return name, nil
}

// Load reads a blob by stored name.
func (s *LocalStore) Load(storedName string) ([]byte, error) {
	// Stored names are server-generated uuids; reject anything that
	// could traverse out of the upload dir.
	if filepath.Base(storedName) != storedName {
		return nil, ErrBlobNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.dir, storedName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return data, err
}

// Delete removes a blob; deleting a missing blob is not an error.
func (s *LocalStore) Delete(storedName string) error {
	if filepath.Base(storedName) != storedName {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, storedName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
