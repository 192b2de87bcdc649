package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrAbsent is returned by Read when the named document does not exist.
var ErrAbsent = errors.New("document absent")

// DocumentStore is the byte-stream target backups are written to: an opaque
// writable location addressed by document name.
type DocumentStore interface {
	Write(name string, data []byte) error
	Read(name string) ([]byte, error)
	Delete(name string) error
}

// DirStore is a DocumentStore over a local directory.
type DirStore struct {
	dir string
}

// NewDirStore creates the directory if needed and returns a store over it.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Dir returns the backing directory path.
func (d *DirStore) Dir() string {
	return d.dir
}

func (d *DirStore) Write(name string, data []byte) error {
	// Write-then-rename so a crash mid-write never truncates the previous backup.
	tmp := filepath.Join(d.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(d.dir, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

func (d *DirStore) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

func (d *DirStore) Delete(name string) error {
	err := os.Remove(filepath.Join(d.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
