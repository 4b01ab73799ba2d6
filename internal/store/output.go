// Package store persists per-feature output files, the claim locks that keep
// two workers off the same feature, and the job-state ledger.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
)

// OutputExt is the extension of per-feature output files.
const OutputExt = ".txt"

const lockExt = ".lock"

// ErrClaimed is returned by Claim when another worker holds the feature.
var ErrClaimed = errors.New("feature already claimed")

// OutputStore writes one text file per feature into a directory.
type OutputStore struct {
	dir string
}

// NewOutputStore returns a store rooted at dir, creating it if needed.
func NewOutputStore(dir string) (*OutputStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &OutputStore{dir: dir}, nil
}

// Dir returns the output directory.
func (s *OutputStore) Dir() string { return s.dir }

// Path returns the output file path of a feature.
func (s *OutputStore) Path(featureID string) string {
	return filepath.Join(s.dir, featureID+OutputExt)
}

// Exists reports whether the feature's output file is present.
func (s *OutputStore) Exists(featureID string) (bool, error) {
	_, err := os.Stat(s.Path(featureID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat output of %s: %w", featureID, err)
}

// Write stores content as the feature's output. The file appears under its
// final name only once fully written, so a crash never leaves a partial file
// that a later run would mistake for a finished feature.
func (s *OutputStore) Write(featureID string, content []byte) error {
	final := s.Path(featureID)
	tmp, err := os.CreateTemp(s.dir, "."+featureID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp output for %s: %w", featureID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write output of %s: %w", featureID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close output of %s: %w", featureID, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod output of %s: %w", featureID, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename output of %s: %w", featureID, err)
	}
	return nil
}

// Read returns the content of a feature's output file.
func (s *OutputStore) Read(featureID string) ([]byte, error) {
	return os.ReadFile(s.Path(featureID))
}

// List returns the IDs of all features with an output file, sorted by name.
func (s *OutputStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list output directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, OutputExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, OutputExt))
	}
	return ids, nil
}

// Claim takes the exclusive lock of a feature by creating <id>.lock with
// O_EXCL. It returns ErrClaimed when the lock already exists. The returned
// release function removes the lock.
func (s *OutputStore) Claim(featureID, owner string) (release func() error, err error) {
	path := filepath.Join(s.dir, featureID+lockExt)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%s: %w", featureID, ErrClaimed)
		}
		return nil, fmt.Errorf("claim %s: %w", featureID, err)
	}
	fmt.Fprintf(f, "%s %s\n", owner, domain.Clock().Now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("claim %s: %w", featureID, err)
	}
	return func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("release %s: %w", featureID, err)
		}
		return nil
	}, nil
}

// Locks returns the IDs of features whose lock file is present. Locks left
// behind by a killed process block their features until removed.
func (s *OutputStore) Locks() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+lockExt))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), lockExt))
	}
	return ids, nil
}

// Unlock removes a feature's lock file. Removing a missing lock is not an
// error.
func (s *OutputStore) Unlock(featureID string) error {
	path := filepath.Join(s.dir, featureID+lockExt)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unlock %s: %w", featureID, err)
	}
	return nil
}
