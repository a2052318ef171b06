// Package storage persists generated documents on disk and report records in BadgerDB.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/validation"
)

// ErrNotFound is returned for a missing file, record or template
var ErrNotFound = errors.New("not found")

// FileInfo describes one stored document. CreatedAt is the modification time on
// platforms without a portable birth time.
type FileInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ContentStore keeps generated documents as flat files under one directory
type ContentStore struct {
	root string
	log  zerolog.Logger

	once    sync.Once
	initErr error
}

// NewContentStore returns a store rooted at dir. The directory is created on first write.
func NewContentStore(dir string, log zerolog.Logger) *ContentStore {
	return &ContentStore{root: dir, log: log}
}

// Root returns the storage directory
func (s *ContentStore) Root() string {
	return s.root
}

// EnsureDir creates the storage directory once
func (s *ContentStore) EnsureDir() error {
	s.once.Do(func() {
		if err := os.MkdirAll(s.root, 0755); err != nil {
			s.initErr = fmt.Errorf("failed to create storage directory %s: %w", s.root, err)
		}
	})
	return s.initErr
}

// Path resolves name inside the store. Names with separators are rejected.
func (s *ContentStore) Path(name string) (string, error) {
	if err := validation.ValidateFileName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}

// Write stores data under name through a temp file and returns the final path
func (s *ContentStore) Write(name string, data []byte) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}
	if err := s.EnsureDir(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.root, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to store %s: %w", name, err)
	}

	s.log.Debug().Str("file", name).Int("bytes", len(data)).Msg("Document stored")
	return path, nil
}

// Exists reports whether name is a stored regular file
func (s *ContentStore) Exists(name string) bool {
	_, err := s.Stat(name)
	return err == nil
}

// Stat returns metadata for name, or ErrNotFound
func (s *ContentStore) Stat(name string) (FileInfo, error) {
	path, err := s.Path(name)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return FileInfo{}, ErrNotFound
	}
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return FileInfo{}, ErrNotFound
	}
	return FileInfo{
		Name:       name,
		Size:       info.Size(),
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
	}, nil
}

// Read returns the content of name, or ErrNotFound
func (s *ContentStore) Read(name string) ([]byte, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// Delete removes name. It reports false without error when the file did not exist.
func (s *ContentStore) Delete(name string) (bool, error) {
	path, err := s.Path(name)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", name, err)
	}
	s.log.Info().Str("file", name).Msg("Document deleted")
	return true, nil
}

// staleTemp is how long an interrupted write may leave its temp file behind
const staleTemp = time.Hour

// Sweep deletes files ending in suffix whose modification time is strictly before cutoff,
// and temp files abandoned for longer than staleTemp. Only documents are counted.
// Files that cannot be removed are logged and skipped.
func (s *ContentStore) Sweep(cutoff time.Time, suffix string) (int, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", s.root, err)
	}

	removed := 0
	tempCutoff := time.Now().Add(-staleTemp)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".tmp") {
			s.removeStaleTemp(e, tempCutoff)
			continue
		}
		if !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, e.Name())); err != nil {
			s.log.Warn().Err(err).Str("file", e.Name()).Msg("Failed to remove expired document")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.Info().Int("count", removed).Time("cutoff", cutoff).Msg("Expired documents removed")
	}
	return removed, nil
}

func (s *ContentStore) removeStaleTemp(e fs.DirEntry, cutoff time.Time) {
	info, err := e.Info()
	if err != nil || !info.ModTime().Before(cutoff) {
		return
	}
	if err := os.Remove(filepath.Join(s.root, e.Name())); err != nil {
		s.log.Warn().Err(err).Str("file", e.Name()).Msg("Failed to remove abandoned temp file")
		return
	}
	s.log.Info().Str("file", e.Name()).Msg("Abandoned temp file removed")
}
