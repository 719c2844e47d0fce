// Package uploadsession persists resumable upload session URIs so an
// interrupted import can continue from the last byte the service accepted.
package uploadsession

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCorrupt is returned when a session file cannot be parsed. The file is
// removed before returning.
var ErrCorrupt = errors.New("uploadsession: corrupt session file")

const (
	filePerms = 0o600
	dirPerms  = 0o700
)

// StaleAge is how old a session file may get before cleanup removes it.
// The service forgets resumable sessions after about a week.
const StaleAge = 7 * 24 * time.Hour

// cleanThrottle bounds how often Save triggers a directory scan.
const cleanThrottle = time.Hour

// Record is the on-disk form of one upload session.
type Record struct {
	Target     string    `json:"target"`
	LocalPath  string    `json:"local_path"`
	SessionURI string    `json:"session_uri"`
	FileSize   int64     `json:"file_size"`
	ModTime    time.Time `json:"mod_time"`
	CreatedAt  time.Time `json:"created_at"`
}

// Matches reports whether the record was created for a file of this size
// and modification time. A changed file must not resume an old session.
func (r *Record) Matches(size int64, modTime time.Time) bool {
	return r.FileSize == size && r.ModTime.Equal(modTime)
}

// Store keeps one JSON file per (target, local path) pair in a directory.
// Safe for concurrent use.
type Store struct {
	dir    string
	logger *slog.Logger

	cleanMu   sync.Mutex
	lastClean time.Time
}

// NewStore returns a Store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{dir: dir, logger: logger}
}

// Dir returns the directory holding session files.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the session for target and localPath, or nil, nil when none
// is stored.
func (s *Store) Load(target, localPath string) (*Record, error) {
	path := s.filePath(target, localPath)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("uploadsession: reading %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.SessionURI == "" {
		s.logger.Warn("corrupt upload session file, deleting",
			slog.String("path", path),
		)

		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("failed to remove corrupt upload session file",
				slog.String("path", path),
				slog.String("error", rmErr.Error()),
			)
		}

		if err == nil {
			err = errors.New("missing session_uri")
		}

		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return &rec, nil
}

// Save writes rec for target and localPath atomically.
func (s *Store) Save(target, localPath string, rec *Record) error {
	if err := os.MkdirAll(s.dir, dirPerms); err != nil {
		return fmt.Errorf("uploadsession: creating %s: %w", s.dir, err)
	}

	rec.Target = target
	rec.LocalPath = localPath

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("uploadsession: marshaling record: %w", err)
	}

	path := s.filePath(target, localPath)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, filePerms); err != nil {
		return fmt.Errorf("uploadsession: writing temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("uploadsession: renaming temp file: %w", err)
	}

	s.cleanMu.Lock()
	due := time.Since(s.lastClean) >= cleanThrottle
	s.cleanMu.Unlock()

	if due {
		go s.cleanIfDue()
	}

	return nil
}

// Delete removes the session for target and localPath. A missing file is
// not an error.
func (s *Store) Delete(target, localPath string) error {
	if err := os.Remove(s.filePath(target, localPath)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("uploadsession: deleting session: %w", err)
	}

	return nil
}

// CleanStale removes session files last written more than maxAge ago and
// returns how many were removed.
func (s *Store) CleanStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("uploadsession: reading %s: %w", s.dir, err)
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to clean stale upload session",
				slog.String("file", e.Name()),
				slog.String("error", err.Error()),
			)

			continue
		}

		deleted++
	}

	return deleted, nil
}

func (s *Store) cleanIfDue() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in upload session cleanup", slog.Any("panic", r))
		}
	}()

	s.cleanMu.Lock()
	if time.Since(s.lastClean) < cleanThrottle {
		s.cleanMu.Unlock()
		return
	}

	s.lastClean = time.Now()
	s.cleanMu.Unlock()

	n, err := s.CleanStale(StaleAge)
	if err != nil {
		s.logger.Warn("upload session cleanup failed", slog.String("error", err.Error()))
		return
	}

	if n > 0 {
		s.logger.Info("cleaned stale upload sessions", slog.Int("count", n))
	}
}

// key hashes a length-prefixed target so "a:"+"b" and "a"+":b" differ.
func key(target, localPath string) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%d:%s:%s", len(target), target, localPath))

	return fmt.Sprintf("%x.json", h)
}

func (s *Store) filePath(target, localPath string) string {
	return filepath.Join(s.dir, key(target, localPath))
}
