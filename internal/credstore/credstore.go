// Package credstore persists the single OAuth2 credential used to talk to the
// remote table service. The credential is written atomically with owner-only
// permissions. This is a leaf package; auth/ consumes it through an interface.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts credential files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credential directory.
const DirPerms = 0o700

// ErrCorrupt is returned by Load when the file exists but cannot be decoded.
var ErrCorrupt = errors.New("credstore: corrupt credential file")

// Record is the on-disk format. Invalid mirrors a credential the service
// has rejected; it is persisted so the next process does not reuse it.
type Record struct {
	Token    *oauth2.Token `json:"token"`
	ClientID string        `json:"client_id,omitempty"`
	Scopes   []string      `json:"scopes,omitempty"`
	Invalid  bool          `json:"invalid,omitempty"`
	SavedAt  time.Time     `json:"saved_at"`
}

// File is a CredentialStore backed by one JSON file.
type File struct {
	path string
}

// NewFile returns a store for the credential at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the credential file location.
func (f *File) Path() string {
	return f.path
}

// Load reads the persisted credential. Returns (nil, nil) if the file does
// not exist. A file that exists but does not decode yields ErrCorrupt.
func (f *File) Load() (*Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", f.path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, f.path, err)
	}

	if rec.Token == nil {
		return nil, fmt.Errorf("%w: %s missing token field", ErrCorrupt, f.path)
	}

	return &rec, nil
}

// Save writes the credential atomically (write-to-temp + rename) with 0600
// permissions. Never logs token values.
func (f *File) Save(rec *Record) error {
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: encoding: %w", err)
	}

	return writeAtomic(f.path, data)
}

// Delete removes the credential file. A missing file is not an error.
func (f *File) Delete() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credstore: removing %s: %w", f.path, err)
	}

	return nil
}

// writeAtomic writes data to path via a temp file in the same directory, so
// a crash never leaves a partial credential at the final path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("credstore: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".cred-*.tmp")
	if err != nil {
		return fmt.Errorf("credstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credstore: renaming: %w", err)
	}

	success = true

	return nil
}
