package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ManifestName is the default manifest file inside the data directory.
const ManifestName = "processed.json"

const lockRetry = 50 * time.Millisecond

// Entry records the last time a file was processed.
type Entry struct {
	DocumentID  string    `json:"document_id"`
	ModTime     time.Time `json:"mod_time"`
	ProcessedAt time.Time `json:"processed_at"`
	Status      string    `json:"status"`
}

// Manifest tracks processed files by absolute path. Writes are guarded by a
// lock file so concurrent plog processes cannot interleave updates.
type Manifest struct {
	path  string
	Files map[string]Entry `json:"files"`
}

// LoadManifest reads the manifest at path. A missing file is an empty manifest.
func LoadManifest(path string) (*Manifest, error) {
	m := &Manifest{path: path, Files: make(map[string]Entry)}
	if err := m.read(); err != nil {
		return nil, err
	}
	return m, nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string { return m.path }

// Lookup returns the entry for path.
func (m *Manifest) Lookup(path string) (Entry, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Entry{}, false
	}
	e, ok := m.Files[abs]
	return e, ok
}

// Record merges entries (keyed by file path) into the manifest on disk. The
// file is re-read under the lock so updates from other processes survive.
func (m *Manifest) Record(ctx context.Context, entries map[string]Entry) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	lock := flock.New(m.path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("acquiring manifest lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("manifest %s is locked by another process", m.path)
	}
	defer func() { _ = lock.Unlock() }()

	if err := m.read(); err != nil {
		return err
	}
	for path, e := range entries {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		m.Files[abs] = e
	}
	return m.write()
}

func (m *Manifest) read() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	var disk struct {
		Files map[string]Entry `json:"files"`
	}
	if err := json.Unmarshal(data, &disk); err != nil {
		return fmt.Errorf("failed to parse manifest %s: %w", m.path, err)
	}
	for k, v := range disk.Files {
		m.Files[k] = v
	}
	return nil
}

// write replaces the manifest atomically.
func (m *Manifest) write() error {
	data, err := json.MarshalIndent(struct {
		Files map[string]Entry `json:"files"`
	}{m.Files}, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}
