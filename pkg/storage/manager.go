// Package storage persists fetched page bodies on disk, keyed by
// content hash so identical bodies are stored once.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Manager stores page bodies under <dir>/<hash[:2]>/<hash>.html.
// Sharding by the first two hash characters keeps any one directory
// from growing unboundedly.
type Manager struct {
	pagesDir string
	stored   map[string]bool
	mu       sync.RWMutex
}

// NewManager creates the pages directory and indexes what is already
// stored.
func NewManager(pagesDir string) (*Manager, error) {
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create pages directory: %w", err)
	}

	m := &Manager{
		pagesDir: pagesDir,
		stored:   make(map[string]bool),
	}
	if err := m.scanExisting(); err != nil {
		return nil, fmt.Errorf("storage: scan existing pages: %w", err)
	}
	return m, nil
}

func (m *Manager) scanExisting() error {
	shards, err := os.ReadDir(m.pagesDir)
	if err != nil {
		return err
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(m.pagesDir, shard.Name()))
		if err != nil {
			return err
		}
		for _, e := range entries {
			if filepath.Ext(e.Name()) == ".html" {
				hash := e.Name()[:len(e.Name())-len(".html")]
				m.stored[hash] = true
			}
		}
	}
	return nil
}

// Path returns the storage path for a content hash, relative to
// nothing: it includes the pages directory.
func (m *Manager) Path(hash string) string {
	return filepath.Join(m.pagesDir, hash[:2], hash+".html")
}

// Has reports whether a body with this hash is already stored
func (m *Manager) Has(hash string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stored[hash]
}

// Save writes a page body under its hash. Saving an already stored
// hash is a cheap no-op. The write goes through a temp file and a
// rename, so a crash never leaves a truncated page behind.
func (m *Manager) Save(hash string, body []byte) (string, error) {
	if len(hash) < 2 {
		return "", fmt.Errorf("storage: malformed content hash %q", hash)
	}

	path := m.Path(hash)
	if m.Has(hash) {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("storage: create shard directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return "", fmt.Errorf("storage: write page: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("storage: finalize page: %w", err)
	}

	m.mu.Lock()
	m.stored[hash] = true
	m.mu.Unlock()
	return path, nil
}

// Load reads a stored page body by hash
func (m *Manager) Load(hash string) ([]byte, error) {
	if len(hash) < 2 {
		return nil, fmt.Errorf("storage: malformed content hash %q", hash)
	}
	body, err := os.ReadFile(m.Path(hash))
	if err != nil {
		return nil, fmt.Errorf("storage: read page: %w", err)
	}
	return body, nil
}

// Count returns how many distinct page bodies are stored
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stored)
}
