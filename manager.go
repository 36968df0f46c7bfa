package kv

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Manager deduplicates Store handles by canonical filesystem path. A process
// must not hold two independent engine handles onto the same physical
// database; open stores through a shared Manager to enforce that.
type Manager struct {
	mu     sync.Mutex
	stores map[string]*Store
}

func NewManager() *Manager {
	return &Manager{stores: make(map[string]*Store)}
}

// canonicalPath resolves cfg-style paths to one canonical form. The
// directory is created first so symlinks along the path can be resolved even
// on the very first open.
func canonicalPath(path string) (string, error) {
	if err := os.MkdirAll(path, 0777); err != nil {
		return "", fmt.Errorf("creating store directory: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}

// Open returns the Store for cfg.Path, constructing it on first use. Repeat
// opens of the same canonical path return the identical Store instance,
// regardless of how the path was spelled.
func (m *Manager) Open(cfg *Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	canonical, err := canonicalPath(cfg.Path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.stores[canonical]; s != nil && !s.closed.Load() {
		return s, nil
	}

	cfg = cfg.clone()
	cfg.Path = canonical
	s, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	m.stores[canonical] = s
	return s, nil
}

// Get returns the already-open Store for path, or ErrNotFound when it has
// not been opened through this Manager.
func (m *Manager) Get(path string) (*Store, error) {
	canonical, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stores[canonical]
	if s == nil || s.closed.Load() {
		return nil, fmt.Errorf("store at %s: %w", canonical, ErrNotFound)
	}
	return s, nil
}

// Close closes every store opened through the Manager, returning the first
// error encountered.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for path, s := range m.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.stores, path)
	}
	return firstErr
}
