package kv

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_DeduplicatesByPath(t *testing.T) {
	m := NewManager()
	defer m.Close()

	dir := filepath.Join(t.TempDir(), "db")
	s1, err := m.Open(NewConfig(dir))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s2, err := m.Open(NewConfig(dir))
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("two opens of the same path returned different stores")
	}

	// Different spellings of the same directory still hit the cache.
	s3, err := m.Open(NewConfig(dir + string(os.PathSeparator) + "." + string(os.PathSeparator)))
	if err != nil {
		t.Fatalf("Open with dotted path failed: %v", err)
	}
	if s3 != s1 {
		t.Fatalf("dotted path spelling opened a second store")
	}
}

func TestManager_ResolvesSymlinks(t *testing.T) {
	m := NewManager()
	defer m.Close()

	base := t.TempDir()
	real := filepath.Join(base, "real")
	if err := os.MkdirAll(real, 0777); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	s1, err := m.Open(NewConfig(real))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s2, err := m.Open(NewConfig(link))
	if err != nil {
		t.Fatalf("Open via symlink failed: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("symlinked path opened a second store")
	}
}

func TestManager_DistinctPathsGetDistinctStores(t *testing.T) {
	m := NewManager()
	defer m.Close()

	s1, err := m.Open(NewConfig(filepath.Join(t.TempDir(), "a")))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s2, err := m.Open(NewConfig(filepath.Join(t.TempDir(), "b")))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s1 == s2 {
		t.Fatalf("distinct paths share a store")
	}
}

func TestManager_Get(t *testing.T) {
	m := NewManager()
	defer m.Close()

	dir := filepath.Join(t.TempDir(), "db")
	if _, err := m.Get(dir); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before Open err = %v, wanted ErrNotFound", err)
	}

	s, err := m.Open(NewConfig(dir))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got, err := m.Get(dir)
	if err != nil || got != s {
		t.Fatalf("Get = (%p, %v), wanted the open store", got, err)
	}
}

func TestManager_ReopensAfterStoreClose(t *testing.T) {
	m := NewManager()
	defer m.Close()

	dir := filepath.Join(t.TempDir(), "db")
	s1, err := m.Open(NewConfig(dir))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := m.Get(dir); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after store close err = %v, wanted ErrNotFound", err)
	}

	s2, err := m.Open(NewConfig(dir))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	if s2 == s1 {
		t.Fatalf("Open returned the closed store")
	}
	if err := stringBucket(t, s2, "data").Put("k", "v"); err != nil {
		t.Fatalf("Put on reopened store failed: %v", err)
	}
}

func TestManager_CloseClosesAllStores(t *testing.T) {
	m := NewManager()
	dir := filepath.Join(t.TempDir(), "db")
	s, err := m.Open(NewConfig(dir))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	b := stringBucket(t, s, "data")

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Put("k", "v"); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("Put after manager close err = %v, wanted ErrStoreClosed", err)
	}
}
