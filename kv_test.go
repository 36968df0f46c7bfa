package kv

import (
	"testing"
)

type (
	Account struct {
		Name    string `json:"name" msgpack:"n"`
		Balance int64  `json:"balance" msgpack:"b"`
	}
)

var testEngines = []string{EngineMemory, EngineBolt, EngineBadger}

func openTestStore(t testing.TB, engine string) *Store {
	t.Helper()
	cfg := NewConfig(t.TempDir()).SetEngine(engine)
	s, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore(%s) failed: %v", engine, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachEngine runs f against every storage backend, so cross-engine
// behavior differences show up as a failure of exactly one subtest.
func forEachEngine(t *testing.T, f func(t *testing.T, s *Store)) {
	for _, engine := range testEngines {
		t.Run(engine, func(t *testing.T) {
			f(t, openTestStore(t, engine))
		})
	}
}

func stringBucket(t testing.TB, s *Store, name string) *Bucket[String, String] {
	t.Helper()
	b, err := NewBucket[String, String](s, name)
	if err != nil {
		t.Fatalf("NewBucket(%q) failed: %v", name, err)
	}
	return b
}

func fill(t testing.TB, b *Bucket[String, String], pairs ...string) {
	t.Helper()
	if len(pairs)%2 != 0 {
		panic("fill wants key/value pairs")
	}
	for i := 0; i < len(pairs); i += 2 {
		if err := b.Put(String(pairs[i]), String(pairs[i+1])); err != nil {
			t.Fatalf("Put(%q) failed: %v", pairs[i], err)
		}
	}
}

func collect(t testing.TB, it *Iter[String, String]) []string {
	t.Helper()
	defer it.Close()
	var keys []string
	for it.Next() {
		k, err := it.Item().Key()
		if err != nil {
			t.Fatalf("Item().Key() failed: %v", err)
		}
		keys = append(keys, string(k))
	}
	return keys
}

func collectBack(t testing.TB, it *Iter[String, String]) []string {
	t.Helper()
	defer it.Close()
	var keys []string
	for it.NextBack() {
		k, err := it.Item().Key()
		if err != nil {
			t.Fatalf("Item().Key() failed: %v", err)
		}
		keys = append(keys, string(k))
	}
	return keys
}
