package kv

import (
	"errors"
	"reflect"
	"testing"
)

func TestBatch_AppliesAtomicallyInOrder(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Store) {
		b := stringBucket(t, s, "data")
		fill(t, b, "stale", "x")

		batch := NewBatch[String, String]()
		if err := batch.Set("a", "1"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := batch.Set("b", "2"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := batch.Remove("stale"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		// Later operations win over earlier ones on the same key.
		if err := batch.Set("a", "1-final"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if batch.Len() != 4 {
			t.Fatalf("Len = %d, wanted 4", batch.Len())
		}

		if err := b.Batch(batch); err != nil {
			t.Fatalf("Batch failed: %v", err)
		}

		v, err := b.Get("a")
		if err != nil || v == nil || *v != "1-final" {
			t.Fatalf("Get(a) = (%v, %v), wanted 1-final", v, err)
		}
		v, err = b.Get("stale")
		if err != nil || v != nil {
			t.Fatalf("Get(stale) = (%v, %v), wanted removed", v, err)
		}

		it, err := b.Iter()
		if err != nil {
			t.Fatalf("Iter failed: %v", err)
		}
		got := collect(t, it)
		want := []string{"a", "b"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("keys after batch = %v, wanted %v", got, want)
		}
	})
}

func TestBatch_RemoveOfAbsentKeyIsNoop(t *testing.T) {
	s := openTestStore(t, EngineMemory)
	b := stringBucket(t, s, "data")

	batch := NewBatch[String, String]()
	if err := batch.Remove("ghost"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := b.Batch(batch); err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
}

func TestBatch_EncodingFailsAtQueueTime(t *testing.T) {
	batch := NewBatch[String, Json[chan int]]()
	err := batch.Set("k", NewJson(make(chan int)))
	if err == nil {
		t.Fatalf("Set of unencodable value succeeded, wanted error")
	}
	if batch.Len() != 0 {
		t.Fatalf("failed Set still queued an operation")
	}
}

func TestBatch_InsideTransaction(t *testing.T) {
	s := openTestStore(t, EngineBolt)
	b := stringBucket(t, s, "data")

	batch := NewBatch[String, String]()
	_ = batch.Set("a", "1")
	_ = batch.Set("b", "2")

	boom := errors.New("boom")
	err := b.Transaction(func(tx *Transaction[String, String]) error {
		if err := tx.Batch(batch); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction err = %v, wanted boom", err)
	}
	if v, err := b.Get("a"); err != nil || v != nil {
		t.Fatalf("Get(a) = (%v, %v), wanted rolled back", v, err)
	}

	err = b.Transaction(func(tx *Transaction[String, String]) error {
		return tx.Batch(batch)
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
	if v, err := b.Get("b"); err != nil || v == nil || *v != "2" {
		t.Fatalf("Get(b) = (%v, %v), wanted 2", v, err)
	}
}
