package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

func watchPrefix[K Key[K], V Value[V]](t *testing.T, b *Bucket[K, V], prefix *K) *Watch[K, V] {
	t.Helper()
	w, err := b.WatchPrefix(prefix)
	if err != nil {
		t.Fatalf("WatchPrefix failed: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func expectNoEvent[K Key[K], V Value[V]](t *testing.T, w *Watch[K, V]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ev, err := w.NextContext(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("NextContext = (%v, %v), wanted deadline exceeded", ev, err)
	}
}

func TestWatch_DeliversSetAndRemove(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Store) {
		b := stringBucket(t, s, "watch")
		w := watchPrefix(t, b, nil)

		if err := b.Put("abc", "123"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		ev := w.Next()
		if ev == nil || !ev.IsSet() {
			t.Fatalf("event = %v, wanted set", ev)
		}
		k, err := ev.Key()
		if err != nil || string(k) != "abc" {
			t.Fatalf("event key = (%q, %v), wanted abc", k, err)
		}
		v, err := ev.Value()
		if err != nil || v == nil || *v != "123" {
			t.Fatalf("event value = (%v, %v), wanted 123", v, err)
		}

		if _, err := b.Remove("abc"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		ev = w.Next()
		if ev == nil || !ev.IsRemove() || ev.Op() != OpRemove {
			t.Fatalf("event = %v, wanted remove", ev)
		}
		v, err = ev.Value()
		if err != nil || v != nil {
			t.Fatalf("remove event value = (%v, %v), wanted nil", v, err)
		}
	})
}

func TestWatch_FiltersByPrefix(t *testing.T) {
	s := openTestStore(t, EngineMemory)
	b := stringBucket(t, s, "watch")
	prefix := String("user/")
	w := watchPrefix(t, b, &prefix)

	fill(t, b, "admin/1", "x", "user/7", "y", "video/2", "z")

	ev := w.Next()
	if ev == nil {
		t.Fatalf("Next = nil, wanted event")
	}
	if k := ev.RawKey(); string(k) != "user/7" {
		t.Fatalf("event key = %q, wanted user/7", k)
	}
	expectNoEvent(t, w)
}

func TestWatch_IgnoresOtherBuckets(t *testing.T) {
	s := openTestStore(t, EngineMemory)
	watched := stringBucket(t, s, "watched")
	other := stringBucket(t, s, "other")
	w := watchPrefix(t, watched, nil)

	fill(t, other, "k", "v")
	expectNoEvent(t, w)
}

func TestWatch_OnlySeesCommittedWrites(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Store) {
		b := stringBucket(t, s, "watch")
		w := watchPrefix(t, b, nil)

		boom := errors.New("boom")
		err := b.Transaction(func(tx *Transaction[String, String]) error {
			if err := tx.Set("k", "v"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Transaction err = %v, wanted boom", err)
		}
		expectNoEvent(t, w)

		// Removing an absent key commits nothing worth reporting either.
		if _, err := b.Remove("ghost"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		expectNoEvent(t, w)
	})
}

func TestWatch_DeliversInCommitOrder(t *testing.T) {
	s := openTestStore(t, EngineBolt)
	b := stringBucket(t, s, "watch")
	w := watchPrefix(t, b, nil)

	batch := NewBatch[String, String]()
	_ = batch.Set("a", "1")
	_ = batch.Set("b", "2")
	_ = batch.Remove("a")
	if err := b.Batch(batch); err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	fill(t, b, "c", "3")

	type step struct {
		op  Op
		key string
	}
	want := []step{{OpSet, "a"}, {OpSet, "b"}, {OpRemove, "a"}, {OpSet, "c"}}
	for i, wantEv := range want {
		ev := w.Next()
		if ev == nil {
			t.Fatalf("event #%d = nil, wanted %v %q", i, wantEv.op, wantEv.key)
		}
		if ev.Op() != wantEv.op || string(ev.RawKey()) != wantEv.key {
			t.Fatalf("event #%d = %v %q, wanted %v %q", i, ev.Op(), ev.RawKey(), wantEv.op, wantEv.key)
		}
	}
}

func TestWatch_BlocksUntilEventArrives(t *testing.T) {
	s := openTestStore(t, EngineMemory)
	b := stringBucket(t, s, "watch")
	w := watchPrefix(t, b, nil)

	done := make(chan *Event[String, String], 1)
	go func() {
		done <- w.Next()
	}()

	time.Sleep(20 * time.Millisecond)
	fill(t, b, "k", "v")

	select {
	case ev := <-done:
		if ev == nil || string(ev.RawKey()) != "k" {
			t.Fatalf("event = %v, wanted set of k", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher never woke up")
	}
}

func TestWatch_CloseEndsDelivery(t *testing.T) {
	s := openTestStore(t, EngineMemory)
	b := stringBucket(t, s, "watch")

	w, err := b.WatchPrefix(nil)
	if err != nil {
		t.Fatalf("WatchPrefix failed: %v", err)
	}
	w.Close()

	if ev := w.Next(); ev != nil {
		t.Fatalf("Next after Close = %v, wanted nil", ev)
	}
	ev, err := w.NextContext(context.Background())
	if ev != nil || err != nil {
		t.Fatalf("NextContext after Close = (%v, %v), wanted (nil, nil)", ev, err)
	}

	// Writes after Close are not queued anywhere.
	fill(t, b, "k", "v")
	if ev := w.Next(); ev != nil {
		t.Fatalf("closed watch still received %v", ev)
	}
}

func TestWatch_StoreCloseEndsWatches(t *testing.T) {
	s := openTestStore(t, EngineMemory)
	b := stringBucket(t, s, "watch")
	w, err := b.WatchPrefix(nil)
	if err != nil {
		t.Fatalf("WatchPrefix failed: %v", err)
	}

	done := make(chan *Event[String, String], 1)
	go func() {
		done <- w.Next()
	}()
	time.Sleep(20 * time.Millisecond)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case ev := <-done:
		if ev != nil {
			t.Fatalf("event = %v, wanted nil on store close", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher not released by store close")
	}
}

func TestWatch_PendingEventsDrainBeforeClose(t *testing.T) {
	s := openTestStore(t, EngineMemory)
	b := stringBucket(t, s, "watch")
	w := watchPrefix(t, b, nil)

	fill(t, b, "a", "1", "b", "2")

	// Both events were queued before we start reading.
	if ev := w.Next(); ev == nil || string(ev.RawKey()) != "a" {
		t.Fatalf("first event = %v, wanted a", ev)
	}
	if ev := w.Next(); ev == nil || string(ev.RawKey()) != "b" {
		t.Fatalf("second event = %v, wanted b", ev)
	}
}
