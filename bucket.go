package kv

import (
	"bytes"
	"context"
	"hash/crc32"
)

// Bucket provides typed access to one named ordered map in the store. The
// key and value types are fixed at creation, so every operation on the same
// handle goes through consistent conversions. Bucket handles are cheap and
// safe for concurrent use; they must not outlive their Store.
type Bucket[K Key[K], V Value[V]] struct {
	store *Store
	name  string
}

// NewBucket opens the named bucket, creating it on first use. An empty name
// opens the default bucket. Names outside the configured whitelist (when one
// is set) fail with ErrInvalidBucket, as does a missing bucket on a
// read-only store.
func NewBucket[K Key[K], V Value[V]](s *Store, name string) (*Bucket[K, V], error) {
	if name == "" {
		name = defaultBucketName
	}
	if isInternalBucketName([]byte(name)) {
		return nil, bucketErrf(name, ErrInvalidBucket, "reserved name")
	}
	if !s.cfg.allowsBucket(name) {
		return nil, bucketErrf(name, ErrInvalidBucket, "not in configured bucket list")
	}

	if s.cfg.ReadOnly {
		err := s.view(func(tx storageTx) error {
			if tx.Bucket(name) == nil {
				return bucketErrf(name, ErrInvalidBucket, "bucket does not exist")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		err := s.update(func(tx storageTx, _ *eventLog) error {
			_, err := tx.CreateBucket(name)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return &Bucket[K, V]{store: s, name: name}, nil
}

func (b *Bucket[K, V]) Name() string { return b.name }

func (b *Bucket[K, V]) Store() *Store { return b.store }

func (b *Bucket[K, V]) engineBucket(tx storageTx) (storageBucket, error) {
	sb := tx.Bucket(b.name)
	if sb == nil {
		return nil, bucketErrf(b.name, ErrInvalidBucket, "bucket has been dropped")
	}
	return sb, nil
}

func (b *Bucket[K, V]) decodeValue(data []byte) (*V, error) {
	if data == nil {
		return nil, nil
	}
	var zero V
	v, err := zero.FromRawValue(data)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Get returns the value for key, or nil when the key is absent. Absence is
// never an error; an error means the engine failed or the stored bytes could
// not be decoded.
func (b *Bucket[K, V]) Get(key K) (*V, error) {
	rawKey, err := key.ToRawKey()
	if err != nil {
		return nil, err
	}
	var out *V
	err = b.store.view(func(tx storageTx) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		data, err := sb.Get(rawKey)
		if err != nil {
			return err
		}
		out, err = b.decodeValue(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Contains reports whether key is present.
func (b *Bucket[K, V]) Contains(key K) (bool, error) {
	rawKey, err := key.ToRawKey()
	if err != nil {
		return false, err
	}
	var found bool
	err = b.store.view(func(tx storageTx) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		data, err := sb.Get(rawKey)
		found = data != nil
		return err
	})
	return found, err
}

// Put upserts without reading back the previous value.
func (b *Bucket[K, V]) Put(key K, value V) error {
	rawKey, err := key.ToRawKey()
	if err != nil {
		return err
	}
	rawValue, err := value.ToRawValue()
	if err != nil {
		return err
	}
	return b.store.update(func(tx storageTx, log *eventLog) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		if err := sb.Put(rawKey, rawValue); err != nil {
			return err
		}
		log.add(b.name, OpSet, rawKey, rawValue)
		return nil
	})
}

// Set upserts and returns the previous value, nil if the key was absent.
func (b *Bucket[K, V]) Set(key K, value V) (*V, error) {
	rawKey, err := key.ToRawKey()
	if err != nil {
		return nil, err
	}
	rawValue, err := value.ToRawValue()
	if err != nil {
		return nil, err
	}
	var prev *V
	err = b.store.update(func(tx storageTx, log *eventLog) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		data, err := sb.Get(rawKey)
		if err != nil {
			return err
		}
		prev, err = b.decodeValue(data)
		if err != nil {
			return err
		}
		if err := sb.Put(rawKey, rawValue); err != nil {
			return err
		}
		log.add(b.name, OpSet, rawKey, rawValue)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

// Remove deletes key and returns its prior value, nil if the key was absent.
// Removing an absent key is a no-op, never an error.
func (b *Bucket[K, V]) Remove(key K) (*V, error) {
	rawKey, err := key.ToRawKey()
	if err != nil {
		return nil, err
	}
	var prev *V
	err = b.store.update(func(tx storageTx, log *eventLog) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		data, err := sb.Get(rawKey)
		if err != nil {
			return err
		}
		if data == nil {
			return nil
		}
		prev, err = b.decodeValue(data)
		if err != nil {
			return err
		}
		if err := sb.Delete(rawKey); err != nil {
			return err
		}
		log.add(b.name, OpRemove, rawKey, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

// CompareAndSwap atomically replaces the value for key, but only when the
// observed value matches old. Both old and new are independently optional:
// nil old means the key must not exist, nil new means delete. A mismatch is
// reported as a ConflictError (see IsConflict), distinct from storage
// failures.
func (b *Bucket[K, V]) CompareAndSwap(key K, old, new *V) error {
	rawKey, err := key.ToRawKey()
	if err != nil {
		return err
	}
	var rawOld, rawNew Raw
	if old != nil {
		if rawOld, err = (*old).ToRawValue(); err != nil {
			return err
		}
	}
	if new != nil {
		if rawNew, err = (*new).ToRawValue(); err != nil {
			return err
		}
	}
	return b.store.update(func(tx storageTx, log *eventLog) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		cur, err := sb.Get(rawKey)
		if err != nil {
			return err
		}
		matched := (old == nil && cur == nil) ||
			(old != nil && cur != nil && bytes.Equal(cur, rawOld))
		if !matched {
			return &ConflictError{Key: rawKey, Current: Raw(cur).Clone(), Proposed: rawNew}
		}
		if new == nil {
			if cur == nil {
				return nil
			}
			if err := sb.Delete(rawKey); err != nil {
				return err
			}
			log.add(b.name, OpRemove, rawKey, nil)
			return nil
		}
		if err := sb.Put(rawKey, rawNew); err != nil {
			return err
		}
		log.add(b.name, OpSet, rawKey, rawNew)
		return nil
	})
}

// Iter iterates all entries in ascending key order.
func (b *Bucket[K, V]) Iter() (*Iter[K, V], error) {
	return newIter(b, rawRange{})
}

// IterRange iterates the half-open key range [from, to).
func (b *Bucket[K, V]) IterRange(from, to K) (*Iter[K, V], error) {
	lower, err := from.ToRawKey()
	if err != nil {
		return nil, err
	}
	upper, err := to.ToRawKey()
	if err != nil {
		return nil, err
	}
	return newIter(b, rawRange{lower: lower, lowerInc: true, upper: upper, upperInc: false})
}

// IterPrefix iterates all entries whose keys share the byte prefix of the
// given key's encoding.
func (b *Bucket[K, V]) IterPrefix(prefix K) (*Iter[K, V], error) {
	p, err := prefix.ToRawKey()
	if err != nil {
		return nil, err
	}
	return newIter(b, rawRange{prefix: p})
}

// First returns the entry with the smallest key, nil when empty.
func (b *Bucket[K, V]) First() (*Item[K, V], error) {
	return b.edgeItem(false)
}

// Last returns the entry with the largest key, nil when empty.
func (b *Bucket[K, V]) Last() (*Item[K, V], error) {
	return b.edgeItem(true)
}

func (b *Bucket[K, V]) edgeItem(last bool) (*Item[K, V], error) {
	var out *Item[K, V]
	err := b.store.view(func(tx storageTx) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		c := sb.Cursor()
		var k, v []byte
		if last {
			k, v = c.Last()
		} else {
			k, v = c.First()
		}
		if k != nil {
			item := newItem[K, V](k, v)
			out = &item
		}
		return nil
	})
	return out, err
}

// PrevKey returns the entry with the largest key strictly less than key,
// nil when there is none.
func (b *Bucket[K, V]) PrevKey(key K) (*Item[K, V], error) {
	rawKey, err := key.ToRawKey()
	if err != nil {
		return nil, err
	}
	var out *Item[K, V]
	err = b.store.view(func(tx storageTx) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		c := sb.Cursor()
		k, v := c.Seek(rawKey)
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		if k != nil {
			item := newItem[K, V](k, v)
			out = &item
		}
		return nil
	})
	return out, err
}

// NextKey returns the entry with the smallest key strictly greater than key,
// nil when there is none.
func (b *Bucket[K, V]) NextKey(key K) (*Item[K, V], error) {
	rawKey, err := key.ToRawKey()
	if err != nil {
		return nil, err
	}
	var out *Item[K, V]
	err = b.store.view(func(tx storageTx) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		c := sb.Cursor()
		k, v := c.Seek(rawKey)
		if k != nil && bytes.Equal(k, rawKey) {
			k, v = c.Next()
		}
		if k != nil {
			item := newItem[K, V](k, v)
			out = &item
		}
		return nil
	})
	return out, err
}

// PopFront atomically removes and returns the entry with the smallest key,
// nil when empty.
func (b *Bucket[K, V]) PopFront() (*Item[K, V], error) {
	return b.popEdge(false)
}

// PopBack atomically removes and returns the entry with the largest key,
// nil when empty.
func (b *Bucket[K, V]) PopBack() (*Item[K, V], error) {
	return b.popEdge(true)
}

func (b *Bucket[K, V]) popEdge(last bool) (*Item[K, V], error) {
	var out *Item[K, V]
	err := b.store.update(func(tx storageTx, log *eventLog) error {
		out = nil
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		c := sb.Cursor()
		var k, v []byte
		if last {
			k, v = c.Last()
		} else {
			k, v = c.First()
		}
		if k == nil {
			return nil
		}
		item := newItem[K, V](k, v)
		if err := c.Delete(); err != nil {
			return err
		}
		log.add(b.name, OpRemove, item.key, nil)
		out = &item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Batch applies the batch's operations as a single atomic unit: either all
// of them become visible or none do.
func (b *Bucket[K, V]) Batch(batch *Batch[K, V]) error {
	return b.store.update(func(tx storageTx, log *eventLog) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		return batch.apply(b.name, sb, log)
	})
}

// WatchPrefix subscribes to changes on keys sharing the encoded prefix of
// the given key; nil subscribes to the whole bucket. Only writes committed
// after the call are observed.
func (b *Bucket[K, V]) WatchPrefix(prefix *K) (*Watch[K, V], error) {
	if b.store.closed.Load() {
		return nil, ErrStoreClosed
	}
	var raw Raw
	if prefix != nil {
		var err error
		raw, err = (*prefix).ToRawKey()
		if err != nil {
			return nil, err
		}
	}
	return &Watch[K, V]{w: b.store.watchers.subscribe(b.name, raw)}, nil
}

// Len returns the number of entries.
func (b *Bucket[K, V]) Len() (int, error) {
	var n int
	err := b.store.view(func(tx storageTx) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		n, err = sb.KeyCount()
		return err
	})
	return n, err
}

func (b *Bucket[K, V]) IsEmpty() (bool, error) {
	n, err := b.Len()
	return n == 0, err
}

// Clear removes all entries. Individual removals are not reported to
// watchers.
func (b *Bucket[K, V]) Clear() error {
	return b.store.update(func(tx storageTx, _ *eventLog) error {
		err := tx.DeleteBucket(b.name)
		if err != nil && err != ErrInvalidBucket {
			return err
		}
		_, err = tx.CreateBucket(b.name)
		return err
	})
}

// Checksum returns a CRC32 over all keys and values in order. Intended for
// integrity verification, not cryptographic use.
func (b *Bucket[K, V]) Checksum() (uint32, error) {
	var sum uint32
	err := b.store.view(func(tx storageTx) error {
		sb, err := b.engineBucket(tx)
		if err != nil {
			return err
		}
		c := sb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			sum = crc32.Update(sum, crc32.IEEETable, k)
			sum = crc32.Update(sum, crc32.IEEETable, v)
		}
		return nil
	})
	return sum, err
}

// Flush forces durability for the whole store and returns its on-disk size.
func (b *Bucket[K, V]) Flush() (int64, error) {
	return b.store.Flush()
}

// FlushContext is Flush suspending on ctx instead of blocking.
func (b *Bucket[K, V]) FlushContext(ctx context.Context) (int64, error) {
	return b.store.FlushContext(ctx)
}
