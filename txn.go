package kv

import "fmt"

// Transaction is a short-lived typed handle onto one bucket inside an atomic
// engine transaction. It is only valid inside the closure it was passed to.
//
// The closure contract: the engine may re-invoke the closure when it detects
// a write conflict, so the closure must not have externally observable side
// effects; it may only read and write through the Transaction handles it is
// given. Returning any error aborts the whole transaction and propagates
// that error to the caller unchanged.
type Transaction[K Key[K], V Value[V]] struct {
	bucket string
	tx     storageTx
	sb     storageBucket
	log    *eventLog
	done   *bool
}

func newTransaction[K Key[K], V Value[V]](b *Bucket[K, V], tx storageTx, log *eventLog, done *bool) (*Transaction[K, V], error) {
	sb := tx.Bucket(b.name)
	if sb == nil {
		return nil, bucketErrf(b.name, ErrInvalidBucket, "bucket has been dropped")
	}
	return &Transaction[K, V]{bucket: b.name, tx: tx, sb: sb, log: log, done: done}, nil
}

func (t *Transaction[K, V]) check(write bool) error {
	if *t.done {
		return ErrTxClosed
	}
	if write && !t.tx.Writable() {
		return ErrReadOnly
	}
	return nil
}

// Get returns the value for key as of this transaction, including writes
// made earlier in the same closure; nil when absent.
func (t *Transaction[K, V]) Get(key K) (*V, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	rawKey, err := key.ToRawKey()
	if err != nil {
		return nil, err
	}
	data, err := t.sb.Get(rawKey)
	if err != nil {
		return nil, err
	}
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

// Set upserts within the transaction.
func (t *Transaction[K, V]) Set(key K, value V) error {
	if err := t.check(true); err != nil {
		return err
	}
	rawKey, err := key.ToRawKey()
	if err != nil {
		return err
	}
	rawValue, err := value.ToRawValue()
	if err != nil {
		return err
	}
	if err := t.sb.Put(rawKey, rawValue); err != nil {
		return err
	}
	t.log.add(t.bucket, OpSet, rawKey, rawValue)
	return nil
}

// CreateKey sets key to value only if the key does not exist yet; otherwise
// it fails with ErrKeyExists (aborting the transaction if propagated).
func (t *Transaction[K, V]) CreateKey(key K, value V) error {
	if err := t.check(true); err != nil {
		return err
	}
	rawKey, err := key.ToRawKey()
	if err != nil {
		return err
	}
	cur, err := t.sb.Get(rawKey)
	if err != nil {
		return err
	}
	if cur != nil {
		return fmt.Errorf("%s/%s: %w", t.bucket, hexstr(rawKey), ErrKeyExists)
	}
	rawValue, err := value.ToRawValue()
	if err != nil {
		return err
	}
	if err := t.sb.Put(rawKey, rawValue); err != nil {
		return err
	}
	t.log.add(t.bucket, OpSet, rawKey, rawValue)
	return nil
}

// Remove deletes key within the transaction. Removing an absent key is a
// no-op.
func (t *Transaction[K, V]) Remove(key K) error {
	if err := t.check(true); err != nil {
		return err
	}
	rawKey, err := key.ToRawKey()
	if err != nil {
		return err
	}
	cur, err := t.sb.Get(rawKey)
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}
	if err := t.sb.Delete(rawKey); err != nil {
		return err
	}
	t.log.add(t.bucket, OpRemove, rawKey, nil)
	return nil
}

// Batch applies a batch's operations within the transaction.
func (t *Transaction[K, V]) Batch(batch *Batch[K, V]) error {
	if err := t.check(true); err != nil {
		return err
	}
	return batch.apply(t.bucket, t.sb, t.log)
}

// GenerateID returns a store-wide monotonic id, atomically with the rest of
// the transaction.
func (t *Transaction[K, V]) GenerateID() (uint64, error) {
	if err := t.check(true); err != nil {
		return 0, err
	}
	sb, err := t.tx.CreateBucket(seqBucketName)
	if err != nil {
		return 0, err
	}
	return sb.NextSequence()
}

// Transaction runs f atomically against this bucket. From the outside either
// every operation inside f took effect or none did. See the Transaction type
// for the closure contract. On a read-only store the transaction is a
// consistent read snapshot and write operations fail with ErrReadOnly.
func (b *Bucket[K, V]) Transaction(f func(tx *Transaction[K, V]) error) error {
	if b.store.cfg.ReadOnly {
		return b.store.view(func(stx storageTx) error {
			var done bool
			defer func() { done = true }()
			t, err := newTransaction(b, stx, &eventLog{}, &done)
			if err != nil {
				return err
			}
			return f(t)
		})
	}
	return b.store.update(func(stx storageTx, log *eventLog) error {
		var done bool
		defer func() { done = true }()
		t, err := newTransaction(b, stx, log, &done)
		if err != nil {
			return err
		}
		return f(t)
	})
}

// Transaction2 runs f atomically across two buckets of the same store:
// either all writes to both buckets commit together or none do. This is the
// only way to get cross-bucket consistency; independent operations on two
// buckets have no such guarantee.
func Transaction2[K1 Key[K1], V1 Value[V1], K2 Key[K2], V2 Value[V2]](
	b1 *Bucket[K1, V1], b2 *Bucket[K2, V2],
	f func(tx1 *Transaction[K1, V1], tx2 *Transaction[K2, V2]) error,
) error {
	if b1.store != b2.store {
		return fmt.Errorf("buckets %s and %s belong to different stores", b1.name, b2.name)
	}
	return b1.store.update(func(stx storageTx, log *eventLog) error {
		var done bool
		defer func() { done = true }()
		t1, err := newTransaction(b1, stx, log, &done)
		if err != nil {
			return err
		}
		t2, err := newTransaction(b2, stx, log, &done)
		if err != nil {
			return err
		}
		return f(t1, t2)
	})
}

// Transaction3 is Transaction2 for three buckets.
func Transaction3[K1 Key[K1], V1 Value[V1], K2 Key[K2], V2 Value[V2], K3 Key[K3], V3 Value[V3]](
	b1 *Bucket[K1, V1], b2 *Bucket[K2, V2], b3 *Bucket[K3, V3],
	f func(tx1 *Transaction[K1, V1], tx2 *Transaction[K2, V2], tx3 *Transaction[K3, V3]) error,
) error {
	if b1.store != b2.store || b1.store != b3.store {
		return fmt.Errorf("buckets %s, %s and %s belong to different stores", b1.name, b2.name, b3.name)
	}
	return b1.store.update(func(stx storageTx, log *eventLog) error {
		var done bool
		defer func() { done = true }()
		t1, err := newTransaction(b1, stx, log, &done)
		if err != nil {
			return err
		}
		t2, err := newTransaction(b2, stx, log, &done)
		if err != nil {
			return err
		}
		t3, err := newTransaction(b3, stx, log, &done)
		if err != nil {
			return err
		}
		return f(t1, t2, t3)
	})
}
