package kv

// Batch is an ordered list of pending writes for one bucket. It has no
// identity in the engine until applied with Bucket.Batch, which makes all of
// its operations visible atomically. Independent Batches may be built
// concurrently; a single Batch is not safe for concurrent mutation.
type Batch[K Key[K], V Value[V]] struct {
	ops []batchOp
}

type batchOp struct {
	op    Op
	key   Raw
	value Raw
}

func NewBatch[K Key[K], V Value[V]]() *Batch[K, V] {
	return &Batch[K, V]{}
}

// Set queues an upsert. Encoding happens immediately, so a bad value fails
// here rather than at apply time.
func (b *Batch[K, V]) Set(key K, value V) error {
	rawKey, err := key.ToRawKey()
	if err != nil {
		return err
	}
	rawValue, err := value.ToRawValue()
	if err != nil {
		return err
	}
	b.ops = append(b.ops, batchOp{op: OpSet, key: rawKey, value: rawValue})
	return nil
}

// Remove queues a deletion.
func (b *Batch[K, V]) Remove(key K) error {
	rawKey, err := key.ToRawKey()
	if err != nil {
		return err
	}
	b.ops = append(b.ops, batchOp{op: OpRemove, key: rawKey})
	return nil
}

// Len returns the number of queued operations.
func (b *Batch[K, V]) Len() int {
	return len(b.ops)
}

// apply runs the queued operations in order against an open engine bucket,
// logging events for watchers. Remove of an absent key emits no event.
func (b *Batch[K, V]) apply(bucket string, sb storageBucket, log *eventLog) error {
	for _, op := range b.ops {
		switch op.op {
		case OpSet:
			if err := sb.Put(op.key, op.value); err != nil {
				return err
			}
			log.add(bucket, OpSet, op.key, op.value)
		case OpRemove:
			prev, err := sb.Get(op.key)
			if err != nil {
				return err
			}
			if prev == nil {
				continue
			}
			if err := sb.Delete(op.key); err != nil {
				return err
			}
			log.add(bucket, OpRemove, op.key, nil)
		}
	}
	return nil
}
