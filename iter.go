package kv

import (
	"bytes"
)

// rawRange defines a range of byte strings: optional lower/upper bounds with
// inclusivity flags, an optional key prefix, and a direction.
type rawRange struct {
	prefix   []byte
	lower    []byte
	upper    []byte
	lowerInc bool
	upperInc bool
	reverse  bool
}

func (r rawRange) reversed() rawRange {
	r.reverse = !r.reverse
	return r
}

func (r *rawRange) start(bcur storageCursor) ([]byte, []byte) {
	var k, v []byte
	if r.reverse {
		switch {
		case r.upper != nil:
			if r.prefix != nil && !bytes.HasPrefix(r.upper, r.prefix) {
				panic("upper bound does not match prefix")
			}
			// Greatest key admitted by the upper bound: the bound is a key,
			// not a prefix, so an exclusive bound steps strictly below it.
			k, v = bcur.Seek(r.upper)
			if k == nil {
				k, v = bcur.Last()
			} else if !r.upperInc || !bytes.Equal(k, r.upper) {
				k, v = bcur.Prev()
			}
		case r.prefix != nil:
			k, v = bcur.SeekLast(r.prefix)
			// A prefix ending in 0xFF wraps its successor, so SeekLast can
			// overshoot onto keys between the prefixed region and that
			// successor; step back to the region.
			for k != nil && !bytes.HasPrefix(k, r.prefix) {
				k, v = bcur.Prev()
			}
		default:
			k, v = bcur.Last()
		}
	} else {
		lower := r.lower
		if lower != nil {
			if r.prefix != nil && !bytes.HasPrefix(lower, r.prefix) {
				panic("lower bound does not match prefix")
			}
		} else {
			lower = r.prefix
		}
		if lower != nil {
			k, v = bcur.Seek(lower)
			if r.lower != nil && !r.lowerInc && bytes.Equal(k, lower) {
				k, v = bcur.Next()
			}
		} else {
			k, v = bcur.First()
		}
	}
	if k != nil && r.match(k) {
		return k, v
	}
	return nil, nil
}

func (r *rawRange) next(bcur storageCursor) ([]byte, []byte) {
	var k, v []byte
	if r.reverse {
		k, v = bcur.Prev()
	} else {
		k, v = bcur.Next()
	}
	if k != nil && r.match(k) {
		return k, v
	}
	return nil, nil
}

func (r *rawRange) match(k []byte) bool {
	if r.prefix != nil && !bytes.HasPrefix(k, r.prefix) {
		return false
	}
	if lower := r.lower; lower != nil {
		cmp := bytes.Compare(k, lower)
		if cmp == -1 || (cmp == 0 && !r.lowerInc) {
			return false
		}
	}
	if upper := r.upper; upper != nil {
		cmp := bytes.Compare(k, upper)
		if cmp == 1 || (cmp == 0 && !r.upperInc) {
			return false
		}
	}
	return true
}

// Iter is a lazy, double-ended iterator over a bucket. It holds a read
// transaction for its whole lifetime, so it observes a snapshot taken at
// creation and must be closed. Next and NextBack consume entries from the
// two ends until they meet; a partially consumed Iter cannot be restarted.
type Iter[K Key[K], V Value[V]] struct {
	tx   storageTx
	fcur storageCursor
	bcur storageCursor
	rang rawRange

	frontKey Raw
	backKey  Raw
	frontGo  bool
	backGo   bool
	done     bool

	item Item[K, V]
}

func newIter[K Key[K], V Value[V]](b *Bucket[K, V], rang rawRange) (*Iter[K, V], error) {
	s := b.store
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	s.ReadCount.Add(1)
	tx, err := s.stg.BeginTx(false)
	if err != nil {
		return nil, err
	}
	sb := tx.Bucket(b.name)
	if sb == nil {
		tx.Rollback()
		return &Iter[K, V]{done: true, rang: rang}, nil
	}
	return &Iter[K, V]{
		tx:   tx,
		fcur: sb.Cursor(),
		bcur: sb.Cursor(),
		rang: rang,
	}, nil
}

// Next advances the forward end. It returns false once the range is
// exhausted or both ends have met.
func (it *Iter[K, V]) Next() bool {
	if it.done {
		return false
	}
	var k, v []byte
	if it.frontGo {
		k, v = it.rang.next(it.fcur)
	} else {
		it.frontGo = true
		k, v = it.rang.start(it.fcur)
	}
	return it.accept(k, v, it.backKey, false)
}

// NextBack advances the backward end, yielding entries in descending order.
func (it *Iter[K, V]) NextBack() bool {
	if it.done {
		return false
	}
	rev := it.rang.reversed()
	var k, v []byte
	if it.backGo {
		k, v = rev.next(it.bcur)
	} else {
		it.backGo = true
		k, v = rev.start(it.bcur)
	}
	return it.accept(k, v, it.frontKey, true)
}

func (it *Iter[K, V]) accept(k, v []byte, boundary Raw, back bool) bool {
	if k == nil {
		it.finish()
		return false
	}
	if boundary != nil {
		cmp := bytes.Compare(k, boundary)
		// Forward may not reach the back end's position, and vice versa.
		if (!back && cmp >= 0) || (back && cmp <= 0) {
			it.finish()
			return false
		}
	}
	it.item = newItem[K, V](k, v)
	if back {
		it.backKey = it.item.key
	} else {
		it.frontKey = it.item.key
	}
	return true
}

func (it *Iter[K, V]) finish() {
	it.done = true
	if it.tx != nil {
		it.tx.Rollback()
		it.tx = nil
	}
}

// Item returns the entry produced by the last successful Next or NextBack.
func (it *Iter[K, V]) Item() Item[K, V] {
	return it.item
}

// Close releases the iterator's read transaction. Safe to call repeatedly.
func (it *Iter[K, V]) Close() error {
	it.finish()
	return nil
}
