package kv

import "fmt"

// Op describes the kind of change observed by a Watch.
type Op int

const (
	OpNone   Op = 0
	OpSet    Op = 1
	OpRemove Op = 2
)

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpSet:
		return "set"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}

// Item is a lazily decoded key-value pair. Key and Value decode on demand and
// fail independently, so a malformed entry surfaces exactly where it is
// touched instead of aborting a whole scan.
type Item[K Key[K], V Value[V]] struct {
	key   Raw
	value Raw
}

func newItem[K Key[K], V Value[V]](key, value []byte) Item[K, V] {
	return Item[K, V]{key: Raw(key).Clone(), value: Raw(value).Clone()}
}

func (it Item[K, V]) Key() (K, error) {
	var zero K
	return zero.FromRawKey(it.key)
}

func (it Item[K, V]) Value() (V, error) {
	var zero V
	return zero.FromRawValue(it.value)
}

func (it Item[K, V]) RawKey() Raw { return it.key }

func (it Item[K, V]) RawValue() Raw { return it.value }

// Event describes one change observed by a Watch: either a key was set to a
// value, or it was removed.
type Event[K Key[K], V Value[V]] struct {
	op   Op
	item Item[K, V]
}

func (e Event[K, V]) Op() Op { return e.op }

func (e Event[K, V]) IsSet() bool { return e.op == OpSet }

func (e Event[K, V]) IsRemove() bool { return e.op == OpRemove }

func (e Event[K, V]) Key() (K, error) {
	return e.item.Key()
}

// Value returns the new value for a set event, or nil for a remove.
func (e Event[K, V]) Value() (*V, error) {
	if e.op != OpSet {
		return nil, nil
	}
	v, err := e.item.Value()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (e Event[K, V]) RawKey() Raw { return e.item.key }

func (e Event[K, V]) Item() Item[K, V] { return e.item }
