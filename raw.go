package kv

import (
	"bytes"
	"slices"
)

// Raw is the engine's native representation of keys and values: an opaque
// byte string. A Raw returned by this package is a private copy; treat it as
// immutable after creation.
type Raw []byte

func (r Raw) Clone() Raw {
	return slices.Clone(r)
}

func (r Raw) Equal(other Raw) bool {
	return bytes.Equal(r, other)
}

func (r Raw) HasPrefix(prefix Raw) bool {
	return bytes.HasPrefix(r, prefix)
}

// Raw is its own key type: bytes pass through unchanged, and ordering is
// trivially byte-lexicographic.
func (r Raw) ToRawKey() (Raw, error) { return r, nil }

func (Raw) FromRawKey(data Raw) (Raw, error) { return data.Clone(), nil }

func (r Raw) ToRawValue() (Raw, error) { return r, nil }

func (Raw) FromRawValue(data Raw) (Raw, error) { return data.Clone(), nil }
