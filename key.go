package kv

import (
	"time"
	"unicode/utf8"
)

// Key is implemented by types usable as bucket keys. The contract:
//
//   - FromRawKey(k.ToRawKey()) must return a value equal to k (round-trip).
//   - If a < b in the type's natural order, ToRawKey(a) must sort before
//     ToRawKey(b) byte-lexicographically. Range and prefix scans, First/Last
//     and the order-relative accessors all depend on this.
//
// ToRawKey must not fail for any constructible value; FromRawKey fails only
// when previously stored bytes are not a valid encoding of K.
type Key[K any] interface {
	ToRawKey() (Raw, error)
	FromRawKey(data Raw) (K, error)
}

// Value is implemented by types usable as bucket values. Round-trip is
// required; there is no ordering requirement because values are never
// compared.
type Value[V any] interface {
	ToRawValue() (Raw, error)
	FromRawValue(data Raw) (V, error)
}

// String is a UTF-8 string key/value. Decoding rejects byte strings that are
// not valid UTF-8.
type String string

func (s String) ToRawKey() (Raw, error) {
	return Raw(s), nil
}

func (String) FromRawKey(data Raw) (String, error) {
	if !utf8.Valid(data) {
		return "", dataErrf(data, 0, nil, "string key is not valid UTF-8")
	}
	return String(data), nil
}

func (s String) ToRawValue() (Raw, error) {
	return Raw(s), nil
}

func (String) FromRawValue(data Raw) (String, error) {
	if !utf8.Valid(data) {
		return "", dataErrf(data, 0, nil, "string value is not valid UTF-8")
	}
	return String(data), nil
}

// Integer is an unsigned 64-bit key stored as 8 bytes big-endian, so that
// byte order agrees with numeric order. Construct from narrower unsigned
// types with a plain conversion; never convert negative signed values.
type Integer uint64

const integerKeySize = 8

func (i Integer) ToRawKey() (Raw, error) {
	return appendUint64(make([]byte, 0, integerKeySize), uint64(i)), nil
}

func (Integer) FromRawKey(data Raw) (Integer, error) {
	if len(data) != integerKeySize {
		return 0, dataErrf(data, 0, nil, "integer key must be %d bytes, got %d", integerKeySize, len(data))
	}
	var v uint64
	for _, b := range data {
		v = v<<8 | uint64(b)
	}
	return Integer(v), nil
}

// Timestamp returns the current wall-clock time in seconds since the Unix
// epoch as an Integer key.
func Timestamp() Integer {
	return Integer(time.Now().Unix())
}

// TimestampMilli is Timestamp with millisecond resolution.
func TimestampMilli() Integer {
	return Integer(time.Now().UnixMilli())
}
