package kv

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Format is a wire format: a name plus an encode/decode function pair.
// Implementing a new codec means providing these two functions and a wrapper
// type that delegates its Value methods to them.
type Format struct {
	Name   string
	Encode func(v any) ([]byte, error)
	Decode func(data []byte, out any) error
}

// EncodeValue serializes v, tagging failures with the format name.
func (f Format) EncodeValue(v any) (Raw, error) {
	data, err := f.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode %T: %w", f.Name, v, err)
	}
	return data, nil
}

// DecodeValue deserializes data into out. Failures are DataErrors so callers
// can tell malformed stored bytes apart from engine failures.
func (f Format) DecodeValue(data Raw, out any) error {
	err := f.Decode(data, out)
	if err != nil {
		return dataErrf(data, 0, err, "%s: failed to decode into %T", f.Name, out)
	}
	return nil
}

var (
	// JSONFormat serializes values with encoding/json.
	JSONFormat = Format{Name: "json", Encode: json.Marshal, Decode: json.Unmarshal}

	// MsgPackFormat serializes values with MessagePack, map keys sorted so
	// equal values produce equal bytes.
	MsgPackFormat = Format{Name: "msgpack", Encode: encodeMsgPack, Decode: decodeMsgPack}
)

func encodeMsgPack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeMsgPack(data []byte, out any) error {
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err := dec.Decode(out)
	remaining := r.Len()
	msgpack.PutDecoder(dec)
	if err != nil {
		return err
	}
	if remaining != 0 {
		return fmt.Errorf("%d trailing bytes after value", remaining)
	}
	return nil
}

// Json wraps an arbitrary JSON-serializable T as a bucket value.
type Json[T any] struct {
	Inner T
}

func NewJson[T any](v T) Json[T] { return Json[T]{Inner: v} }

func (c Json[T]) ToRawValue() (Raw, error) {
	return JSONFormat.EncodeValue(c.Inner)
}

func (Json[T]) FromRawValue(data Raw) (Json[T], error) {
	var c Json[T]
	err := JSONFormat.DecodeValue(data, &c.Inner)
	return c, err
}

func (c Json[T]) String() string {
	data, err := json.MarshalIndent(c.Inner, "", "  ")
	if err != nil {
		return fmt.Sprintf("<unencodable %T: %v>", c.Inner, err)
	}
	return string(data)
}

// Msgpack wraps an arbitrary T as a MessagePack-encoded bucket value.
// Msgpack[T] and Json[T] are distinct value types: bytes written through one
// fail to decode through the other.
type Msgpack[T any] struct {
	Inner T
}

func NewMsgpack[T any](v T) Msgpack[T] { return Msgpack[T]{Inner: v} }

func (c Msgpack[T]) ToRawValue() (Raw, error) {
	return MsgPackFormat.EncodeValue(c.Inner)
}

func (Msgpack[T]) FromRawValue(data Raw) (Msgpack[T], error) {
	var c Msgpack[T]
	err := MsgPackFormat.DecodeValue(data, &c.Inner)
	return c, err
}

// Binary wraps a T implementing encoding.BinaryMarshaler (and, on *T,
// encoding.BinaryUnmarshaler) as a bucket value in the type's own compact
// binary format.
type Binary[T any] struct {
	Inner T
}

func NewBinary[T any](v T) Binary[T] { return Binary[T]{Inner: v} }

func (c Binary[T]) ToRawValue() (Raw, error) {
	m, ok := any(c.Inner).(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("binary: %T does not implement encoding.BinaryMarshaler", c.Inner)
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("binary: failed to encode %T: %w", c.Inner, err)
	}
	return data, nil
}

func (Binary[T]) FromRawValue(data Raw) (Binary[T], error) {
	var c Binary[T]
	u, ok := any(&c.Inner).(encoding.BinaryUnmarshaler)
	if !ok {
		return c, fmt.Errorf("binary: *%T does not implement encoding.BinaryUnmarshaler", c.Inner)
	}
	err := u.UnmarshalBinary(data)
	if err != nil {
		return c, dataErrf(data, 0, err, "binary: failed to decode into %T", c.Inner)
	}
	return c, nil
}
