package kv

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned where a call requires a key or store that does
	// not exist. Plain point lookups signal absence with a nil result instead.
	ErrNotFound = errors.New("not found")

	// ErrInvalidBucket is returned when a bucket name is unknown, deleted, or
	// rejected by the configured whitelist.
	ErrInvalidBucket = errors.New("invalid bucket")

	// ErrReadOnly is returned when a write is attempted on a read-only store.
	ErrReadOnly = errors.New("store is read-only")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrKeyExists is returned by Transaction.CreateKey when the key is
	// already present.
	ErrKeyExists = errors.New("key already exists")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTxClosed is returned when a Transaction handle is used outside its
	// closure.
	ErrTxClosed = errors.New("transaction is closed")

	// errTxConflict is the backend-independent signal that an optimistic
	// transaction must be retried. Never escapes to callers.
	errTxConflict = errors.New("transaction conflict")
)

// DataError reports that stored bytes could not be decoded as the expected
// type. It carries a bounded hex dump of the offending data.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// IsDecodeError reports whether err means "your stored data was malformed",
// as opposed to an engine or I/O failure.
func IsDecodeError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

// ConflictError is returned by CompareAndSwap when the observed value did not
// match the expected one. Current is the value found (nil when the key was
// absent); Proposed is the encoding of the rejected new value (nil for a
// proposed deletion).
type ConflictError struct {
	Key      Raw
	Current  Raw
	Proposed Raw
}

func (e *ConflictError) Error() string {
	var buf strings.Builder
	buf.WriteString("compare-and-swap conflict on key ")
	buf.WriteString(hexstr(e.Key))
	if e.Current == nil {
		buf.WriteString(": key does not exist")
	} else {
		buf.WriteString(": current value is ")
		buf.WriteString(hexstr(e.Current))
	}
	return buf.String()
}

// IsConflict reports whether err is a compare-and-swap mismatch rather than a
// storage failure.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// BucketError wraps a failure of an operation on a named bucket.
type BucketError struct {
	Bucket string
	Msg    string
	Err    error
}

func bucketErrf(bucket string, err error, format string, args ...any) error {
	return &BucketError{bucket, fmt.Sprintf(format, args...), err}
}

func (e *BucketError) Unwrap() error {
	return e.Err
}

func (e *BucketError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Bucket)
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

type panicked struct {
	reason interface{}
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}
