package kv

// storage represents a key-value storage backend (Bolt, Badger, in-memory).
type storage interface {
	// BeginTx starts a new transaction.
	BeginTx(writable bool) (storageTx, error)

	// Sync forces buffered writes to durable storage.
	Sync() error

	// Size returns the on-disk size in bytes (0 if not applicable).
	Size() (int64, error)

	// Close closes the storage.
	Close() error
}

// storageTx represents a storage transaction. A writable transaction sees and
// mutates the whole database, which is what makes multi-bucket transactions
// atomic.
type storageTx interface {
	// Writable returns true if this is a writable transaction.
	Writable() bool

	// Bucket returns a named bucket, or nil if it doesn't exist.
	Bucket(name string) storageBucket

	// CreateBucket creates a bucket if it doesn't exist.
	CreateBucket(name string) (storageBucket, error)

	// DeleteBucket deletes a bucket and all its entries.
	// Returns ErrInvalidBucket if the bucket doesn't exist.
	DeleteBucket(name string) error

	// BucketNames lists existing bucket names in unspecified order,
	// excluding internal buckets.
	BucketNames() []string

	// Commit commits the transaction. A commit may fail with errTxConflict
	// on backends using optimistic concurrency; callers retry.
	Commit() error

	// Rollback aborts the transaction. Safe to call after Commit.
	Rollback() error
}

// storageBucket represents one named sorted key-value collection.
type storageBucket interface {
	// Get retrieves a value by key. Returns nil if not found. The returned
	// slice is only valid until the transaction ends.
	Get(key []byte) ([]byte, error)

	// Put stores a key-value pair.
	Put(key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// Cursor returns a cursor for ordered iteration.
	Cursor() storageCursor

	// KeyCount returns the number of keys in the bucket (best effort; may
	// scan on backends that don't track counts).
	KeyCount() (int, error)

	// NextSequence returns a monotonically increasing counter value scoped
	// to this bucket. Not gap-free.
	NextSequence() (uint64, error)
}

// storageCursor iterates over a sorted bucket. Positions are only valid
// while the owning transaction is open.
type storageCursor interface {
	// First moves to the first key-value pair.
	First() (key, value []byte)

	// Last moves to the last key-value pair.
	Last() (key, value []byte)

	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// SeekLast moves to the last key strictly before the successor of the
	// given prefix, i.e. the last key that could match the prefix.
	SeekLast(prefix []byte) (key, value []byte)

	// Next moves to the next key-value pair.
	Next() (key, value []byte)

	// Prev moves to the previous key-value pair.
	Prev() (key, value []byte)

	// Delete deletes the current key-value pair.
	Delete() error
}
