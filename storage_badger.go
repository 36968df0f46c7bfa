package kv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	badgeroptions "github.com/dgraph-io/badger/v4/options"
)

// Badger has no native buckets, so named maps become key prefixes:
//
//	'd' uvarint(len(name)) name userkey   data entry
//	'b' name                              bucket registry marker
//	's' name                              per-bucket sequence counter
//
// The length prefix keeps distinct bucket names from sharing data prefixes.
type badgerStorage struct {
	db *badger.DB
}

func openBadgerStorage(path string, cfg *Config) (storage, error) {
	opt := badger.DefaultOptions(path).
		WithLogger(nil).
		WithReadOnly(cfg.ReadOnly).
		WithSyncWrites(cfg.FlushEveryMs == 0).
		WithNumVersionsToKeep(1)
	if cfg.UseCompression {
		opt = opt.WithCompression(badgeroptions.ZSTD)
	}
	if cfg.CacheCapacity > 0 {
		opt = opt.WithIndexCacheSize(cfg.CacheCapacity)
	}

	db, err := badger.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("badger: %w", err)
	}
	return &badgerStorage{db: db}, nil
}

func (s *badgerStorage) BeginTx(writable bool) (storageTx, error) {
	return &badgerTx{db: s.db, btx: s.db.NewTransaction(writable), writable: writable}, nil
}

func (s *badgerStorage) Sync() error {
	return s.db.Sync()
}

func (s *badgerStorage) Size() (int64, error) {
	lsm, vlog := s.db.Size()
	return lsm + vlog, nil
}

func (s *badgerStorage) Close() error {
	return s.db.Close()
}

func badgerDataPrefix(name string) []byte {
	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(name))
	buf = append(buf, 'd')
	buf = binary.AppendUvarint(buf, uint64(len(name)))
	return append(buf, name...)
}

func badgerMetaKey(kind byte, name string) []byte {
	return append([]byte{kind}, name...)
}

type badgerTx struct {
	db       *badger.DB
	btx      *badger.Txn
	writable bool
	iters    []*badger.Iterator
	done     bool
}

func (tx *badgerTx) Writable() bool { return tx.writable }

func (tx *badgerTx) newIterator(opt badger.IteratorOptions) *badger.Iterator {
	it := tx.btx.NewIterator(opt)
	tx.iters = append(tx.iters, it)
	return it
}

func (tx *badgerTx) closeIterators() {
	for _, it := range tx.iters {
		it.Close()
	}
	tx.iters = nil
}

func (tx *badgerTx) exists(key []byte) bool {
	_, err := tx.btx.Get(key)
	return err == nil
}

func (tx *badgerTx) Bucket(name string) storageBucket {
	if !tx.exists(badgerMetaKey('b', name)) {
		return nil
	}
	return &badgerBucket{tx: tx, name: name, prefix: badgerDataPrefix(name)}
}

func (tx *badgerTx) CreateBucket(name string) (storageBucket, error) {
	key := badgerMetaKey('b', name)
	if !tx.exists(key) {
		if err := tx.btx.Set(key, nil); err != nil {
			return nil, err
		}
	}
	return &badgerBucket{tx: tx, name: name, prefix: badgerDataPrefix(name)}, nil
}

func (tx *badgerTx) DeleteBucket(name string) error {
	key := badgerMetaKey('b', name)
	if !tx.exists(key) {
		return ErrInvalidBucket
	}

	prefix := badgerDataPrefix(name)
	opt := badger.DefaultIteratorOptions
	opt.Prefix = prefix
	opt.PrefetchValues = false
	it := tx.btx.NewIterator(opt)
	var keys [][]byte
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := tx.btx.Delete(k); err != nil {
			return err
		}
	}
	if err := tx.btx.Delete(badgerMetaKey('s', name)); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	return tx.btx.Delete(key)
}

func (tx *badgerTx) BucketNames() []string {
	prefix := []byte{'b'}
	opt := badger.DefaultIteratorOptions
	opt.Prefix = prefix
	opt.PrefetchValues = false
	it := tx.btx.NewIterator(opt)
	defer it.Close()

	var names []string
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		name := string(it.Item().Key()[1:])
		if !isInternalBucketName([]byte(name)) {
			names = append(names, name)
		}
	}
	return names
}

func (tx *badgerTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.closeIterators()
	if !tx.writable {
		tx.btx.Discard()
		return nil
	}
	err := tx.btx.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return errTxConflict
	}
	return err
}

func (tx *badgerTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.closeIterators()
	tx.btx.Discard()
	return nil
}

type badgerBucket struct {
	tx     *badgerTx
	name   string
	prefix []byte
}

func (b *badgerBucket) fullKey(key []byte) []byte {
	return append(append([]byte(nil), b.prefix...), key...)
}

func (b *badgerBucket) Get(key []byte) ([]byte, error) {
	item, err := b.tx.btx.Get(b.fullKey(key))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (b *badgerBucket) Put(key, value []byte) error {
	return b.tx.btx.Set(b.fullKey(key), append([]byte(nil), value...))
}

func (b *badgerBucket) Delete(key []byte) error {
	return b.tx.btx.Delete(b.fullKey(key))
}

func (b *badgerBucket) Cursor() storageCursor {
	return &badgerCursor{b: b}
}

func (b *badgerBucket) KeyCount() (int, error) {
	opt := badger.DefaultIteratorOptions
	opt.Prefix = b.prefix
	opt.PrefetchValues = false
	it := b.tx.btx.NewIterator(opt)
	defer it.Close()

	var n int
	for it.Rewind(); it.ValidForPrefix(b.prefix); it.Next() {
		n++
	}
	return n, nil
}

func (b *badgerBucket) NextSequence() (uint64, error) {
	key := badgerMetaKey('s', b.name)
	var seq uint64
	item, err := b.tx.btx.Get(key)
	if err == nil {
		err = item.Value(func(val []byte) error {
			if len(val) == 8 {
				seq = binary.BigEndian.Uint64(val)
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	} else if err != badger.ErrKeyNotFound {
		return 0, err
	}
	seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := b.tx.btx.Set(key, buf[:]); err != nil {
		return 0, err
	}
	return seq, nil
}

// badgerCursor adapts Badger's one-directional iterators to the bidirectional
// cursor contract: a forward and a reverse iterator share the current
// position, and switching direction re-seeks.
type badgerCursor struct {
	b   *badgerBucket
	fwd *badger.Iterator // nil until needed
	rev *badger.Iterator // nil until needed
	cur []byte           // full key of the current position
}

func (c *badgerCursor) forward() *badger.Iterator {
	if c.fwd == nil {
		opt := badger.DefaultIteratorOptions
		opt.Prefix = c.b.prefix
		c.fwd = c.b.tx.newIterator(opt)
	}
	return c.fwd
}

func (c *badgerCursor) reverse() *badger.Iterator {
	if c.rev == nil {
		opt := badger.DefaultIteratorOptions
		opt.Reverse = true
		c.rev = c.b.tx.newIterator(opt)
	}
	return c.rev
}

func (c *badgerCursor) currentFwd() ([]byte, []byte) {
	it := c.fwd
	if !it.ValidForPrefix(c.b.prefix) {
		c.cur = nil
		return nil, nil
	}
	return c.materialize(it)
}

func (c *badgerCursor) currentRev() ([]byte, []byte) {
	it := c.rev
	if !it.Valid() || !bytes.HasPrefix(it.Item().Key(), c.b.prefix) {
		c.cur = nil
		return nil, nil
	}
	return c.materialize(it)
}

func (c *badgerCursor) materialize(it *badger.Iterator) ([]byte, []byte) {
	item := it.Item()
	c.cur = item.KeyCopy(nil)
	value, err := item.ValueCopy(nil)
	if err != nil {
		c.cur = nil
		return nil, nil
	}
	return c.cur[len(c.b.prefix):], value
}

func (c *badgerCursor) First() ([]byte, []byte) {
	it := c.forward()
	it.Rewind()
	return c.currentFwd()
}

func (c *badgerCursor) Last() ([]byte, []byte) {
	limit := prefixSuccessor(c.b.prefix)
	it := c.reverse()
	it.Seek(limit)
	if it.Valid() && bytes.Equal(it.Item().Key(), limit) {
		it.Next()
	}
	return c.currentRev()
}

func (c *badgerCursor) Seek(seek []byte) ([]byte, []byte) {
	it := c.forward()
	it.Seek(c.b.fullKey(seek))
	return c.currentFwd()
}

func (c *badgerCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	limit := prefixSuccessor(c.b.fullKey(prefix))
	if limit == nil {
		return c.Last()
	}
	it := c.reverse()
	it.Seek(limit)
	if it.Valid() && bytes.Equal(it.Item().Key(), limit) {
		it.Next()
	}
	return c.currentRev()
}

func (c *badgerCursor) Next() ([]byte, []byte) {
	if c.cur == nil {
		return c.First()
	}
	it := c.forward()
	it.Seek(c.cur)
	if it.ValidForPrefix(c.b.prefix) && bytes.Equal(it.Item().Key(), c.cur) {
		it.Next()
	}
	return c.currentFwd()
}

func (c *badgerCursor) Prev() ([]byte, []byte) {
	if c.cur == nil {
		return nil, nil
	}
	it := c.reverse()
	it.Seek(c.cur)
	if it.Valid() && bytes.Equal(it.Item().Key(), c.cur) {
		it.Next()
	}
	return c.currentRev()
}

func (c *badgerCursor) Delete() error {
	if c.cur == nil {
		return nil
	}
	return c.b.tx.btx.Delete(append([]byte(nil), c.cur...))
}
