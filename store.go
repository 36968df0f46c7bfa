package kv

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Bucket names starting with NUL are reserved for internal bookkeeping and
// never appear in BucketNames.
const seqBucketName = "\x00kv.seq"

const defaultBucketName = "default"

func isInternalBucketName(name []byte) bool {
	return len(name) > 0 && name[0] == 0
}

// Store owns one engine handle and its configuration. Buckets, transactions
// and watches are all created from a Store and must not be used after it is
// closed. Open Stores through a Manager to guarantee one handle per path per
// process.
type Store struct {
	stg    storage
	cfg    *Config
	logger *slog.Logger

	watchers watcherSet

	// pubMu is held across commit and event publication, so watch delivery
	// order is commit order.
	pubMu sync.Mutex

	closed    atomic.Bool
	flushStop chan struct{}
	flushDone chan struct{}

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

// NewStore opens (creating if needed) the store described by cfg.
func NewStore(cfg *Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()
	if cfg.Engine == "" {
		cfg.Engine = EngineBolt
	}

	var stg storage
	var err error
	switch cfg.Engine {
	case EngineMemory:
		stg = newMemStorage()
	case EngineBadger:
		if err = os.MkdirAll(cfg.Path, 0777); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		stg, err = openBadgerStorage(cfg.Path, cfg)
	default:
		if err = os.MkdirAll(cfg.Path, 0777); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		stg, err = openBoltStorage(filepath.Join(cfg.Path, "kv.db"), cfg)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{
		stg:    stg,
		cfg:    cfg,
		logger: slog.Default(),
	}
	s.watchers.init()

	if cfg.FlushEveryMs > 0 && !cfg.ReadOnly && cfg.Engine != EngineMemory {
		s.flushStop = make(chan struct{})
		s.flushDone = make(chan struct{})
		go s.flushLoop(time.Duration(cfg.FlushEveryMs) * time.Millisecond)
	}
	return s, nil
}

// Config returns a copy of the store's configuration.
func (s *Store) Config() Config {
	return *s.cfg.clone()
}

// SetLogger replaces the store's logger (slog.Default() initially).
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *Store) flushLoop(interval time.Duration) {
	defer close(s.flushDone)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := s.stg.Sync(); err != nil {
				s.logger.Error("kv: periodic flush failed", "path", s.cfg.Path, "err", err)
			}
		case <-s.flushStop:
			return
		}
	}
}

// BucketNames lists the store's bucket names in sorted order.
func (s *Store) BucketNames() ([]string, error) {
	var names []string
	err := s.view(func(tx storageTx) error {
		names = tx.BucketNames()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// DropBucket irreversibly removes a bucket and all its entries.
func (s *Store) DropBucket(name string) error {
	if name == "" {
		name = defaultBucketName
	}
	return s.update(func(tx storageTx, _ *eventLog) error {
		err := tx.DeleteBucket(name)
		if err == ErrInvalidBucket {
			return bucketErrf(name, ErrInvalidBucket, "drop")
		}
		return err
	})
}

// GenerateID returns a store-wide monotonically increasing 64-bit id.
// Ids are unique within the store but not gap-free.
func (s *Store) GenerateID() (uint64, error) {
	var id uint64
	err := s.update(func(tx storageTx, _ *eventLog) error {
		b, err := tx.CreateBucket(seqBucketName)
		if err != nil {
			return err
		}
		id, err = b.NextSequence()
		return err
	})
	return id, err
}

// Size reports the store's on-disk size in bytes.
func (s *Store) Size() (int64, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	return s.stg.Size()
}

// Flush forces buffered writes to durable storage and returns the store's
// on-disk size afterwards.
func (s *Store) Flush() (int64, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	if err := s.stg.Sync(); err != nil {
		return 0, err
	}
	return s.stg.Size()
}

// FlushContext is Flush running off the calling goroutine; it suspends until
// the flush completes or ctx is done.
func (s *Store) FlushContext(ctx context.Context) (int64, error) {
	type result struct {
		n   int64
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := s.Flush()
		ch <- result{n, err}
	}()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close closes the engine and ends all watches. A Temporary store's
// directory is removed. Close is idempotent.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.flushStop != nil {
		close(s.flushStop)
		<-s.flushDone
	}
	s.watchers.closeAll()
	err := s.stg.Close()
	if s.cfg.Temporary && s.cfg.Engine != EngineMemory {
		if rmErr := os.RemoveAll(s.cfg.Path); err == nil {
			err = rmErr
		}
	}
	return err
}

func (s *Store) view(f func(tx storageTx) error) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	s.ReadCount.Add(1)
	tx, err := s.stg.BeginTx(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

const maxTxRetries = 16

// update runs f in a writable engine transaction and publishes the events it
// logged after a successful commit. On an optimistic-concurrency conflict the
// whole closure is re-invoked, so f must be free of external side effects.
func (s *Store) update(f func(tx storageTx, log *eventLog) error) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if s.cfg.ReadOnly {
		return ErrReadOnly
	}
	s.WriteCount.Add(1)

	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		tx, err := s.stg.BeginTx(true)
		if err != nil {
			return err
		}
		var log eventLog
		err = safelyCall(f, tx, &log)
		if err != nil {
			tx.Rollback()
			return err
		}

		s.pubMu.Lock()
		err = tx.Commit()
		if err == errTxConflict {
			s.pubMu.Unlock()
			lastErr = err
			continue
		}
		if err != nil {
			s.pubMu.Unlock()
			return fmt.Errorf("commit: %w", err)
		}
		s.watchers.publish(log.events)
		s.pubMu.Unlock()
		return nil
	}
	return fmt.Errorf("transaction retried %d times: %w", maxTxRetries, lastErr)
}

func safelyCall(fn func(storageTx, *eventLog) error, tx storageTx, log *eventLog) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx, log)
}
