package kv

import (
	"bytes"
	"context"
	"sync"
)

// rawEvent is one committed change, before typed decoding.
type rawEvent struct {
	bucket string
	op     Op
	key    Raw
	value  Raw
}

// eventLog collects the changes made inside one engine transaction. The log
// is discarded on rollback or conflict retry and published after commit.
type eventLog struct {
	events []rawEvent
}

func (log *eventLog) add(bucket string, op Op, key, value Raw) {
	// Clone defensively: cursor-provided slices die with the transaction.
	log.events = append(log.events, rawEvent{bucket: bucket, op: op, key: key.Clone(), value: value.Clone()})
}

// watcherSet is a store's subscription registry: bucket name to prefix
// watchers. publish is always called with the store's publish lock held, so
// watchers receive events in commit order.
type watcherSet struct {
	mu     sync.Mutex
	m      map[string][]*watcher
	closed bool
}

func (ws *watcherSet) init() {
	ws.m = make(map[string][]*watcher)
}

func (ws *watcherSet) subscribe(bucket string, prefix Raw) *watcher {
	w := &watcher{
		set:    ws,
		bucket: bucket,
		prefix: prefix.Clone(),
		ready:  make(chan struct{}, 1),
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		w.closed = true
		return w
	}
	ws.m[bucket] = append(ws.m[bucket], w)
	return w
}

func (ws *watcherSet) unsubscribe(w *watcher) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	list := ws.m[w.bucket]
	for i, other := range list {
		if other == w {
			n := len(list)
			list[i] = list[n-1]
			list[n-1] = nil
			ws.m[w.bucket] = list[:n-1]
			break
		}
	}
}

func (ws *watcherSet) publish(events []rawEvent) {
	if len(events) == 0 {
		return
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, ev := range events {
		for _, w := range ws.m[ev.bucket] {
			if bytes.HasPrefix(ev.key, w.prefix) {
				w.push(ev)
			}
		}
	}
}

func (ws *watcherSet) closeAll() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.closed = true
	for _, list := range ws.m {
		for _, w := range list {
			w.close()
		}
	}
	ws.m = make(map[string][]*watcher)
}

// watcher is the untyped half of a Watch: an unbounded queue of events plus a
// wakeup channel. Queueing instead of blocking keeps slow consumers from
// stalling committers.
type watcher struct {
	set    *watcherSet
	bucket string
	prefix Raw

	mu     sync.Mutex
	queue  []rawEvent
	closed bool
	ready  chan struct{}
}

func (w *watcher) push(ev rawEvent) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, ev)
	w.mu.Unlock()
	select {
	case w.ready <- struct{}{}:
	default:
	}
}

func (w *watcher) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.queue = nil
	w.mu.Unlock()
	select {
	case w.ready <- struct{}{}:
	default:
	}
}

// next returns the next event, suspending until one arrives, the watcher
// closes (nil, nil), or ctx is done.
func (w *watcher) next(ctx context.Context) (*rawEvent, error) {
	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			ev := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()
			return &ev, nil
		}
		if w.closed {
			w.mu.Unlock()
			return nil, nil
		}
		w.mu.Unlock()

		select {
		case <-w.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Watch is a live subscription to changes on one bucket, filtered by key
// prefix. It only observes writes committed after its creation; there is no
// history replay. A Watch can be consumed as a blocking iterator (Next) or
// suspended on a context (NextContext); both pull from the same queue.
type Watch[K Key[K], V Value[V]] struct {
	w *watcher
}

// Next blocks until the next event. It returns nil once the Watch or its
// Store has been closed.
func (w *Watch[K, V]) Next() *Event[K, V] {
	ev, _ := w.NextContext(context.Background())
	return ev
}

// NextContext suspends the calling goroutine until the next event, the Watch
// closes (nil, nil), or ctx is done (nil, ctx.Err()).
func (w *Watch[K, V]) NextContext(ctx context.Context) (*Event[K, V], error) {
	ev, err := w.w.next(ctx)
	if ev == nil || err != nil {
		return nil, err
	}
	out := &Event[K, V]{
		op:   ev.op,
		item: Item[K, V]{key: ev.key, value: ev.value},
	}
	return out, nil
}

// Close ends the subscription; no further events are delivered.
func (w *Watch[K, V]) Close() {
	w.w.set.unsubscribe(w.w)
	w.w.close()
}
