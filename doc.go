/*
Package kv implements a typed access layer on top of an ordered, persistent
key-value engine (Bolt by default, with Badger and a transient in-memory
backend as alternatives).

The engine only ever sees opaque byte strings. This package adds:

1. Buckets, named ordered maps with statically typed keys and values.

2. Codecs, pluggable serialization wrappers (JSON, MessagePack, binary)
turning arbitrary structured types into stored bytes.

3. Transactions, atomic read-modify-write closures spanning up to three
buckets at once.

4. Batches, ordered lists of writes applied to one bucket atomically.

5. Watches, live subscriptions to changes under a key prefix.

# Technical Details

**Buckets.**
We rely on scoped namespaces for keys called buckets. Bolt supports them
natively; the Badger backend simulates them with length-prefixed key
prefixes, and the in-memory backend with a map of sorted slices.

**Key encoding.**
A key type converts itself to raw bytes, and the byte-lexicographic order of
those bytes must agree with the type's natural order, because range scans
compare bytes. This is why Integer keys are stored big-endian: big-endian is
monotonic with numeric value under lexicographic comparison, so
encode(1) < encode(256) holds the way callers expect.

**Value encoding.**
A value type converts itself to raw bytes with no ordering requirement.
Codec wrappers (Json, Msgpack, Binary) implement the Value contract by
delegating to a named wire format; wrapping the same inner type in two
different codecs yields two distinct, non-interoperable value types.

**Transactions.**
The transaction closure may run more than once: the Badger backend detects
write conflicts optimistically and the executor retries the whole closure.
Closures must therefore be free of external side effects and only touch
state through the Transaction handles they are given. Any error returned
from the closure aborts the transaction and is propagated to the caller
unchanged.

**Watches.**
Events are published after the engine commit while holding the publish lock
acquired before the commit, so delivery order is commit order. A watch only
sees writes made after it was created; there is no history replay.

**Iterators.**
An iterator holds a read transaction open for its lifetime, so it observes a
snapshot taken at creation time and must be closed. Decoding is deferred to
Item.Key and Item.Value, so one malformed entry cannot abort the rest of a
scan.
*/
package kv
