/*
Package store implements the runtime of a normalized, in-memory cache of
GraphQL response data.

We implement:

1. Record and RecordSource, an immutable-by-convention keyed mapping from
DataID to record data, with copy-on-write mutable overlays for staged
writes.

2. Normalizer, turning a raw response payload into records written into a
sink source.

3. Reader, materializing tree-shaped snapshots out of a RecordSource against
a compiled selection tree, tracking missing data and touched records.

4. Store, the canonical holder of the record source, plus subscriptions,
retained roots, and a reference-tracing garbage collector.

5. PublishQueue, the transactional coordinator between authoritative
payloads, client-only updaters, and speculative ("optimistic") updates that
can be reverted and rebased atop newly committed data.

# Technical Details

**DataIDs.**
Every record is addressed by an opaque string DataID. Linked fields store a
DataID reference rather than a pointer to the child record, so the record
graph has no language-level ownership cycles — all traversal goes through
the source's keyed mapping (see internal/idtable for the xxhash-sharded
membership sets used for seen-record and GC mark sets).

**Storage keys.**
A record's fields are addressed by a storage key: the field's response name
plus its arguments, canonicalized by sorting argument names and rendering
values through a stable JSON encoding. See storagekey.go.

**Copy-on-write.**
RecordSourceMutator overlays a mutable sink atop a read-only base. A write
to a record that exists only in the base shallow-copies it into the sink on
first touch and, if a backup sink is attached, saves the pre-write state
there — this is the exact mechanism that makes optimistic update rebase
(PublishQueue.run, §4.6) possible without ever mutating the base. Writing
a scalar string field back to the value it already holds skips the copy
entirely (RecordSourceMutator.SetValue's fingerprint check).

**Single-threaded.**
Every public operation here runs to completion on the calling goroutine.
There is no internal locking on the hot path; the only asynchrony is the
pluggable GC scheduler and the external OperationLoader used for @match
module imports.
*/
package store
