package store

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/graphkv/store/internal/idtable"
	"github.com/graphkv/store/ir"
)

// Disposable is returned by Subscribe, Retain and HoldGC; Dispose releases
// whatever it was guarding.
type Disposable interface {
	Dispose()
}

type disposeFunc func()

func (f disposeFunc) Dispose() { f() }

// GCScheduler defers a GC sweep, mirroring the environment's
// microtask-equivalent per spec.md §9 ("the default schedules on the
// nearest available microtask-like primitive"). Schedule may run fn
// synchronously or queue it; the Store only ever has one sweep pending at a
// time (coalesced).
type GCScheduler interface {
	Schedule(fn func())
}

// ImmediateScheduler runs the sweep synchronously, on the calling
// goroutine, the moment it is scheduled. The default for tests and for
// environments with no natural microtask boundary.
type ImmediateScheduler struct{}

func (ImmediateScheduler) Schedule(fn func()) { fn() }

type subscription struct {
	snapshot *Snapshot
	callback func(*Snapshot)
}

type retainedRoot struct {
	sel ir.NormalizationSelector
}

// Options configures a new Store.
type Options struct {
	Logger *slog.Logger
	GC     GCScheduler

	// Strict enables a development-mode check, per spec.md §3's "canonical
	// store takes ownership of records placed into it; callers must not
	// mutate records afterward (enforced in development by deep-freeze)"
	// and §4.5's "freezes the result in development". Since Record is a
	// plain map, Go has no way to make it structurally read-only; instead,
	// Store fingerprints every record's contents at Publish time and
	// re-checks that fingerprint on every later Lookup/Publish that
	// touches it, panicking the moment it finds a record whose contents
	// changed without going through Publish — catching a caller that kept
	// a Record obtained from Source().Get and mutated it in place.
	Strict bool
}

// Store holds the canonical RecordSource and coordinates reads,
// subscriptions, root retention and garbage collection, per spec.md §4.5.
// Per spec.md §5, Store has no internal locking: every public method is
// expected to run to completion on a single cooperative thread.
type Store struct {
	source RecordSource
	mut    MutableRecordSource // same object as source, narrowed for writes
	log    *slog.Logger
	gcSched GCScheduler

	subs map[*subscription]struct{}

	onChange func(RecordChange)

	retained    map[int]*retainedRoot
	nextRootIdx int

	updatedIDs idSet

	strict bool
	frozen map[DataID]uint64 // nil unless strict

	gcHoldCount  int
	gcPending    bool
	gcScheduled  bool

	statPublishes atomic.Uint64
	statNotifies  atomic.Uint64
	statGCRuns    atomic.Uint64
}

// NewStore returns a Store with an empty canonical source.
func NewStore(opt Options) *Store {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sched := opt.GC
	if sched == nil {
		sched = ImmediateScheduler{}
	}
	src := NewRecordSource()
	st := &Store{
		source:     src,
		mut:        src,
		log:        logger,
		gcSched:    sched,
		subs:       make(map[*subscription]struct{}),
		retained:   make(map[int]*retainedRoot),
		updatedIDs: newIDSet(),
		strict:     opt.Strict,
	}
	if st.strict {
		st.frozen = make(map[DataID]uint64)
	}
	return st
}

// Source exposes the canonical source read-only, for callers (e.g. the
// PublishQueue) that need to build a RecordSourceMutator over it.
func (s *Store) Source() RecordSource { return s.source }

// OnChange installs a callback invoked once per DataID touched by each
// Publish call, for diagnostics and tests that want to assert on exactly
// what a publish did without diffing two Dump()s.
func (s *Store) OnChange(f func(RecordChange)) { s.onChange = f }

// Lookup runs a Reader over the canonical source for sel, owned by owner.
// When Options.Strict is set, it also verifies that every record the read
// touched still matches the fingerprint it had when last Published,
// panicking if anything was mutated out of band (spec.md §4.5's "freezes
// the result in development").
func (s *Store) Lookup(sel ir.ReaderSelector, owner *OperationDescriptor) *Snapshot {
	snap := NewReader(s.source).Read(sel, owner)
	if s.strict {
		for _, id := range snap.SeenRecords {
			s.checkFrozen(id)
		}
	}
	return snap
}

// checkFrozen panics if id's current record contents no longer match the
// fingerprint recorded the last time it was Published — i.e. some caller
// kept the Record returned by Source().Get(id) and wrote into it directly
// instead of going through Publish, which the canonical store's ownership
// contract forbids.
func (s *Store) checkFrozen(id DataID) {
	rec, status := s.source.Get(id)
	if status != StatusPresent {
		return
	}
	want, ok := s.frozen[id]
	if !ok {
		return
	}
	if got := recordFingerprint(rec); got != want {
		panic(fmt.Sprintf("store: record %s was mutated in place after being frozen by Publish; Strict mode forbids writing into a Record obtained from Source().Get", id))
	}
}

func (s *Store) stampFrozen(id DataID, rec Record) {
	if s.strict {
		s.frozen[id] = recordFingerprint(rec)
	}
}

func (s *Store) forgetFrozen(id DataID) {
	if s.strict {
		delete(s.frozen, id)
	}
}

// recordFingerprint combines per-field xxhash fingerprints (the same
// idtable.Fingerprint used by RecordSourceMutator's no-op write check)
// with XOR, which is commutative, so the result doesn't depend on Go's
// randomized map iteration order.
func recordFingerprint(rec Record) uint64 {
	var sum uint64
	for k, v := range rec {
		sum ^= idtable.Fingerprint(k, fmt.Sprint(v))
	}
	return sum
}

// Check reports whether sel's data is already fully resident, per spec.md
// §4.5 ("check(normalizationSelector) -> bool").
func (s *Store) Check(sel ir.NormalizationSelector) bool {
	return CheckData(s.source, sel)
}

// Publish merges src into the canonical source following the merge rules
// of spec.md §4.5, recording every DataID whose state changed in
// _updatedRecordIDs (a merge that leaves a record equal is not recorded).
func (s *Store) Publish(src RecordSource) {
	s.statPublishes.Add(1)
	for _, id := range src.GetRecordIDs() {
		if s.strict {
			s.checkFrozen(id)
		}
		newRec, newStatus := src.Get(id)
		oldRec, oldStatus := s.source.Get(id)

		switch newStatus {
		case StatusTombstone:
			s.mut.Delete(id)
			s.forgetFrozen(id)
			if oldStatus != StatusTombstone {
				s.updatedIDs.add(id)
				s.emitChange(id, OpDelete)
			}

		case StatusUnpublish:
			s.mut.Remove(id)
			s.forgetFrozen(id)
			s.updatedIDs.add(id)
			s.emitChange(id, OpForget)

		case StatusPresent:
			if oldStatus != StatusPresent {
				put := newRec.Clone()
				s.mut.Set(id, put)
				s.stampFrozen(id, put)
				s.updatedIDs.add(id)
				s.emitChange(id, OpPut)
				continue
			}
			merged := oldRec.Clone()
			for k, v := range newRec {
				merged[k] = v
			}
			if !merged.Equal(oldRec) {
				s.mut.Set(id, merged)
				s.stampFrozen(id, merged)
				s.updatedIDs.add(id)
				s.emitChange(id, OpMerge)
			}
		}
	}
}

func (s *Store) emitChange(id DataID, op Op) {
	if s.onChange != nil {
		s.onChange(RecordChange{DataID: id, Op: op})
	}
}

// Notify re-reads every subscription whose previous snapshot overlaps
// _updatedRecordIDs, recycles identity where possible, and fires callbacks
// whose recycled data is not reference-equal to the old data. Returns the
// owners of every snapshot that fired. Clears _updatedRecordIDs.
func (s *Store) Notify() []*OperationDescriptor {
	s.statNotifies.Add(1)
	var fired []*OperationDescriptor
	if s.updatedIDs.Len() == 0 {
		return fired
	}
	for sub := range s.subs {
		if !hasOverlappingIDs(sub.snapshot, s.updatedIDs) {
			continue
		}
		oldData := sub.snapshot.Data
		next := NewReader(s.source).Read(sub.snapshot.Selector, sub.snapshot.Owner)
		next.Data = RecycleIdentity(oldData, next.Data)
		if !identicalValue(oldData, next.Data) {
			sub.snapshot = next
			sub.callback(next)
			fired = append(fired, next.Owner)
		} else {
			sub.snapshot = next
		}
	}
	s.updatedIDs = newIDSet()
	return fired
}

// hasOverlappingIDs reports whether snap's seen-set intersects ids.
func hasOverlappingIDs(snap *Snapshot, ids idSet) bool {
	for _, id := range snap.SeenRecords {
		if ids.has(id) {
			return true
		}
	}
	return false
}

// Subscribe registers callback to fire whenever a re-read of snap's
// selector produces data that is not reference-equal to snap's.
func (s *Store) Subscribe(snap *Snapshot, callback func(*Snapshot)) Disposable {
	sub := &subscription{snapshot: snap, callback: callback}
	s.subs[sub] = struct{}{}
	return disposeFunc(func() {
		delete(s.subs, sub)
	})
}

// Retain adds sel's root to the GC marking-roots set. Disposing schedules a
// GC sweep.
func (s *Store) Retain(sel ir.NormalizationSelector) Disposable {
	idx := s.nextRootIdx
	s.nextRootIdx++
	s.retained[idx] = &retainedRoot{sel: sel}
	return disposeFunc(func() {
		delete(s.retained, idx)
		s.scheduleGC()
	})
}

// HoldGC increments the GC-hold counter; while it is above zero, scheduled
// sweeps are deferred. Disposing decrements it; reaching zero with a
// pending sweep runs one.
func (s *Store) HoldGC() Disposable {
	s.gcHoldCount++
	disposed := false
	return disposeFunc(func() {
		if disposed {
			return
		}
		disposed = true
		s.gcHoldCount--
		if s.gcHoldCount == 0 && s.gcPending {
			s.scheduleGC()
		}
	})
}

// scheduleGC coalesces GC triggers into a single pending sweep.
func (s *Store) scheduleGC() {
	s.gcPending = true
	if s.gcHoldCount > 0 {
		return
	}
	if s.gcScheduled {
		return
	}
	s.gcScheduled = true
	s.gcSched.Schedule(func() {
		s.gcScheduled = false
		if s.gcHoldCount > 0 || !s.gcPending {
			return
		}
		s.gcPending = false
		s.runGC()
	})
}

// runGC performs a full mark-sweep over the canonical source, per spec.md
// §4.5. With no retained roots, or nothing reachable, the entire source is
// cleared.
func (s *Store) runGC() {
	s.statGCRuns.Add(1)
	if len(s.retained) == 0 {
		s.mut.Clear()
		if s.strict {
			s.frozen = make(map[DataID]uint64)
		}
		return
	}
	marked := newIDSet()
	for _, root := range s.retained {
		MarkReferences(s.source, root.sel, root.sel.Variables, marked)
	}
	if marked.Len() == 0 {
		s.mut.Clear()
		if s.strict {
			s.frozen = make(map[DataID]uint64)
		}
		return
	}
	for _, id := range s.source.GetRecordIDs() {
		if !marked.has(id) {
			s.forgetFrozen(id)
			s.mut.Remove(id)
		}
	}
}
