package store

import "github.com/graphkv/store/internal/idtable"

// DataID is an opaque interned string identifying a record.
type DataID string

const (
	// RootID is the well-known DataID of the query root record.
	RootID DataID = "client:root"
	// ViewerID is the well-known DataID of the viewer record.
	ViewerID DataID = "client:root:viewer"
)

// Ref is a singular linked-record value: {__ref: DataID}.
type Ref struct{ ID DataID }

// Refs is a plural, ordered, nullable linked-record value: {__refs: [...]}.
// A nil element represents a null hole, distinct from a shorter slice.
type Refs struct{ IDs []*DataID }

const (
	// ReservedID is the record attribute holding its own DataID.
	ReservedID = "__id"
	// ReservedTypename is the record attribute holding its __typename.
	ReservedTypename = "__typename"
)

// Record is an immutable-by-convention mapping from storage key to field
// value. Values are one of: nil (explicit null), bool, float64, string,
// Ref, Refs. A key that is not present in the map is "absent", distinct
// from being present with a nil value.
//
// Once a Record is placed into a Store's canonical source, callers must
// not mutate it; RecordSourceMutator always clones-on-write before
// changing anything (see mutator.go).
type Record map[string]any

// ID returns the record's own DataID, read from the reserved __id key.
func (r Record) ID() DataID {
	v, _ := r[ReservedID].(DataID)
	return v
}

// Typename returns the record's __typename, or "" if absent.
func (r Record) Typename() string {
	v, _ := r[ReservedTypename].(string)
	return v
}

// Clone returns a shallow copy of r: a new map with the same values. Linked
// values (Ref/Refs) are small value types, so a shallow copy is sufficient
// — no nested record is ever reachable through a field value, only through
// another Get on the source.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Equal reports whether two records have identical storage keys and
// field-wise equal values. Ref/Refs compare by DataID value.
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		ov, ok := other[k]
		if !ok || !valueEqual(v, ov) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case Ref:
		bv, ok := b.(Ref)
		return ok && av.ID == bv.ID
	case Refs:
		bv, ok := b.(Refs)
		if !ok || len(av.IDs) != len(bv.IDs) {
			return false
		}
		for i := range av.IDs {
			an, bn := av.IDs[i], bv.IDs[i]
			if (an == nil) != (bn == nil) {
				return false
			}
			if an != nil && *an != *bn {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Status describes the three-way presence of a DataID in a RecordSource:
// a record, an explicit tombstone, or simply absent.
type Status int

const (
	StatusAbsent Status = iota
	StatusPresent
	StatusTombstone
	// StatusUnpublish only ever appears in a PublishQueue backup source: it
	// marks a DataID that had no prior state in the base when an optimistic
	// update first touched it, so undoing that update must forget the
	// DataID entirely (Remove) rather than leaving a tombstone behind.
	// This is spec.md §4.5's "unpublish sentinel (distinct from tombstone)".
	StatusUnpublish
)

// RecordSource is a read-only keyed mapping DataID -> (Record | tombstone |
// absent). It is the facade handed to Reader, ReferenceMarker and
// DataChecker; RecordSourceMutator and Store's canonical source additionally
// implement MutableRecordSource.
type RecordSource interface {
	// Get returns the record for id and its presence status. When status is
	// not StatusPresent, the returned Record is nil.
	Get(id DataID) (Record, Status)
	GetRecordIDs() []DataID
	Size() int
}

// MutableRecordSource additionally allows writes. Set replaces or creates a
// record. Delete writes a tombstone. Remove forgets the DataID entirely
// (distinct from tombstoning it). Unpublish marks a DataID with the
// "unpublish sentinel" (backup sources only, see StatusUnpublish). Clear
// empties the source.
type MutableRecordSource interface {
	RecordSource
	Set(id DataID, rec Record)
	Delete(id DataID)
	Remove(id DataID)
	Unpublish(id DataID)
	Clear()
}

// memRecordSource is the canonical, map-backed implementation used both as
// the Store's authoritative source and as ad hoc sinks (normalizer output,
// mutator overlays).
type memRecordSource struct {
	records map[DataID]Record
	status  map[DataID]Status
	seen    *idtable.Set
}

// NewRecordSource returns an empty, mutable, map-backed RecordSource
// suitable for use as a normalization sink or a standalone canonical
// source.
func NewRecordSource() MutableRecordSource {
	return &memRecordSource{
		records: make(map[DataID]Record),
		status:  make(map[DataID]Status),
		seen:    idtable.NewSet(),
	}
}

func (s *memRecordSource) Get(id DataID) (Record, Status) {
	st, ok := s.status[id]
	if !ok {
		return nil, StatusAbsent
	}
	if st != StatusPresent {
		return nil, st
	}
	return s.records[id], StatusPresent
}

func (s *memRecordSource) Set(id DataID, rec Record) {
	s.records[id] = rec
	s.status[id] = StatusPresent
	s.seen.Add(string(id))
}

func (s *memRecordSource) Delete(id DataID) {
	delete(s.records, id)
	s.status[id] = StatusTombstone
	s.seen.Add(string(id))
}

func (s *memRecordSource) Remove(id DataID) {
	delete(s.records, id)
	delete(s.status, id)
	s.seen.Remove(string(id))
}

func (s *memRecordSource) Unpublish(id DataID) {
	delete(s.records, id)
	s.status[id] = StatusUnpublish
	s.seen.Add(string(id))
}

func (s *memRecordSource) Clear() {
	s.records = make(map[DataID]Record)
	s.status = make(map[DataID]Status)
	s.seen = idtable.NewSet()
}

// GetRecordIDs reports every DataID this source currently holds a record,
// tombstone or unpublish sentinel for; Remove drops a DataID from it. It is
// sourced from the xxhash-sharded seen set rather than the status map: the
// two are kept in lockstep by Set/Delete/Unpublish/Remove.
func (s *memRecordSource) GetRecordIDs() []DataID {
	ids := make([]DataID, 0, s.seen.Len())
	s.seen.Each(func(id string) {
		ids = append(ids, DataID(id))
	})
	return ids
}

func (s *memRecordSource) Size() int {
	return s.seen.Len()
}
