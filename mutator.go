package store

import "github.com/graphkv/store/internal/idtable"

// RecordSourceMutator overlays a mutable sink on top of a read-only base,
// optionally with a backup sink for undo, per spec.md §4.1. All reads fall
// through sink then base. All writes go to the sink only; the first write
// to a record that exists only in the base clones it into the sink before
// mutating, saving the record's pre-write state (or the "unpublish"
// sentinel, if it had none) to the backup.
type RecordSourceMutator struct {
	base   RecordSource
	sink   MutableRecordSource
	backup MutableRecordSource // nil when no undo tracking is wanted
	copied map[DataID]bool
	memo   map[string]any
}

// NewMutator returns a mutator overlaying sink on base, tracking undo
// information in backup (which may be nil).
func NewMutator(base RecordSource, sink MutableRecordSource, backup MutableRecordSource) *RecordSourceMutator {
	return &RecordSourceMutator{base: base, sink: sink, backup: backup, copied: make(map[DataID]bool)}
}

func (m *RecordSourceMutator) Sink() MutableRecordSource { return m.sink }
func (m *RecordSourceMutator) Base() RecordSource        { return m.base }

// Get falls through sink then base.
func (m *RecordSourceMutator) Get(id DataID) (Record, Status) {
	if rec, status := m.sink.Get(id); status != StatusAbsent {
		return rec, status
	}
	return m.base.Get(id)
}

// touch returns the sink-owned, mutable copy of id's record, cloning the
// base record (or starting a fresh one) and recording backup state on the
// record's first touch within this transaction.
func (m *RecordSourceMutator) touch(id DataID) Record {
	if m.copied[id] {
		rec, status := m.sink.Get(id)
		if status == StatusPresent {
			return rec
		}
		rec = Record{ReservedID: id}
		m.sink.Set(id, rec)
		return rec
	}

	baseRec, baseStatus := m.base.Get(id)
	if m.backup != nil {
		switch baseStatus {
		case StatusPresent:
			m.backup.Set(id, baseRec)
		case StatusTombstone:
			m.backup.Delete(id)
		case StatusAbsent:
			m.backup.Unpublish(id)
		}
	}

	var newRec Record
	if baseStatus == StatusPresent {
		newRec = baseRec.Clone()
	} else {
		newRec = Record{ReservedID: id}
	}
	m.sink.Set(id, newRec)
	m.copied[id] = true
	return newRec
}

// CreateRecord starts (or re-touches) a record with the given typename.
func (m *RecordSourceMutator) CreateRecord(id DataID, typename string) {
	rec := m.touch(id)
	rec[ReservedID] = id
	if typename != "" {
		rec[ReservedTypename] = typename
	}
}

// DeleteRecord writes a tombstone for id, saving backup state exactly like
// any other first touch.
func (m *RecordSourceMutator) DeleteRecord(id DataID) {
	if !m.copied[id] {
		baseRec, baseStatus := m.base.Get(id)
		if m.backup != nil {
			switch baseStatus {
			case StatusPresent:
				m.backup.Set(id, baseRec)
			case StatusTombstone:
				m.backup.Delete(id)
			case StatusAbsent:
				m.backup.Unpublish(id)
			}
		}
		m.copied[id] = true
	}
	m.sink.Delete(id)
}

func (m *RecordSourceMutator) GetValue(id DataID, key string) (any, bool) {
	rec, status := m.Get(id)
	if status != StatusPresent {
		return nil, false
	}
	v, ok := rec[key]
	return v, ok
}

// SetValue writes value at key on id's record, touching (and so
// copy-on-write cloning) it first. As a fast path for the common case of
// re-writing a scalar string field to the value it already holds — e.g. a
// normalizer re-visiting a record a sibling selection already wrote — it
// compares the fingerprint of the incoming value against the fingerprint
// of whatever is already stored before paying for a clone, so unchanged
// fields never force a record to be copied into the sink at all.
func (m *RecordSourceMutator) SetValue(id DataID, key string, value any) {
	if !m.copied[id] {
		if sval, ok := value.(string); ok {
			if existing, has := m.GetValue(id, key); has {
				if estr, ok := existing.(string); ok &&
					idtable.Fingerprint(key, estr) == idtable.Fingerprint(key, sval) {
					return
				}
			}
		}
	}
	rec := m.touch(id)
	rec[key] = value
}

// DeleteValue removes key from id's record, cloning it first like SetValue.
// Used to clear a field nothing re-wrote on this pass — e.g. the
// "__deferred$" marker a completed @defer/@stream boundary must drop.
func (m *RecordSourceMutator) DeleteValue(id DataID, key string) {
	rec := m.touch(id)
	delete(rec, key)
}

func (m *RecordSourceMutator) GetLinked(id DataID, key string) (DataID, bool) {
	v, ok := m.GetValue(id, key)
	if !ok {
		return "", false
	}
	ref, ok := v.(Ref)
	return ref.ID, ok
}

func (m *RecordSourceMutator) SetLinked(id DataID, key string, target DataID) {
	m.SetValue(id, key, Ref{ID: target})
}

func (m *RecordSourceMutator) GetLinkedPlural(id DataID, key string) ([]*DataID, bool) {
	v, ok := m.GetValue(id, key)
	if !ok {
		return nil, false
	}
	refs, ok := v.(Refs)
	return refs.IDs, ok
}

func (m *RecordSourceMutator) SetLinkedPlural(id DataID, key string, targets []*DataID) {
	m.SetValue(id, key, Refs{IDs: targets})
}

// GetRecordIDs returns every DataID known to either the sink or the base,
// so a RecordSourceMutator itself satisfies RecordSource — needed to feed a
// re-read (SelectorProxy.Read) directly off an in-flight transaction.
func (m *RecordSourceMutator) GetRecordIDs() []DataID {
	seen := make(map[DataID]bool)
	ids := make([]DataID, 0)
	for _, id := range m.sink.GetRecordIDs() {
		seen[id] = true
		ids = append(ids, id)
	}
	for _, id := range m.base.GetRecordIDs() {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// Size returns the number of distinct DataIDs known to this mutator.
func (m *RecordSourceMutator) Size() int { return len(m.GetRecordIDs()) }

// PublishSource field-wise merges every record in src onto the sink,
// starting from each id's copy-on-write base snapshot, and applies
// tombstones via DeleteRecord. Used to fold a normalizer's output (or an
// already-normalized source) into this transaction.
func (m *RecordSourceMutator) PublishSource(src RecordSource) {
	for _, id := range src.GetRecordIDs() {
		rec, status := src.Get(id)
		switch status {
		case StatusTombstone:
			m.DeleteRecord(id)
		case StatusPresent:
			dst := m.touch(id)
			for k, v := range rec {
				dst[k] = v
			}
		}
	}
}

// Memo caches the result of f for the lifetime of this mutator, mirroring
// the teacher's per-transaction Tx.Memo (tx.go) — useful for a handler or
// updater that wants to decode an expensive value (e.g. parsed args) once
// per run() rather than once per record it touches.
func (m *RecordSourceMutator) Memo(key string, f func() (any, error)) (any, error) {
	if m.memo == nil {
		m.memo = make(map[string]any)
	}
	if v, found := m.memo[key]; found {
		if e, ok := v.(error); ok {
			return nil, e
		}
		return v, nil
	}
	v, err := f()
	if err != nil {
		m.memo[key] = err
		return nil, err
	}
	m.memo[key] = v
	return v, nil
}

// Memo is the generic counterpart of (*RecordSourceMutator).Memo, mirroring
// the teacher's package-level Memo[T] in tx.go.
func Memo[T any](m *RecordSourceMutator, key string, f func() (T, error)) (T, error) {
	v, err := m.Memo(key, func() (any, error) { return f() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
