// Package storetest provides small test fixtures for the store package:
// a counting GC scheduler and record/source builders, in the spirit of
// the teacher's journal/journaltest helper package.
package storetest

import (
	"reflect"
	"testing"

	"github.com/graphkv/store"
)

// Scheduler is a GCScheduler that runs its thunk synchronously and counts
// the calls: Scheduled counts Schedule calls and Ran counts thunks run.
// Every thunk runs at once, so the two are always equal; GC coalescing
// shows up as a Scheduled count lower than the number of GC triggers.
type Scheduler struct {
	Scheduled int
	Ran       int
}

func (s *Scheduler) Schedule(fn func()) {
	s.Scheduled++
	s.Ran++
	fn()
}

// Rec builds a Record with the given id, typename and field values.
func Rec(id store.DataID, typename string, fields map[string]any) store.Record {
	rec := store.Record{store.ReservedID: id}
	if typename != "" {
		rec[store.ReservedTypename] = typename
	}
	for k, v := range fields {
		rec[k] = v
	}
	return rec
}

// Source builds a MutableRecordSource preloaded with recs.
func Source(recs ...store.Record) store.MutableRecordSource {
	src := store.NewRecordSource()
	for _, rec := range recs {
		src.Set(rec.ID(), rec)
	}
	return src
}

// RefTo is a terser constructor for store.Ref, for test fixtures.
func RefTo(id store.DataID) store.Ref { return store.Ref{ID: id} }

// RefsTo is a terser constructor for store.Refs, for test fixtures. Every
// position holds a reference; it never produces a null hole.
func RefsTo(ids ...store.DataID) store.Refs {
	out := make([]*store.DataID, len(ids))
	for i := range ids {
		id := ids[i]
		out[i] = &id
	}
	return store.Refs{IDs: out}
}

// Eq fails the test with a readable diff if got != want.
func Eq(t testing.TB, got, want any, msg string) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("%s:\n  got:  %#v\n  want: %#v", msg, got, want)
	}
}
