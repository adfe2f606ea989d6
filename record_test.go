package store

import "testing"

func TestRecord_IDAndTypename(t *testing.T) {
	rec := Record{ReservedID: DataID("1"), ReservedTypename: "User", "name": "Ann"}
	if rec.ID() != DataID("1") {
		t.Fatalf("ID() = %v", rec.ID())
	}
	if rec.Typename() != "User" {
		t.Fatalf("Typename() = %v", rec.Typename())
	}
}

func TestRecord_Clone(t *testing.T) {
	rec := Record{ReservedID: DataID("1"), "name": "Ann"}
	clone := rec.Clone()
	clone["name"] = "Bob"
	if rec["name"] != "Ann" {
		t.Fatalf("Clone mutated original: %v", rec["name"])
	}
	if clone.ID() != DataID("1") {
		t.Fatalf("clone lost id")
	}
}

func TestRecord_Equal(t *testing.T) {
	a := Record{ReservedID: DataID("1"), "name": "Ann", "best": Ref{ID: "2"}}
	b := Record{ReservedID: DataID("1"), "name": "Ann", "best": Ref{ID: "2"}}
	if !a.Equal(b) {
		t.Fatalf("expected equal records")
	}
	c := b.Clone()
	c["best"] = Ref{ID: "3"}
	if a.Equal(c) {
		t.Fatalf("expected records with different refs to be unequal")
	}
	d := b.Clone()
	delete(d, "name")
	if a.Equal(d) {
		t.Fatalf("expected records with different key sets to be unequal")
	}
}

func TestRecord_EqualRefs(t *testing.T) {
	id1, id2 := DataID("1"), DataID("2")
	a := Record{"friends": Refs{IDs: []*DataID{&id1, nil, &id2}}}
	b := Record{"friends": Refs{IDs: []*DataID{&id1, nil, &id2}}}
	if !a.Equal(b) {
		t.Fatalf("expected equal Refs records")
	}
	id3 := DataID("3")
	c := Record{"friends": Refs{IDs: []*DataID{&id1, nil, &id3}}}
	if a.Equal(c) {
		t.Fatalf("expected different Refs to be unequal")
	}
}

func TestMemRecordSource_StatusTransitions(t *testing.T) {
	src := NewRecordSource()
	if _, status := src.Get("1"); status != StatusAbsent {
		t.Fatalf("expected absent, got %v", status)
	}
	src.Set("1", Record{ReservedID: DataID("1")})
	if _, status := src.Get("1"); status != StatusPresent {
		t.Fatalf("expected present, got %v", status)
	}
	src.Delete("1")
	if _, status := src.Get("1"); status != StatusTombstone {
		t.Fatalf("expected tombstone, got %v", status)
	}
	src.Unpublish("1")
	if _, status := src.Get("1"); status != StatusUnpublish {
		t.Fatalf("expected unpublish, got %v", status)
	}
	src.Remove("1")
	if _, status := src.Get("1"); status != StatusAbsent {
		t.Fatalf("expected absent after Remove, got %v", status)
	}
}

func TestMemRecordSource_Clear(t *testing.T) {
	src := NewRecordSource()
	src.Set("1", Record{ReservedID: DataID("1")})
	src.Set("2", Record{ReservedID: DataID("2")})
	if src.Size() != 2 {
		t.Fatalf("Size() = %d", src.Size())
	}
	src.Clear()
	if src.Size() != 0 {
		t.Fatalf("Size() after Clear = %d", src.Size())
	}
}
