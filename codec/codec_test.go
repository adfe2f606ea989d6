package codec

import (
	"testing"

	"github.com/graphkv/store"
)

func buildSource() store.MutableRecordSource {
	src := store.NewRecordSource()
	src.Set("1", store.Record{
		store.ReservedID:        store.DataID("1"),
		store.ReservedTypename:  "User",
		"name":                  "Ann",
		"bestFriend":            store.Ref{ID: "2"},
	})
	two := store.DataID("2")
	src.Set("3", store.Record{
		store.ReservedID: store.DataID("3"),
		"friends":        store.Refs{IDs: []*store.DataID{&two, nil}},
	})
	src.Delete("4")
	return src
}

func TestCodec_JSONRoundTrip(t *testing.T) {
	src := buildSource()
	data, err := EncodeJSON(src)
	if err != nil {
		t.Fatalf("EncodeJSON() error = %v", err)
	}
	decoded, err := DecodeJSON(data)
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	assertRoundTrip(t, decoded)
}

func TestCodec_MsgpackRoundTrip(t *testing.T) {
	src := buildSource()
	data, err := EncodeMsgpack(src)
	if err != nil {
		t.Fatalf("EncodeMsgpack() error = %v", err)
	}
	decoded, err := DecodeMsgpack(data)
	if err != nil {
		t.Fatalf("DecodeMsgpack() error = %v", err)
	}
	assertRoundTrip(t, decoded)
}

func assertRoundTrip(t *testing.T, decoded store.MutableRecordSource) {
	t.Helper()
	rec, status := decoded.Get("1")
	if status != store.StatusPresent || rec["name"] != "Ann" {
		t.Fatalf("record 1 = %v / %v", rec, status)
	}
	ref, ok := rec["bestFriend"].(store.Ref)
	if !ok || ref.ID != store.DataID("2") {
		t.Fatalf("bestFriend = %v", rec["bestFriend"])
	}

	rec3, status3 := decoded.Get("3")
	if status3 != store.StatusPresent {
		t.Fatalf("record 3 status = %v", status3)
	}
	refs, ok := rec3["friends"].(store.Refs)
	if !ok || len(refs.IDs) != 2 || refs.IDs[1] != nil || *refs.IDs[0] != store.DataID("2") {
		t.Fatalf("friends = %v", rec3["friends"])
	}

	if _, status4 := decoded.Get("4"); status4 != store.StatusTombstone {
		t.Fatalf("expected record 4 to round-trip as a tombstone, got %v", status4)
	}
}
