package store

import (
	"testing"

	"github.com/graphkv/store/ir"
)

func TestNormalize_ScalarAndLinkedField(t *testing.T) {
	sel := ir.NormalizationSelector{
		DataID: "1",
		Selections: ir.NormalizationSelection{
			&ir.NormScalarField{FieldName: "name"},
			&ir.NormLinkedField{
				FieldName: "bestFriend",
				Selections: ir.NormalizationSelection{
					&ir.NormScalarField{FieldName: "name"},
				},
			},
		},
	}
	response := map[string]any{
		"name": "Ann",
		"bestFriend": map[string]any{
			"id":   "2",
			"name": "Bob",
		},
	}

	sink := NewRecordSource()
	payloads, err := Normalize(sink, sel, response, NormalizeOptions{})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(payloads) != 0 {
		t.Fatalf("expected no handle payloads, got %d", len(payloads))
	}

	rec, status := sink.Get("1")
	if status != StatusPresent {
		t.Fatalf("root record missing")
	}
	if rec["name"] != "Ann" {
		t.Fatalf("name = %v", rec["name"])
	}
	ref, ok := rec["bestFriend"].(Ref)
	if !ok || ref.ID != DataID("2") {
		t.Fatalf("bestFriend = %v", rec["bestFriend"])
	}

	child, status := sink.Get("2")
	if status != StatusPresent || child["name"] != "Bob" {
		t.Fatalf("child record = %v / %v", child, status)
	}
}

func TestNormalize_PluralLinkedFieldWithSyntheticIDs(t *testing.T) {
	sel := ir.NormalizationSelector{
		DataID: "1",
		Selections: ir.NormalizationSelection{
			&ir.NormLinkedField{
				FieldName: "friends",
				Plural:    true,
				Selections: ir.NormalizationSelection{
					&ir.NormScalarField{FieldName: "name"},
				},
			},
		},
	}
	response := map[string]any{
		"friends": []any{
			map[string]any{"name": "Carl"},
			nil,
			map[string]any{"name": "Dee"},
		},
	}

	sink := NewRecordSource()
	if _, err := Normalize(sink, sel, response, NormalizeOptions{}); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	rec, _ := sink.Get("1")
	refs, ok := rec["friends"].(Refs)
	if !ok || len(refs.IDs) != 3 {
		t.Fatalf("friends = %v", rec["friends"])
	}
	if refs.IDs[1] != nil {
		t.Fatalf("expected a null hole at index 1")
	}
	first, _ := sink.Get(*refs.IDs[0])
	if first["name"] != "Carl" {
		t.Fatalf("first friend = %v", first)
	}
	if *refs.IDs[0] != ClientIDForPluralItem("1", "friends", 0) {
		t.Fatalf("unexpected synthesized id: %v", *refs.IDs[0])
	}
}

func TestNormalize_MissingKeyLeavesStorageKeyAbsent(t *testing.T) {
	sel := ir.NormalizationSelector{
		DataID: "1",
		Selections: ir.NormalizationSelection{
			&ir.NormScalarField{FieldName: "name"},
		},
	}
	sink := NewRecordSource()
	if _, err := Normalize(sink, sel, map[string]any{}, NormalizeOptions{}); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	rec, _ := sink.Get("1")
	if _, present := rec["name"]; present {
		t.Fatalf("expected name to be absent, not an explicit null")
	}
}

func TestNormalize_ExplicitNullWritesNull(t *testing.T) {
	sel := ir.NormalizationSelector{
		DataID: "1",
		Selections: ir.NormalizationSelection{
			&ir.NormScalarField{FieldName: "name"},
		},
	}
	sink := NewRecordSource()
	if _, err := Normalize(sink, sel, map[string]any{"name": nil}, NormalizeOptions{}); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	rec, _ := sink.Get("1")
	v, present := rec["name"]
	if !present || v != nil {
		t.Fatalf("expected explicit null, got present=%v value=%v", present, v)
	}
}

func TestNormalize_AbstractNarrowRequiresTypename(t *testing.T) {
	sel := ir.NormalizationSelector{
		DataID: "1",
		Selections: ir.NormalizationSelection{
			&ir.NormInlineFragment{
				Type:     "Admin",
				Abstract: true,
				Selections: ir.NormalizationSelection{
					&ir.NormScalarField{FieldName: "permissions"},
				},
			},
		},
	}
	sink := NewRecordSource()
	_, err := Normalize(sink, sel, map[string]any{"permissions": []any{"all"}}, NormalizeOptions{})
	if err == nil {
		t.Fatalf("expected an error for a missing __typename on an abstract narrow")
	}
	var nerr *NormalizationError
	if !asNormalizationError(err, &nerr) {
		t.Fatalf("expected a *NormalizationError, got %T: %v", err, err)
	}
}

func asNormalizationError(err error, target **NormalizationError) bool {
	if ne, ok := err.(*NormalizationError); ok {
		*target = ne
		return true
	}
	return false
}

func TestNormalize_ClientExtensionFieldEmitsHandlePayload(t *testing.T) {
	sel := ir.NormalizationSelector{
		DataID: "1",
		Selections: ir.NormalizationSelection{
			&ir.NormClientExtensionField{
				FieldName: "comments",
				Handle:    "connection",
				Key:       "feed",
			},
		},
	}
	response := map[string]any{
		"comments": map[string]any{"edges": []any{}},
	}
	sink := NewRecordSource()
	payloads, err := Normalize(sink, sel, response, NormalizeOptions{})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("expected one handle payload, got %d", len(payloads))
	}
	p := payloads[0]
	if p.Handle != "connection" || p.DataID != DataID("1") {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.HandleKey != "__comments_connection_feed" {
		t.Fatalf("HandleKey = %q", p.HandleKey)
	}
}

func TestNormalize_CustomGetDataID(t *testing.T) {
	sel := ir.NormalizationSelector{
		DataID: "1",
		Selections: ir.NormalizationSelection{
			&ir.NormLinkedField{
				FieldName: "bestFriend",
				Selections: ir.NormalizationSelection{
					&ir.NormScalarField{FieldName: "name"},
				},
			},
		},
	}
	response := map[string]any{
		"bestFriend": map[string]any{"name": "Eve"},
	}
	sink := NewRecordSource()
	opts := NormalizeOptions{
		GetDataID: func(response map[string]any, parentType, fieldName string, args map[string]any) (DataID, bool) {
			return DataID("custom:" + fieldName), true
		},
	}
	if _, err := Normalize(sink, sel, response, opts); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	rec, _ := sink.Get("1")
	ref, ok := rec["bestFriend"].(Ref)
	if !ok || ref.ID != DataID("custom:bestFriend") {
		t.Fatalf("bestFriend = %v", rec["bestFriend"])
	}
}

func TestNormalize_DeferredFragmentMarksOutstandingBoundary(t *testing.T) {
	sel := ir.NormalizationSelector{
		DataID: "1",
		Selections: ir.NormalizationSelection{
			&ir.NormScalarField{FieldName: "name"},
			&ir.NormDeferredFragment{
				Label: "UserProfile$defer",
				Selections: ir.NormalizationSelection{
					&ir.NormScalarField{FieldName: "bio"},
				},
			},
		},
	}
	response := map[string]any{"name": "Ann"}

	sink := NewRecordSource()
	if _, err := Normalize(sink, sel, response, NormalizeOptions{}); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	rec, _ := sink.Get("1")
	if v, _ := rec[deferredMarkerKey("UserProfile$defer")].(bool); !v {
		t.Fatalf("expected an outstanding @defer marker, got %v", rec)
	}
	if _, has := rec["bio"]; has {
		t.Fatalf("bio must not be populated until the follow-up payload arrives")
	}
}

func TestCompleteDeferredFragment_FillsInBranchAndCanBeFoundByLabel(t *testing.T) {
	sel := ir.NormalizationSelector{
		DataID: "1",
		Selections: ir.NormalizationSelection{
			&ir.NormScalarField{FieldName: "name"},
			&ir.NormDeferredFragment{
				Label: "UserProfile$defer",
				Selections: ir.NormalizationSelection{
					&ir.NormScalarField{FieldName: "bio"},
				},
			},
		},
	}
	base := NewRecordSource()
	if _, err := Normalize(base, sel, map[string]any{"name": "Ann"}, NormalizeOptions{}); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	sink := NewRecordSource()
	dp := DeferredPayload{Label: "UserProfile$defer", Payload: map[string]any{"bio": "Likes Go"}}
	_, ok, err := CompleteDeferredFragment(sink, base, sel, dp, NormalizeOptions{})
	if err != nil {
		t.Fatalf("CompleteDeferredFragment() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected the outstanding boundary to be found")
	}
	rec, _ := sink.Get("1")
	if rec["bio"] != "Likes Go" {
		t.Fatalf("bio = %v, want filled in from the follow-up payload", rec["bio"])
	}
}

func TestCompleteDeferredFragment_UnknownLabelIsNotOK(t *testing.T) {
	sel := ir.NormalizationSelector{
		DataID: "1",
		Selections: ir.NormalizationSelection{
			&ir.NormDeferredFragment{
				Label:      "UserProfile$defer",
				Selections: ir.NormalizationSelection{&ir.NormScalarField{FieldName: "bio"}},
			},
		},
	}
	base := NewRecordSource()
	sink := NewRecordSource()
	dp := DeferredPayload{Label: "NoSuchLabel", Payload: map[string]any{"bio": "x"}}
	_, ok, err := CompleteDeferredFragment(sink, base, sel, dp, NormalizeOptions{})
	if err != nil {
		t.Fatalf("CompleteDeferredFragment() error = %v", err)
	}
	if ok {
		t.Fatalf("expected ok = false for a label the selector never opened")
	}
}
