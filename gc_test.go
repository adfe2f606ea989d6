package store

import (
	"testing"

	"github.com/graphkv/store/ir"
)

func TestMarkReferences_FollowsLinkedFields(t *testing.T) {
	src := NewRecordSource()
	src.Set("1", Record{ReservedID: DataID("1"), "bestFriend": Ref{ID: "2"}})
	src.Set("2", Record{ReservedID: DataID("2"), "name": "Bob"})
	src.Set("3", Record{ReservedID: DataID("3"), "name": "Unreachable"})

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
	marked := newIDSet()
	MarkReferences(src, sel, nil, marked)
	if !marked.has("1") || !marked.has("2") {
		t.Fatalf("expected 1 and 2 to be marked, got %v", marked)
	}
	if marked.has("3") {
		t.Fatalf("record 3 is unreachable and must not be marked")
	}
}

func TestMarkReferences_PluralAndMatchBranch(t *testing.T) {
	src := NewRecordSource()
	src.Set("1", Record{ReservedID: DataID("1"), "banner": Ref{ID: "2"}})
	src.Set("2", Record{ReservedID: DataID("2"), ReservedTypename: "ImageBanner", "__module_operation_feed": "ImageOp", "url": "x.png"})

	sel := ir.NormalizationSelector{
		DataID: "1",
		Selections: ir.NormalizationSelection{
			&ir.NormMatchField{
				FieldName:         "banner",
				ParentFragmentKey: "feed",
				Branches: map[string]ir.ModuleImport{
					"ImageOp": {
						Selections: ir.NormalizationSelection{
							&ir.NormScalarField{FieldName: "url"},
						},
					},
				},
			},
		},
	}
	marked := newIDSet()
	MarkReferences(src, sel, nil, marked)
	if !marked.has("2") {
		t.Fatalf("expected the @match branch's target to be marked")
	}
}

func TestCheckData_ReportsCompleteness(t *testing.T) {
	src := NewRecordSource()
	src.Set("1", Record{ReservedID: DataID("1"), "name": "Ann", "bestFriend": Ref{ID: "2"}})
	src.Set("2", Record{ReservedID: DataID("2")})

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
	if CheckData(src, sel) {
		t.Fatalf("expected incomplete data: bestFriend.name is missing")
	}

	src.Set("2", Record{ReservedID: DataID("2"), "name": "Bob"})
	if !CheckData(src, sel) {
		t.Fatalf("expected complete data once bestFriend.name is present")
	}
}

func TestCheckData_AbsentRootIsIncomplete(t *testing.T) {
	src := NewRecordSource()
	sel := ir.NormalizationSelector{DataID: "missing"}
	if CheckData(src, sel) {
		t.Fatalf("expected an absent root to be incomplete")
	}
}
