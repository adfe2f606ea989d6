package store

import "testing"

func TestOp_String(t *testing.T) {
	if OpPut.String() != "put" || OpMerge.String() != "merge" || OpDelete.String() != "delete" || OpNone.String() != "none" {
		t.Fatalf("unexpected Op.String values")
	}
	if got := Op(999).String(); got == "put" || got == "merge" || got == "delete" || got == "none" {
		t.Fatalf("unexpected Op(999).String() = %q", got)
	}
}

func TestRecordChange(t *testing.T) {
	c := RecordChange{DataID: "1", Op: OpPut}
	if c.DataID != "1" || c.Op != OpPut {
		t.Fatalf("RecordChange fields not set as expected: %+v", c)
	}
}
