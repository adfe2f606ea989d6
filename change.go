package store

import "fmt"

// Op describes what kind of write Store.publish performed for one DataID,
// generalizing the teacher's per-row Op (OpPut/OpDelete) to per-record
// cache changes.
type Op int

const (
	OpNone   Op = 0
	OpPut    Op = 1
	OpMerge  Op = 2
	OpDelete Op = 3
	// OpForget records that a DataID was hard-removed from the canonical
	// source by an unpublish sentinel, rather than tombstoned.
	OpForget Op = 4
)

func (op Op) String() string {
	switch op {
	case OpNone:
		return "none"
	case OpPut:
		return "put"
	case OpMerge:
		return "merge"
	case OpDelete:
		return "delete"
	case OpForget:
		return "forget"
	default:
		return fmt.Sprintf("invalid op %d", int(op))
	}
}

// RecordChange describes one DataID's outcome from a single Store.publish
// call, exposed via Store's optional OnChange hook for diagnostics.
type RecordChange struct {
	DataID DataID
	Op     Op
}
