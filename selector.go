package store

import "github.com/graphkv/store/ir"

// OperationDescriptor bundles a compiled request identity with concrete
// variables and the root reader/normalization selectors derived from it.
// Its identity is the pair (RequestID, Variables); no equality method is
// defined, and the queue and reader pass descriptors around by pointer.
type OperationDescriptor struct {
	RequestID string // compiled request identity
	Variables ir.Variables
	Root      ir.ReaderSelector
	NormRoot  ir.NormalizationSelector
}

// Snapshot is the result of a Reader.Read: a freshly allocated tree, a
// missing-data flag, and the set of DataIDs touched while producing it.
type Snapshot struct {
	Selector      ir.ReaderSelector
	Data          any // nil (tombstoned or absent root), or a map[string]any tree; untyped per spec.md §3 ("data")
	IsMissingData bool
	SeenRecords   []DataID
	Owner         *OperationDescriptor
}
