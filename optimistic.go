package store

import "github.com/graphkv/store/ir"

// OptimisticUpdate is the sealed sum of the three ways a caller can apply a
// speculative, revertable change to the store, per spec.md §4.5. Identity
// for the idempotency guard and for revertUpdate is the pointer itself —
// callers keep the value they passed to ApplyUpdate if they intend to
// revert it later.
type OptimisticUpdate interface {
	optimisticUpdate()
}

// SourceUpdate publishes a prebuilt RecordSource directly, running Payloads
// through the handler registry exactly as CommitPayload would. Variant (a).
type SourceUpdate struct {
	Source   RecordSource
	Payloads []HandleFieldPayload
}

func (*SourceUpdate) optimisticUpdate() {}

// StoreUpdaterUpdate runs Updater against a fresh RecordProxy overlaying the
// store's current state. Variant (b).
type StoreUpdaterUpdate struct {
	Updater func(proxy *RecordProxy)
}

func (*StoreUpdaterUpdate) optimisticUpdate() {}

// PayloadUpdate normalizes Response against Operation's normalization
// selector on application, optionally running Updater afterward with a
// SelectorProxy re-read of the just-normalized data so the updater can see
// typed selector shape rather than raw response JSON. Variant (c).
type PayloadUpdate struct {
	Operation *OperationDescriptor
	Response  map[string]any
	Updater   func(proxy *SelectorProxy, snapshot *Snapshot)
}

func (*PayloadUpdate) optimisticUpdate() {}

// ValidateOptimisticUpdate rejects malformed or unrecognized update
// variants at applyUpdate, per spec.md §7 ("unknown or malformed
// optimistic-update variants are rejected at applyUpdate").
func ValidateOptimisticUpdate(u OptimisticUpdate) error {
	switch v := u.(type) {
	case nil:
		return &OptimisticUpdateError{Msg: "nil update"}
	case *SourceUpdate:
		if v.Source == nil {
			return &OptimisticUpdateError{Msg: "SourceUpdate.Source is nil"}
		}
	case *StoreUpdaterUpdate:
		if v.Updater == nil {
			return &OptimisticUpdateError{Msg: "StoreUpdaterUpdate.Updater is nil"}
		}
	case *PayloadUpdate:
		if v.Operation == nil {
			return &OptimisticUpdateError{Msg: "PayloadUpdate.Operation is nil"}
		}
		if v.Response == nil {
			return &OptimisticUpdateError{Msg: "PayloadUpdate.Response is nil"}
		}
	default:
		return &OptimisticUpdateError{Msg: "unrecognized OptimisticUpdate variant"}
	}
	return nil
}

// normSelectorOf returns the normalization selector (selector plus
// variables) of a PayloadUpdate's operation. publishqueue.go reads
// op.NormRoot directly and does not call it.
func normSelectorOf(op *OperationDescriptor) ir.NormalizationSelector { return op.NormRoot }
