package store

import "github.com/graphkv/store/ir"

// RecordProxy is the user-facing handle to a RecordSourceMutator exposed to
// store updaters and handlers, per spec.md §4.1.
type RecordProxy struct {
	mutator  *RecordSourceMutator
	handlers HandlerRegistry
	getID    GetDataIDFunc
	loader   OperationLoader
}

// NewProxy wraps mutator with the handler registry and GetDataID/loader
// options needed to run CommitPayload.
func NewProxy(mutator *RecordSourceMutator, handlers HandlerRegistry, getID GetDataIDFunc, loader OperationLoader) *RecordProxy {
	return &RecordProxy{mutator: mutator, handlers: handlers, getID: getID, loader: loader}
}

func (p *RecordProxy) Mutator() *RecordSourceMutator { return p.mutator }

func (p *RecordProxy) CreateRecord(id DataID, typename string) { p.mutator.CreateRecord(id, typename) }
func (p *RecordProxy) DeleteRecord(id DataID)                  { p.mutator.DeleteRecord(id) }

func (p *RecordProxy) Get(id DataID, key string) (any, bool)      { return p.mutator.GetValue(id, key) }
func (p *RecordProxy) Set(id DataID, key string, value any)       { p.mutator.SetValue(id, key, value) }
func (p *RecordProxy) DeleteValue(id DataID, key string)          { p.mutator.DeleteValue(id, key) }
func (p *RecordProxy) GetLinked(id DataID, key string) (DataID, bool) {
	return p.mutator.GetLinked(id, key)
}
func (p *RecordProxy) SetLinked(id DataID, key string, target DataID) {
	p.mutator.SetLinked(id, key, target)
}
func (p *RecordProxy) GetLinkedPlural(id DataID, key string) ([]*DataID, bool) {
	return p.mutator.GetLinkedPlural(id, key)
}
func (p *RecordProxy) SetLinkedPlural(id DataID, key string, targets []*DataID) {
	p.mutator.SetLinkedPlural(id, key, targets)
}

// PublishSource merges src field-wise into the underlying transaction.
func (p *RecordProxy) PublishSource(src RecordSource) { p.mutator.PublishSource(src) }

// CommitPayload normalizes response against sel into a fresh sink, folds
// the result into the underlying transaction, and runs any handle field
// payloads through the handler registry (fail fast on an unknown handle).
// It returns the handle payloads it processed, and the freshly-normalized
// sink (so a caller that also needs re-read selector data, e.g. an
// optimistic update's updater, can Reader.Read the sink directly instead of
// normalizing twice — see SPEC_FULL.md's Open Question #2 decision).
func (p *RecordProxy) CommitPayload(sel ir.NormalizationSelector, response map[string]any) (MutableRecordSource, []HandleFieldPayload, error) {
	sink := NewRecordSource()
	payloads, err := Normalize(sink, sel, response, NormalizeOptions{GetDataID: p.getID, Loader: p.loader})
	if err != nil {
		return nil, nil, err
	}
	p.mutator.PublishSource(sink)
	if err := ApplyHandlers(p, payloads, p.handlers); err != nil {
		return nil, nil, err
	}
	return sink, payloads, nil
}

// CommitDeferredPayload completes the outstanding @defer/@stream boundary
// named by dp.Label against sel — the same normalization selector whose
// initial CommitPayload call opened it — folding the follow-up's fields
// into the underlying transaction and clearing the marker. ok is false if
// no matching outstanding boundary is found (e.g. a duplicate or stale
// follow-up), in which case the transaction is left untouched.
func (p *RecordProxy) CommitDeferredPayload(sel ir.NormalizationSelector, dp DeferredPayload) (ok bool, err error) {
	sink := NewRecordSource()
	payloads, ok, err := CompleteDeferredFragment(sink, p.mutator, sel, dp, NormalizeOptions{GetDataID: p.getID, Loader: p.loader})
	if err != nil || !ok {
		return ok, err
	}
	p.mutator.PublishSource(sink)
	if id, found := findMarkedRecord(p.mutator, deferredMarkerKey(dp.Label)); found {
		p.mutator.DeleteValue(id, deferredMarkerKey(dp.Label))
	}
	if err := ApplyHandlers(p, payloads, p.handlers); err != nil {
		return true, err
	}
	return true, nil
}

// SelectorProxy binds a RecordProxy to a specific reader selector, giving a
// store updater typed-feeling helpers bound to that selector's root, per
// spec.md §4.1 ("a selector proxy additionally exposes typed helpers bound
// to a specific selector").
type SelectorProxy struct {
	*RecordProxy
	Selector ir.ReaderSelector
}

func NewSelectorProxy(proxy *RecordProxy, sel ir.ReaderSelector) *SelectorProxy {
	return &SelectorProxy{RecordProxy: proxy, Selector: sel}
}

// Root returns the DataID this selector proxy's selection tree is rooted at.
func (sp *SelectorProxy) Root() DataID { return DataID(sp.Selector.DataID) }

// Read re-reads the selector against the underlying mutator, giving the
// updater the same snapshot shape a container would see.
func (sp *SelectorProxy) Read(owner *OperationDescriptor) *Snapshot {
	return NewReader(sp.mutator).Read(sp.Selector, owner)
}
