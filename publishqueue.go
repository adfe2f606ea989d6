package store

import (
	"log/slog"
	"runtime/debug"
)

// pendingEntry is the sealed sum of the three kinds of authoritative work a
// PublishQueue can have queued: a not-yet-normalized payload, an
// already-normalized source plus the handle payloads it still owes, or an
// incremental @defer/@stream follow-up payload.
type pendingEntry interface {
	pendingEntry()
}

type pendingPayload struct {
	op       *OperationDescriptor
	response map[string]any
	updater  func(*SelectorProxy, *Snapshot)
}

func (*pendingPayload) pendingEntry() {}

type pendingSource struct {
	source   RecordSource
	payloads []HandleFieldPayload
}

func (*pendingSource) pendingEntry() {}

type pendingDeferred struct {
	op *OperationDescriptor
	dp DeferredPayload
}

func (*pendingDeferred) pendingEntry() {}

// PublishQueue is the transactional coordinator described in spec.md §4.6:
// it batches authoritative payloads, client-only updaters and optimistic
// updates, and materializes them onto a Store in one run() protocol that
// also handles optimistic undo and rebase.
type PublishQueue struct {
	store    *Store
	handlers HandlerRegistry
	getID    GetDataIDFunc
	loader   OperationLoader
	log      *slog.Logger

	backup MutableRecordSource

	pendingData              []pendingEntry
	pendingUpdaters          []func(*RecordProxy)
	pendingOptimisticUpdates []OptimisticUpdate
	appliedOptimisticUpdates []OptimisticUpdate
	pendingBackupRebase      bool

	gcHold Disposable

	running     bool
	runningFrom string
}

// NewPublishQueue returns a PublishQueue coordinating writes onto store.
func NewPublishQueue(s *Store, handlers HandlerRegistry, getID GetDataIDFunc, loader OperationLoader, log *slog.Logger) *PublishQueue {
	if log == nil {
		log = slog.Default()
	}
	return &PublishQueue{
		store:    s,
		handlers: handlers,
		getID:    getID,
		loader:   loader,
		log:      log,
		backup:   NewRecordSource(),
	}
}

// ApplyUpdate validates and enqueues u to be applied on the next run().
// Duplicate application of an update already pending or applied is
// rejected, per spec.md §4.6.
func (q *PublishQueue) ApplyUpdate(u OptimisticUpdate) error {
	if err := ValidateOptimisticUpdate(u); err != nil {
		return err
	}
	for _, e := range q.pendingOptimisticUpdates {
		if e == u {
			return &OptimisticUpdateError{Msg: "update already pending"}
		}
	}
	for _, e := range q.appliedOptimisticUpdates {
		if e == u {
			return &OptimisticUpdateError{Msg: "update already applied"}
		}
	}
	q.pendingOptimisticUpdates = append(q.pendingOptimisticUpdates, u)
	return nil
}

// RevertUpdate removes u. If it was only pending, it is simply dropped; if
// it was already applied, this marks pendingBackupRebase so the next run()
// undoes and rebases without it.
func (q *PublishQueue) RevertUpdate(u OptimisticUpdate) {
	for i, e := range q.pendingOptimisticUpdates {
		if e == u {
			q.pendingOptimisticUpdates = append(q.pendingOptimisticUpdates[:i], q.pendingOptimisticUpdates[i+1:]...)
			return
		}
	}
	for i, e := range q.appliedOptimisticUpdates {
		if e == u {
			q.appliedOptimisticUpdates = append(q.appliedOptimisticUpdates[:i], q.appliedOptimisticUpdates[i+1:]...)
			q.pendingBackupRebase = true
			return
		}
	}
}

// RevertAll drops every pending and applied optimistic update and marks
// pendingBackupRebase so the next run() undoes all of their writes.
func (q *PublishQueue) RevertAll() {
	q.pendingOptimisticUpdates = nil
	q.appliedOptimisticUpdates = nil
	q.pendingBackupRebase = true
}

// CommitPayload enqueues a not-yet-normalized response to be applied on
// the next run(). updater, if non-nil, runs after normalization with a
// selector proxy bound to op's reader selector and a fresh re-read of the
// just-normalized data.
func (q *PublishQueue) CommitPayload(op *OperationDescriptor, response map[string]any, updater func(*SelectorProxy, *Snapshot)) {
	q.pendingData = append(q.pendingData, &pendingPayload{op: op, response: response, updater: updater})
}

// CommitUpdate enqueues a client-only updater closure to run on the next
// run(), sharing a single sink with every other pending updater.
func (q *PublishQueue) CommitUpdate(updater func(proxy *RecordProxy)) {
	q.pendingUpdaters = append(q.pendingUpdaters, updater)
}

// CommitSource enqueues an already-normalized source (and the handle
// payloads it still owes) to be published directly on the next run().
func (q *PublishQueue) CommitSource(source RecordSource, payloads []HandleFieldPayload) {
	q.pendingData = append(q.pendingData, &pendingSource{source: source, payloads: payloads})
}

// CommitDeferredPayload enqueues an incremental follow-up payload to be
// applied on the next run(), completing the @defer/@stream boundary that
// op's initial CommitPayload left outstanding under label (spec.md §4.2
// item 8). If no such boundary is found when run() processes it (e.g. a
// stale or duplicate follow-up), it is dropped and a warning is logged.
func (q *PublishQueue) CommitDeferredPayload(op *OperationDescriptor, label string, payload map[string]any) {
	q.pendingData = append(q.pendingData, &pendingDeferred{op: op, dp: DeferredPayload{Label: label, Payload: payload}})
}

// DescribeReentrantRun reports whether a run() is currently executing, for
// diagnostics when a ReentrantRunError is raised from within a
// subscription callback.
func (q *PublishQueue) DescribeReentrantRun() string {
	if !q.running {
		return "NOT RUNNING"
	}
	return "RUNNING:\n" + q.runningFrom
}

// Run executes the full run() protocol of spec.md §4.6 and returns the
// owners of every subscription that fired. Calling Run from inside a
// subscription callback triggered by a Run already in progress is a
// programmer error (ReentrantRunError).
func (q *PublishQueue) Run() ([]*OperationDescriptor, error) {
	if q.running {
		return nil, &ReentrantRunError{Detail: "run() called while another run() is still on the stack"}
	}
	q.running = true
	q.runningFrom = string(debug.Stack())
	defer func() {
		q.running = false
		q.runningFrom = ""
	}()

	// Authoritative data and client updaters change the base the applied
	// optimistic updates sit on, so they also trigger undo and rebase.
	if len(q.pendingData) > 0 || len(q.pendingUpdaters) > 0 {
		q.pendingBackupRebase = true
	}

	// 1. Undo.
	if q.pendingBackupRebase && q.backup.Size() > 0 {
		q.store.Publish(q.backup)
		q.backup = NewRecordSource()
	}

	// 2. Apply authoritative payloads/sources.
	for _, entry := range q.pendingData {
		switch e := entry.(type) {
		case *pendingPayload:
			if err := q.applyPayload(e); err != nil {
				return nil, err
			}
		case *pendingSource:
			q.store.Publish(e.source)
			if len(e.payloads) > 0 {
				proxy := q.newProxy(NewRecordSource(), nil)
				if err := ApplyHandlers(proxy, e.payloads, q.handlers); err != nil {
					return nil, err
				}
				q.store.Publish(proxy.Mutator().Sink())
			}
		case *pendingDeferred:
			if err := q.applyDeferred(e); err != nil {
				return nil, err
			}
		}
	}
	q.pendingData = nil

	// 3. Apply pending client updaters.
	if len(q.pendingUpdaters) > 0 {
		sink := NewRecordSource()
		proxy := q.newProxy(sink, nil)
		for _, u := range q.pendingUpdaters {
			q.safeCall(func() { u(proxy) })
		}
		q.store.Publish(sink)
		q.pendingUpdaters = nil
	}

	// 4. Reapply optimistic updates (rebase).
	if (q.pendingBackupRebase && len(q.appliedOptimisticUpdates) > 0) || len(q.pendingOptimisticUpdates) > 0 {
		sink := NewRecordSource()
		backup := NewRecordSource()
		proxy := q.newProxy(sink, backup)

		for _, u := range q.appliedOptimisticUpdates {
			q.applyOptimistic(proxy, u)
		}
		for _, u := range q.pendingOptimisticUpdates {
			q.applyOptimistic(proxy, u)
			q.appliedOptimisticUpdates = append(q.appliedOptimisticUpdates, u)
		}
		q.pendingOptimisticUpdates = nil

		q.store.Publish(sink)
		q.backup = backup
	}

	// 5. Finalize.
	q.pendingBackupRebase = false
	if len(q.appliedOptimisticUpdates) > 0 {
		if q.gcHold == nil {
			q.gcHold = q.store.HoldGC()
		}
	} else if q.gcHold != nil {
		q.gcHold.Dispose()
		q.gcHold = nil
	}

	// 6. Notify.
	return q.store.Notify(), nil
}

func (q *PublishQueue) newProxy(sink, backup MutableRecordSource) *RecordProxy {
	mutator := NewMutator(q.store.Source(), sink, backup)
	return NewProxy(mutator, q.handlers, q.getID, q.loader)
}

func (q *PublishQueue) applyPayload(e *pendingPayload) error {
	proxy := q.newProxy(NewRecordSource(), nil)
	sink, _, err := proxy.CommitPayload(e.op.NormRoot, e.response)
	if err != nil {
		return err
	}
	if e.updater != nil {
		sp := NewSelectorProxy(proxy, e.op.Root)
		snap := NewReader(sink).Read(e.op.Root, e.op)
		q.safeCall(func() { e.updater(sp, snap) })
	}
	q.store.Publish(proxy.Mutator().Sink())
	return nil
}

// applyDeferred folds one incremental follow-up payload into the store,
// completing whatever @defer/@stream boundary it names.
func (q *PublishQueue) applyDeferred(e *pendingDeferred) error {
	markerKey := deferredMarkerKey(e.dp.Label)
	markedID, _ := findMarkedRecord(q.store.Source(), markerKey)
	proxy := q.newProxy(NewRecordSource(), nil)
	ok, err := proxy.CommitDeferredPayload(e.op.NormRoot, e.dp)
	if err != nil {
		return err
	}
	if !ok {
		q.log.Warn("no outstanding @defer/@stream boundary for label", "label", e.dp.Label)
		return nil
	}
	q.store.Publish(proxy.Mutator().Sink())
	// Publish merges field-wise and never drops a key, so the marker the
	// transaction cleared is removed from the canonical record here.
	if rec, status := q.store.source.Get(markedID); status == StatusPresent {
		if _, has := rec[markerKey]; has {
			cleared := rec.Clone()
			delete(cleared, markerKey)
			q.store.mut.Set(markedID, cleared)
			q.store.stampFrozen(markedID, cleared)
			q.store.updatedIDs.add(markedID)
			q.store.emitChange(markedID, OpMerge)
		}
	}
	return nil
}

// applyOptimistic dispatches one OptimisticUpdate against proxy. Errors
// and panics from user code are caught and logged; per spec.md §7 they
// must not abort the rebase.
func (q *PublishQueue) applyOptimistic(proxy *RecordProxy, u OptimisticUpdate) {
	switch v := u.(type) {
	case *PayloadUpdate:
		q.safeCall(func() {
			sink, _, err := proxy.CommitPayload(v.Operation.NormRoot, v.Response)
			if err != nil {
				q.log.Error("optimistic commitPayload failed", "error", err)
				return
			}
			if v.Updater != nil {
				sp := NewSelectorProxy(proxy, v.Operation.Root)
				snap := NewReader(sink).Read(v.Operation.Root, v.Operation)
				v.Updater(sp, snap)
			}
		})

	case *StoreUpdaterUpdate:
		q.safeCall(func() { v.Updater(proxy) })

	case *SourceUpdate:
		q.safeCall(func() {
			proxy.PublishSource(v.Source)
			if err := ApplyHandlers(proxy, v.Payloads, q.handlers); err != nil {
				q.log.Error("optimistic source update missing handler", "error", err)
			}
		})
	}
}

// safeCall runs f, recovering and logging any panic so one broken updater
// cannot abort the surrounding run().
func (q *PublishQueue) safeCall(f func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("panic in store updater", "panic", panicked{reason: r, stack: string(debug.Stack())}.Error())
		}
	}()
	f()
}
