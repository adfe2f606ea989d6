package store

import (
	"testing"

	"github.com/graphkv/store/ir"
)

func descriptorFor(id string) *OperationDescriptor {
	return &OperationDescriptor{
		RequestID: "Q:" + id,
		NormRoot: ir.NormalizationSelector{
			DataID: id,
			Selections: ir.NormalizationSelection{
				&ir.NormScalarField{FieldName: "name"},
			},
		},
		Root: ir.ReaderSelector{
			DataID: id,
			Selections: ir.ReaderSelection{
				&ir.ScalarField{FieldName: "name", ResponseKey: "name"},
			},
		},
	}
}

func TestPublishQueue_CommitPayloadPublishesOnRun(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)

	op := descriptorFor("1")
	q.CommitPayload(op, map[string]any{"name": "Ann"}, nil)
	if _, err := q.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec, status := s.Source().Get("1")
	if status != StatusPresent || rec["name"] != "Ann" {
		t.Fatalf("record = %v / %v", rec, status)
	}
}

func TestPublishQueue_CommitUpdateRunsAgainstSharedSink(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)

	q.CommitUpdate(func(p *RecordProxy) {
		p.CreateRecord("1", "User")
		p.Set("1", "name", "Ann")
	})
	q.CommitUpdate(func(p *RecordProxy) {
		p.Set("1", "age", 30.0)
	})
	if _, err := q.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec, _ := s.Source().Get("1")
	if rec["name"] != "Ann" || rec["age"] != 30.0 {
		t.Fatalf("record = %v", rec)
	}
}

func TestPublishQueue_CommitSourceRunsRegisteredHandler(t *testing.T) {
	s := NewStore(Options{})
	ran := false
	handlers := HandlerRegistry{
		"connection": HandlerFunc(func(proxy *RecordProxy, payload HandleFieldPayload) {
			ran = true
			proxy.Set(payload.DataID, payload.HandleKey, "handled")
		}),
	}
	q := NewPublishQueue(s, handlers, nil, nil, nil)

	src := NewRecordSource()
	src.Set("1", Record{ReservedID: DataID("1")})
	payloads := []HandleFieldPayload{
		{DataID: "1", FieldKey: "comments", HandleKey: "__comments_connection", Handle: "connection"},
	}
	q.CommitSource(src, payloads)
	if _, err := q.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !ran {
		t.Fatalf("expected the registered handler to run")
	}
	rec, _ := s.Source().Get("1")
	if rec["__comments_connection"] != "handled" {
		t.Fatalf("record = %v", rec)
	}
}

func TestPublishQueue_CommitPayloadUnknownHandlerFailsRun(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)

	op := &OperationDescriptor{
		NormRoot: ir.NormalizationSelector{
			DataID: "1",
			Selections: ir.NormalizationSelection{
				&ir.NormClientExtensionField{FieldName: "comments", Handle: "connection"},
			},
		},
	}
	q.CommitPayload(op, map[string]any{"comments": map[string]any{}}, nil)
	if _, err := q.Run(); err == nil {
		t.Fatalf("expected a HandlerError for an unregistered handle")
	}
}

func TestPublishQueue_OptimisticUpdateAppliesAndHoldsGC(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)

	u := &StoreUpdaterUpdate{Updater: func(p *RecordProxy) {
		p.CreateRecord("1", "User")
		p.Set("1", "name", "Ann")
	}}
	if err := q.ApplyUpdate(u); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	if _, err := q.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec, status := s.Source().Get("1")
	if status != StatusPresent || rec["name"] != "Ann" {
		t.Fatalf("record = %v / %v", rec, status)
	}
	applied, pending := q.Stats()
	if applied != 1 || pending != 0 {
		t.Fatalf("Stats() = %d applied, %d pending", applied, pending)
	}
}

func TestPublishQueue_ApplyUpdateRejectsDuplicates(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)
	u := &StoreUpdaterUpdate{Updater: func(*RecordProxy) {}}

	if err := q.ApplyUpdate(u); err != nil {
		t.Fatalf("first ApplyUpdate() error = %v", err)
	}
	if err := q.ApplyUpdate(u); err == nil {
		t.Fatalf("expected an error re-applying a still-pending update")
	}
	if _, err := q.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := q.ApplyUpdate(u); err == nil {
		t.Fatalf("expected an error re-applying an already-applied update")
	}
}

func TestPublishQueue_RevertUpdateUndoesOnlyThatUpdate(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)

	u1 := &StoreUpdaterUpdate{Updater: func(p *RecordProxy) {
		p.CreateRecord("1", "User")
		p.Set("1", "name", "Ann")
	}}
	u2 := &StoreUpdaterUpdate{Updater: func(p *RecordProxy) {
		p.CreateRecord("2", "User")
		p.Set("2", "name", "Bob")
	}}
	if err := q.ApplyUpdate(u1); err != nil {
		t.Fatalf("ApplyUpdate(u1) error = %v", err)
	}
	if err := q.ApplyUpdate(u2); err != nil {
		t.Fatalf("ApplyUpdate(u2) error = %v", err)
	}
	if _, err := q.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, status := s.Source().Get("1"); status != StatusPresent {
		t.Fatalf("expected record 1 to be present after the first run")
	}
	if _, status := s.Source().Get("2"); status != StatusPresent {
		t.Fatalf("expected record 2 to be present after the first run")
	}

	q.RevertUpdate(u1)
	if _, err := q.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, status := s.Source().Get("1"); status != StatusAbsent {
		t.Fatalf("expected record 1 to be undone")
	}
	rec2, status2 := s.Source().Get("2")
	if status2 != StatusPresent || rec2["name"] != "Bob" {
		t.Fatalf("expected record 2 to survive the rebase, got %v / %v", rec2, status2)
	}
}

func TestPublishQueue_RevertAllUndoesEverything(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)

	u := &StoreUpdaterUpdate{Updater: func(p *RecordProxy) {
		p.CreateRecord("1", "User")
	}}
	if err := q.ApplyUpdate(u); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	if _, err := q.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	q.RevertAll()
	if _, err := q.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, status := s.Source().Get("1"); status != StatusAbsent {
		t.Fatalf("expected RevertAll to undo the applied update")
	}
	applied, pending := q.Stats()
	if applied != 0 || pending != 0 {
		t.Fatalf("Stats() = %d applied, %d pending", applied, pending)
	}
}

func TestPublishQueue_AuthoritativePayloadSurvivesOptimisticRebase(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)

	u := &StoreUpdaterUpdate{Updater: func(p *RecordProxy) {
		p.CreateRecord("1", "User")
		p.Set("1", "name", "Optimistic Ann")
	}}
	if err := q.ApplyUpdate(u); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	if _, err := q.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	op := descriptorFor("1")
	q.CommitPayload(op, map[string]any{"name": "Real Ann"}, nil)
	u2 := &StoreUpdaterUpdate{Updater: func(p *RecordProxy) {
		p.Set("1", "age", 30.0)
	}}
	if err := q.ApplyUpdate(u2); err != nil {
		t.Fatalf("ApplyUpdate(u2) error = %v", err)
	}
	if _, err := q.Run(); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	rec, _ := s.Source().Get("1")
	if rec["age"] != 30.0 {
		t.Fatalf("expected the newly applied optimistic field to be present, got %v", rec)
	}
}

func TestPublishQueue_ReentrantRunIsRejected(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)

	src := NewRecordSource()
	src.Set("1", Record{ReservedID: DataID("1"), "name": "Ann"})
	s.Publish(src)
	s.Notify()

	snap := s.Lookup(readerSelFor("1"), nil)
	var reentrantErr error
	s.Subscribe(snap, func(*Snapshot) {
		_, reentrantErr = q.Run()
	})

	q.CommitUpdate(func(p *RecordProxy) {
		p.Set("1", "name", "Annie")
	})
	if _, err := q.Run(); err != nil {
		t.Fatalf("outer Run() error = %v", err)
	}
	if reentrantErr == nil {
		t.Fatalf("expected the nested Run() call to be rejected as reentrant")
	}
	if _, ok := reentrantErr.(*ReentrantRunError); !ok {
		t.Fatalf("expected a *ReentrantRunError, got %T", reentrantErr)
	}
}

func TestPublishQueue_DescribeReentrantRun(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)
	if got := q.DescribeReentrantRun(); got != "NOT RUNNING" {
		t.Fatalf("DescribeReentrantRun() = %q", got)
	}
}

func TestPublishQueue_CommitDeferredPayloadCompletesOutstandingBoundary(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)

	op := &OperationDescriptor{
		RequestID: "Q:1",
		NormRoot: ir.NormalizationSelector{
			DataID: "1",
			Selections: ir.NormalizationSelection{
				&ir.NormScalarField{FieldName: "name"},
				&ir.NormDeferredFragment{
					Label:      "UserProfile$defer",
					Selections: ir.NormalizationSelection{&ir.NormScalarField{FieldName: "bio"}},
				},
			},
		},
		Root: ir.ReaderSelector{
			DataID: "1",
			Selections: ir.ReaderSelection{
				&ir.ScalarField{FieldName: "name", ResponseKey: "name"},
			},
		},
	}
	q.CommitPayload(op, map[string]any{"name": "Ann"}, nil)
	if _, err := q.Run(); err != nil {
		t.Fatalf("initial Run() error = %v", err)
	}

	rec, _ := s.Source().Get("1")
	if v, _ := rec[deferredMarkerKey("UserProfile$defer")].(bool); !v {
		t.Fatalf("expected the initial payload to leave an outstanding @defer marker, got %v", rec)
	}

	q.CommitDeferredPayload(op, "UserProfile$defer", map[string]any{"bio": "Likes Go"})
	if _, err := q.Run(); err != nil {
		t.Fatalf("follow-up Run() error = %v", err)
	}

	rec, _ = s.Source().Get("1")
	if rec["bio"] != "Likes Go" {
		t.Fatalf("bio = %v, want filled in by the follow-up payload", rec["bio"])
	}
	if _, has := rec[deferredMarkerKey("UserProfile$defer")]; has {
		t.Fatalf("expected the marker to be cleared once the boundary completes, got %v", rec)
	}
}

func TestPublishQueue_CommitDeferredPayloadUnknownLabelIsANoop(t *testing.T) {
	s := NewStore(Options{})
	q := NewPublishQueue(s, HandlerRegistry{}, nil, nil, nil)

	op := descriptorFor("1")
	q.CommitPayload(op, map[string]any{"name": "Ann"}, nil)
	q.CommitDeferredPayload(op, "NoSuchLabel", map[string]any{"bio": "x"})
	if _, err := q.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec, _ := s.Source().Get("1")
	if rec["name"] != "Ann" {
		t.Fatalf("record = %v", rec)
	}
}
