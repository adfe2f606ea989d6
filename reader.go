package store

import (
	"github.com/graphkv/store/internal/idtable"
	"github.com/graphkv/store/ir"
)

// Reader materializes a tree-shaped snapshot out of a RecordSource against
// a compiled reader selector, per spec.md §4.3.
type Reader struct {
	source RecordSource
}

// NewReader returns a Reader bound to source.
func NewReader(source RecordSource) *Reader {
	return &Reader{source: source}
}

// Read walks sel against the bound source and returns the resulting
// Snapshot. owner is attached to the snapshot (and to any fragment pointers
// emitted) so fragments resolved later can recover the originating
// operation's identity and variables.
func (r *Reader) Read(sel ir.ReaderSelector, owner *OperationDescriptor) *Snapshot {
	seen := newIDSet()
	rc := &readCtx{source: r.source, vars: sel.Variables, owner: owner, seen: seen}

	rec, status := r.source.Get(DataID(sel.DataID))
	seen.add(DataID(sel.DataID))

	var data any
	missing := false
	switch status {
	case StatusTombstone:
		data = nil
	case StatusAbsent:
		data = nil
		missing = true
	default:
		data, missing = rc.readObject(rec, sel.Selections)
	}

	return &Snapshot{
		Selector:      sel,
		Data:          data,
		IsMissingData: missing,
		SeenRecords:   seen.slice(),
		Owner:         owner,
	}
}

// idSet is the seen-set/mark-set used by Reader, MarkReferences and Store's
// updatedIDs tracking. It is backed by the same xxhash-sharded idtable.Set
// that memRecordSource uses for its own membership tracking: each has()/add()
// picks a shard by the DataID's xxhash and then looks it up in that shard's
// Go map.
type idSet struct {
	t *idtable.Set
}

func newIDSet() idSet { return idSet{t: idtable.NewSet()} }

func (s idSet) add(id DataID)      { s.t.Add(string(id)) }
func (s idSet) has(id DataID) bool { return s.t.Has(string(id)) }
func (s idSet) Len() int           { return s.t.Len() }

func (s idSet) slice() []DataID {
	out := make([]DataID, 0, s.t.Len())
	s.t.Each(func(id string) {
		out = append(out, DataID(id))
	})
	return out
}

type readCtx struct {
	source RecordSource
	vars   ir.Variables
	owner  *OperationDescriptor
	seen   idSet
}

// readObject reads selections against rec (the record already fetched for
// the current DataID) and returns the resulting object plus whether any
// selection within it was missing.
func (rc *readCtx) readObject(rec Record, sel ir.ReaderSelection) (map[string]any, bool) {
	out := make(map[string]any, len(sel))
	missing := false
	for _, node := range sel {
		m := rc.readNode(rec, node, out)
		missing = missing || m
	}
	return out, missing
}

// readNode dispatches on the concrete selection-node type and writes into
// out under the node's response key (or merges fragment-pointer/inline
// data directly into out for fragment-shaped nodes).
func (rc *readCtx) readNode(rec Record, node ir.ReaderNode, out map[string]any) bool {
	switch n := node.(type) {
	case *ir.ScalarField:
		if n.Condition != nil && !n.Condition.Eval(rc.vars) {
			return false
		}
		key := StorageKey(n.FieldName, n.Args, rc.vars)
		v, present := rec[key]
		if !present {
			out[n.ResponseKey] = nil
			return true
		}
		out[n.ResponseKey] = v
		return false

	case *ir.ClientExtensionField:
		if n.Condition != nil && !n.Condition.Eval(rc.vars) {
			return false
		}
		rawKey := StorageKey(n.FieldName, n.Args, rc.vars)
		_, rawPresent := rec[rawKey]
		v, present := rec[n.HandleKey]
		if !present {
			out[n.ResponseKey] = nil
			// Missing only when the underlying field is also absent.
			return !rawPresent
		}
		out[n.ResponseKey] = v
		return false

	case *ir.LinkedField:
		if n.Condition != nil && !n.Condition.Eval(rc.vars) {
			return false
		}
		key := StorageKey(n.FieldName, n.Args, rc.vars)
		v, present := rec[key]
		if !present {
			out[n.ResponseKey] = nil
			return true
		}
		if n.Plural {
			refs, _ := v.(Refs)
			items := make([]any, len(refs.IDs))
			missing := false
			for i, idp := range refs.IDs {
				if idp == nil {
					items[i] = nil
					continue
				}
				item, m := rc.readLinked(*idp, n.Selections)
				items[i] = item
				missing = missing || m
			}
			out[n.ResponseKey] = items
			return missing
		}
		ref, ok := v.(Ref)
		if !ok {
			out[n.ResponseKey] = nil
			return false
		}
		item, missing := rc.readLinked(ref.ID, n.Selections)
		out[n.ResponseKey] = item
		return missing

	case *ir.MatchField:
		if n.Condition != nil && !n.Condition.Eval(rc.vars) {
			return false
		}
		key := StorageKey(n.FieldName, n.Args, rc.vars)
		v, present := rec[key]
		if !present {
			out[n.ResponseKey] = nil
			return true
		}
		ref, ok := v.(Ref)
		if !ok {
			out[n.ResponseKey] = nil
			return false
		}
		out[n.ResponseKey] = rc.readMatch(ref.ID, n.Branches, n.FragmentPropName)
		return false

	case *ir.InlineFragment:
		if n.Condition != nil && !n.Condition.Eval(rc.vars) {
			return false
		}
		if n.Type != "" && rec.Typename() != n.Type {
			return false
		}
		missing := false
		for _, child := range n.Selections {
			m := rc.readNode(rec, child, out)
			missing = missing || m
		}
		return missing

	case *ir.FragmentSpread:
		if n.Condition != nil && !n.Condition.Eval(rc.vars) {
			return false
		}
		args := map[string]any{}
		for _, a := range n.Args {
			args[a.Name] = a.Value.Resolve(rc.vars)
		}
		out["__id"] = rec.ID()
		frags, _ := out["__fragments"].(map[string]any)
		if frags == nil {
			frags = map[string]any{}
		}
		frags[n.FragmentName] = args
		out["__fragments"] = frags
		out["__fragmentOwner"] = rc.owner
		return false

	case *ir.InlineDataFragment:
		if n.Condition != nil && !n.Condition.Eval(rc.vars) {
			return false
		}
		inner, missing := rc.readObject(rec, n.Selections)
		frags, _ := out["__fragments"].(map[string]any)
		if frags == nil {
			frags = map[string]any{}
		}
		frags[n.FragmentName] = inner
		out["__fragments"] = frags
		return missing

	default:
		return false
	}
}

func (rc *readCtx) readLinked(id DataID, sel ir.ReaderSelection) (any, bool) {
	rc.seen.add(id)
	child, status := rc.source.Get(id)
	switch status {
	case StatusTombstone, StatusAbsent:
		return nil, status == StatusAbsent
	default:
		return rc.readObject(child, sel)
	}
}

// readMatch resolves an @match field: if the linked record's __typename
// matches a branch, emit a fragment pointer enriched with module metadata;
// otherwise {} with no missing-data flag (spec.md §4.3, scenario 4).
func (rc *readCtx) readMatch(id DataID, branches []ir.MatchBranch, propName string) map[string]any {
	rc.seen.add(id)
	rec, status := rc.source.Get(id)
	if status != StatusPresent {
		return map[string]any{}
	}
	typename := rec.Typename()
	for _, b := range branches {
		if b.Type != typename {
			continue
		}
		out := map[string]any{
			"__id":               rec.ID(),
			"__fragments":        map[string]any{b.FragmentName: map[string]any{}},
			"__fragmentOwner":    rc.owner,
			"__fragmentPropName": propName,
		}
		componentKey := "__module_component_" + b.ComponentKey
		if comp, ok := rec[componentKey].(string); ok {
			out["__module_component"] = comp
		}
		return out
	}
	return map[string]any{}
}
