package store

import "github.com/graphkv/store/ir"

// GetDataIDFunc computes a child record's DataID from the raw response
// object, the parent type, field name and resolved arguments. Returning
// ok=false falls back to the default policy: the response's own "id" field,
// else a synthesized client ID (spec.md §4.2 item 3).
type GetDataIDFunc func(response map[string]any, parentType, fieldName string, args map[string]any) (id DataID, ok bool)

// OperationLoader asynchronously resolves the normalization fragment for an
// @match/@module branch that isn't statically known. Resolution re-enters
// the cache by calling Normalize again with the loaded fragment's
// selections against the originally captured branch payload (spec.md §4.2
// item 7) — the mechanics of that re-entry belong to the external
// collaborator that owns compilation and network fetch, not to this
// package.
type OperationLoader interface {
	Load(normalizationFragmentID string)
}

// NormalizeOptions configures a single Normalize call.
type NormalizeOptions struct {
	GetDataID GetDataIDFunc
	Loader    OperationLoader
}

// Normalize walks response against sel, writing records into sink, per
// spec.md §4.2. It returns the handle field payloads that must be run
// through a HandlerRegistry before the sink is considered final.
//
// Missing-data policy: a response key the compiler's selection names but
// the payload omits is treated as absent (the sink simply does not gain
// that storage key); only an explicit JSON null writes an explicit null
// value. Programmer errors (missing __typename on an abstract narrow,
// malformed linked-field shape) are returned immediately with no partial
// sink writes retained by the caller — CommitPayload discards the sink on
// error.
func Normalize(sink MutableRecordSource, sel ir.NormalizationSelector, response map[string]any, opts NormalizeOptions) ([]HandleFieldPayload, error) {
	nc := &normCtx{sink: sink, vars: sel.Variables, opts: opts}
	rootID := DataID(sel.DataID)
	nc.ensureRecord(rootID, "")
	if err := nc.walkObject(rootID, "", response, sel.Selections); err != nil {
		return nil, err
	}
	return nc.handlePayloads, nil
}

type normCtx struct {
	sink           MutableRecordSource
	vars           ir.Variables
	opts           NormalizeOptions
	handlePayloads []HandleFieldPayload
}

func (nc *normCtx) ensureRecord(id DataID, typename string) Record {
	rec, status := nc.sink.Get(id)
	if status != StatusPresent {
		rec = Record{ReservedID: id}
	}
	if typename != "" {
		if _, has := rec[ReservedTypename]; !has {
			rec[ReservedTypename] = typename
		}
	}
	nc.sink.Set(id, rec)
	return rec
}

func (nc *normCtx) walkObject(id DataID, parentType string, payload map[string]any, sel ir.NormalizationSelection) error {
	rec, status := nc.sink.Get(id)
	if status != StatusPresent {
		rec = nc.ensureRecord(id, "")
	}
	if tn, ok := payload["__typename"].(string); ok {
		if _, has := rec[ReservedTypename]; !has {
			rec[ReservedTypename] = tn
		}
	} else if parentType != "" {
		if _, has := rec[ReservedTypename]; !has {
			rec[ReservedTypename] = parentType
		}
	}
	for _, node := range sel {
		if err := nc.walkNode(id, rec, parentType, payload, node); err != nil {
			return err
		}
	}
	nc.sink.Set(id, rec)
	return nil
}

func (nc *normCtx) walkNode(id DataID, rec Record, parentType string, payload map[string]any, node ir.NormalizationNode) error {
	switch n := node.(type) {
	case *ir.NormScalarField:
		if n.Condition != nil && !n.Condition.Eval(nc.vars) {
			return nil
		}
		v, present := payload[n.FieldName]
		if !present {
			return nil
		}
		rec[StorageKey(n.FieldName, n.StorageArgs, nc.vars)] = v
		return nil

	case *ir.NormClientExtensionField:
		if n.Condition != nil && !n.Condition.Eval(nc.vars) {
			return nil
		}
		fieldKey := StorageKey(n.FieldName, n.StorageArgs, nc.vars)
		if v, present := payload[n.FieldName]; present {
			rec[fieldKey] = v
		}
		handleKey := HandleKey(n.FieldName, n.Handle, n.Key, n.StorageArgs, n.Filters, nc.vars)
		nc.handlePayloads = append(nc.handlePayloads, HandleFieldPayload{
			DataID: id, FieldKey: fieldKey, HandleKey: handleKey,
			Handle: n.Handle, Args: argMap(n.StorageArgs, nc.vars), Filters: n.Filters,
		})
		return nil

	case *ir.NormLinkedField:
		return nc.walkLinked(id, rec, parentType, payload, n)

	case *ir.NormInlineFragment:
		if n.Condition != nil && !n.Condition.Eval(nc.vars) {
			return nil
		}
		typename, hasTypename := payload["__typename"].(string)
		if !hasTypename && parentType != "" {
			typename, hasTypename = parentType, true
		}
		if n.Abstract && !hasTypename {
			return &NormalizationError{DataID: id, Msg: "missing __typename required to normalize an abstract type narrow"}
		}
		if n.Type != "" && typename != n.Type {
			return nil
		}
		for _, child := range n.Selections {
			if err := nc.walkNode(id, rec, parentType, payload, child); err != nil {
				return err
			}
		}
		return nil

	case *ir.NormMatchField:
		return nc.walkMatch(id, rec, payload, n)

	case *ir.NormDeferredFragment:
		if n.Condition != nil && !n.Condition.Eval(nc.vars) {
			return nil
		}
		rec[deferredMarkerKey(n.Label)] = true
		return nil

	default:
		return nil
	}
}

func (nc *normCtx) walkLinked(id DataID, rec Record, parentType string, payload map[string]any, n *ir.NormLinkedField) error {
	if n.Condition != nil && !n.Condition.Eval(nc.vars) {
		return nil
	}
	key := StorageKey(n.FieldName, n.StorageArgs, nc.vars)
	raw, present := payload[n.FieldName]
	if !present {
		return nil
	}
	if raw == nil {
		rec[key] = nil
		return nil
	}

	if n.Plural {
		arr, ok := raw.([]any)
		if !ok {
			return &NormalizationError{DataID: id, Field: n.FieldName, Msg: "expected an array for a plural linked field"}
		}
		refs := make([]*DataID, len(arr))
		for i, item := range arr {
			if item == nil {
				continue
			}
			childObj, ok := item.(map[string]any)
			if !ok {
				return &NormalizationError{DataID: id, Field: n.FieldName, Msg: "expected an object element in a plural linked field"}
			}
			childID, err := nc.childDataID(id, key, i, childObj, parentType, n.FieldName)
			if err != nil {
				return err
			}
			refs[i] = &childID
			if err := nc.walkObject(childID, n.ConcreteType, childObj, n.Selections); err != nil {
				return err
			}
		}
		rec[key] = Refs{IDs: refs}
		return nil
	}

	childObj, ok := raw.(map[string]any)
	if !ok {
		return &NormalizationError{DataID: id, Field: n.FieldName, Msg: "expected an object for a linked field"}
	}
	childID, err := nc.childDataID(id, key, -1, childObj, parentType, n.FieldName)
	if err != nil {
		return err
	}
	rec[key] = Ref{ID: childID}
	return nc.walkObject(childID, n.ConcreteType, childObj, n.Selections)
}

func (nc *normCtx) walkMatch(id DataID, rec Record, payload map[string]any, n *ir.NormMatchField) error {
	if n.Condition != nil && !n.Condition.Eval(nc.vars) {
		return nil
	}
	key := StorageKey(n.FieldName, n.StorageArgs, nc.vars)
	raw, present := payload[n.FieldName]
	if !present {
		return nil
	}
	if raw == nil {
		rec[key] = nil
		return nil
	}
	childObj, ok := raw.(map[string]any)
	if !ok {
		return &NormalizationError{DataID: id, Field: n.FieldName, Msg: "expected an object for an @match field"}
	}
	childID, err := nc.childDataID(id, key, -1, childObj, "", n.FieldName)
	if err != nil {
		return err
	}
	rec[key] = Ref{ID: childID}

	childRec := nc.ensureRecord(childID, "")
	if tn, ok := childObj["__typename"].(string); ok {
		if _, has := childRec[ReservedTypename]; !has {
			childRec[ReservedTypename] = tn
		}
	}
	compKey := "__module_component_" + n.ParentFragmentKey
	opKey := "__module_operation_" + n.ParentFragmentKey
	if comp, ok := childObj[compKey].(string); ok {
		childRec[compKey] = comp
	}
	var opID string
	if op, ok := childObj[opKey].(string); ok {
		opID = op
		childRec[opKey] = op
	}
	nc.sink.Set(childID, childRec)

	mod, known := n.Branches[opID]
	if !known {
		if nc.opts.Loader != nil && opID != "" {
			nc.opts.Loader.Load(opID)
		}
		return nil
	}
	childRec["__fragmentPropName_"+n.ParentFragmentKey] = mod.FragmentPropName
	nc.sink.Set(childID, childRec)
	return nc.walkObject(childID, "", childObj, mod.Selections)
}

func (nc *normCtx) childDataID(parent DataID, storageKey string, index int, childObj map[string]any, parentType, fieldName string) (DataID, error) {
	if nc.opts.GetDataID != nil {
		if id, ok := nc.opts.GetDataID(childObj, parentType, fieldName, nil); ok {
			return id, nil
		}
	}
	if idVal, ok := childObj["id"].(string); ok && idVal != "" {
		return DataID(idVal), nil
	}
	if index >= 0 {
		return ClientIDForPluralItem(parent, storageKey, index), nil
	}
	return ClientIDForLinked(parent, storageKey), nil
}

func deferredMarkerKey(label string) string { return "__deferred$" + label }

// DeferredPayload is an incremental follow-up to an initial response, per
// spec.md §4.2 item 8: it fills in the branch an earlier Normalize call
// left marked outstanding at @defer/@stream boundary Label.
type DeferredPayload struct {
	Label   string
	Payload map[string]any
}

// CompleteDeferredFragment finds the NormDeferredFragment node named by
// dp.Label within sel's tree and the record base still carries an
// outstanding marker for, then normalizes dp.Payload against that node's
// Selections at that record's DataID, writing the result into sink. ok is
// false (with a nil error) if no matching outstanding boundary exists —
// e.g. the follow-up already arrived, or named a label this selector never
// opened. The marker itself is not cleared here: RecordProxy.
// CommitDeferredPayload folds sink into the transaction and clears it
// against the transaction's own mutator, since sink alone doesn't have the
// authority to delete a field nothing wrote to it in this pass.
func CompleteDeferredFragment(sink MutableRecordSource, base RecordSource, sel ir.NormalizationSelector, dp DeferredPayload, opts NormalizeOptions) (payloads []HandleFieldPayload, ok bool, err error) {
	frag := findDeferredFragment(sel.Selections, dp.Label)
	if frag == nil {
		return nil, false, nil
	}
	id, found := findMarkedRecord(base, deferredMarkerKey(dp.Label))
	if !found {
		return nil, false, nil
	}
	nc := &normCtx{sink: sink, vars: sel.Variables, opts: opts}
	if err := nc.walkObject(id, "", dp.Payload, frag.Selections); err != nil {
		return nil, false, err
	}
	return nc.handlePayloads, true, nil
}

// findDeferredFragment walks a compiled normalization selection tree
// looking for the @defer/@stream boundary named label, descending through
// every node kind that can nest selections (including both statically
// known and not-yet-loaded @match/@module branches).
func findDeferredFragment(sel ir.NormalizationSelection, label string) *ir.NormDeferredFragment {
	for _, node := range sel {
		switch n := node.(type) {
		case *ir.NormDeferredFragment:
			if n.Label == label {
				return n
			}
			if found := findDeferredFragment(n.Selections, label); found != nil {
				return found
			}
		case *ir.NormLinkedField:
			if found := findDeferredFragment(n.Selections, label); found != nil {
				return found
			}
		case *ir.NormInlineFragment:
			if found := findDeferredFragment(n.Selections, label); found != nil {
				return found
			}
		case *ir.NormMatchField:
			for _, mod := range n.Branches {
				if found := findDeferredFragment(mod.Selections, label); found != nil {
					return found
				}
			}
		}
	}
	return nil
}

// findMarkedRecord scans src for the one record still carrying markerKey,
// i.e. the record an earlier Normalize call left an outstanding @defer
// boundary on. Labels are unique per in-flight request, so at most one
// record anywhere in src ever carries a given marker at once.
func findMarkedRecord(src RecordSource, markerKey string) (DataID, bool) {
	for _, id := range src.GetRecordIDs() {
		rec, status := src.Get(id)
		if status != StatusPresent {
			continue
		}
		if v, _ := rec[markerKey].(bool); v {
			return id, true
		}
	}
	return "", false
}

func argMap(args []ir.Arg, vars ir.Variables) map[string]any {
	if len(args) == 0 {
		return nil
	}
	m := make(map[string]any, len(args))
	for _, a := range args {
		m[a.Name] = a.Value.Resolve(vars)
	}
	return m
}
