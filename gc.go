package store

import "github.com/graphkv/store/ir"

// MarkReferences walks sel against source starting from its root DataID,
// adding every reachable DataID to marked, per spec.md §4.4's
// ReferenceMarker. It is the mark half of the Store's mark-sweep GC: the
// union of MarkReferences over every retained root is the reachable set;
// anything the canonical source holds outside that set is swept. Records
// that only a live Snapshot's seen-set refers to are not marked.
func MarkReferences(source RecordSource, sel ir.NormalizationSelector, vars ir.Variables, marked idSet) {
	root := DataID(sel.DataID)
	if marked.has(root) {
		return
	}
	marked.add(root)
	rec, status := source.Get(root)
	if status != StatusPresent {
		return
	}
	markNode(source, rec, vars, sel.Selections, marked)
}

func markNode(source RecordSource, rec Record, vars ir.Variables, sel ir.NormalizationSelection, marked idSet) {
	for _, node := range sel {
		switch n := node.(type) {
		case *ir.NormScalarField, *ir.NormClientExtensionField, *ir.NormDeferredFragment:
			// no references to mark

		case *ir.NormLinkedField:
			if n.Condition != nil && !n.Condition.Eval(vars) {
				continue
			}
			key := StorageKey(n.FieldName, n.StorageArgs, vars)
			v, ok := rec[key]
			if !ok {
				continue
			}
			markLinkedValue(source, v, vars, n.Selections, marked)

		case *ir.NormInlineFragment:
			if n.Condition != nil && !n.Condition.Eval(vars) {
				continue
			}
			markNode(source, rec, vars, n.Selections, marked)

		case *ir.NormMatchField:
			if n.Condition != nil && !n.Condition.Eval(vars) {
				continue
			}
			key := StorageKey(n.FieldName, n.StorageArgs, vars)
			v, ok := rec[key]
			if !ok {
				continue
			}
			ref, ok := v.(Ref)
			if !ok {
				continue
			}
			markOne(source, ref.ID, vars, marked, func(childRec Record) {
				opKey := "__module_operation_" + n.ParentFragmentKey
				opID, _ := childRec[opKey].(string)
				if mod, known := n.Branches[opID]; known {
					markNode(source, childRec, vars, mod.Selections, marked)
				}
			})
		}
	}
}

func markLinkedValue(source RecordSource, v any, vars ir.Variables, sel ir.NormalizationSelection, marked idSet) {
	switch val := v.(type) {
	case Ref:
		markOne(source, val.ID, vars, marked, func(childRec Record) {
			markNode(source, childRec, vars, sel, marked)
		})
	case Refs:
		for _, id := range val.IDs {
			if id == nil {
				continue
			}
			markOne(source, *id, vars, marked, func(childRec Record) {
				markNode(source, childRec, vars, sel, marked)
			})
		}
	}
}

func markOne(source RecordSource, id DataID, vars ir.Variables, marked idSet, visit func(Record)) {
	if marked.has(id) {
		return
	}
	marked.add(id)
	rec, status := source.Get(id)
	if status != StatusPresent {
		return
	}
	visit(rec)
}

// CheckData reports whether every record sel would need to read, starting
// from the given root DataID, is present in source — i.e. whether a Reader
// run over the same selector would report IsMissingData == false. Used by
// Store.Check to decide whether an operation's data is already satisfied
// without paying for a full Reader.Read (spec.md §4.4's DataChecker).
func CheckData(source RecordSource, sel ir.NormalizationSelector) bool {
	root := DataID(sel.DataID)
	rec, status := source.Get(root)
	if status != StatusPresent {
		return false
	}
	return checkNode(source, rec, sel.Variables, sel.Selections)
}

func checkNode(source RecordSource, rec Record, vars ir.Variables, sel ir.NormalizationSelection) bool {
	for _, node := range sel {
		switch n := node.(type) {
		case *ir.NormScalarField:
			if n.Condition != nil && !n.Condition.Eval(vars) {
				continue
			}
			key := StorageKey(n.FieldName, n.StorageArgs, vars)
			if _, ok := rec[key]; !ok {
				return false
			}

		case *ir.NormClientExtensionField:
			if n.Condition != nil && !n.Condition.Eval(vars) {
				continue
			}
			handleKey := HandleKey(n.FieldName, n.Handle, n.Key, n.StorageArgs, n.Filters, vars)
			if _, ok := rec[handleKey]; !ok {
				return false
			}

		case *ir.NormLinkedField:
			if n.Condition != nil && !n.Condition.Eval(vars) {
				continue
			}
			key := StorageKey(n.FieldName, n.StorageArgs, vars)
			v, ok := rec[key]
			if !ok {
				return false
			}
			if !checkLinkedValue(source, v, vars, n.Selections) {
				return false
			}

		case *ir.NormInlineFragment:
			if n.Condition != nil && !n.Condition.Eval(vars) {
				continue
			}
			if !checkNode(source, rec, vars, n.Selections) {
				return false
			}

		case *ir.NormMatchField:
			if n.Condition != nil && !n.Condition.Eval(vars) {
				continue
			}
			key := StorageKey(n.FieldName, n.StorageArgs, vars)
			v, ok := rec[key]
			if !ok {
				return false
			}
			ref, ok := v.(Ref)
			if !ok {
				continue
			}
			childRec, status := source.Get(ref.ID)
			if status != StatusPresent {
				return false
			}
			opKey := "__module_operation_" + n.ParentFragmentKey
			opID, _ := childRec[opKey].(string)
			mod, known := n.Branches[opID]
			if !known {
				return false
			}
			if !checkNode(source, childRec, vars, mod.Selections) {
				return false
			}

		case *ir.NormDeferredFragment:
			// an outstanding @defer boundary never counts as missing data by
			// itself; the initial payload's marker satisfies the check.
		}
	}
	return true
}

func checkLinkedValue(source RecordSource, v any, vars ir.Variables, sel ir.NormalizationSelection) bool {
	switch val := v.(type) {
	case Ref:
		childRec, status := source.Get(val.ID)
		if status != StatusPresent {
			return false
		}
		return checkNode(source, childRec, vars, sel)
	case Refs:
		for _, id := range val.IDs {
			if id == nil {
				continue
			}
			childRec, status := source.Get(*id)
			if status != StatusPresent {
				return false
			}
			if !checkNode(source, childRec, vars, sel) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
