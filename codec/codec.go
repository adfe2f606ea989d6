// Package codec serializes a store.RecordSource to and from the two wire
// formats named in spec.md §6: JSON (for cross-process debugging and
// snapshot fixtures) and msgpack (compact binary, grounded on the
// teacher's own appetite for msgpack-shaped row encoding, generalized
// here from per-row tuples to whole record sources).
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/graphkv/store"
)

// EncodeJSON renders src as the JSON object shape of spec.md §6: DataID
// keys, each mapped to either a record object or null (tombstone).
func EncodeJSON(src store.RecordSource) ([]byte, error) {
	return json.Marshal(toWireSource(src))
}

// DecodeJSON parses data produced by EncodeJSON into a fresh
// MutableRecordSource.
func DecodeJSON(data []byte) (store.MutableRecordSource, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return fromWireSource(raw)
}

// EncodeMsgpack renders src as a msgpack map with the same shape as
// EncodeJSON, for compact transport/storage.
func EncodeMsgpack(src store.RecordSource) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := msgpack.NewEncoder(buf).Encode(toWireSource(src)); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeMsgpack parses data produced by EncodeMsgpack into a fresh
// MutableRecordSource.
func DecodeMsgpack(data []byte) (store.MutableRecordSource, error) {
	var raw map[string]any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return fromWireSource(raw)
}

func toWireSource(src store.RecordSource) map[string]any {
	out := make(map[string]any, src.Size())
	for _, id := range src.GetRecordIDs() {
		rec, status := src.Get(id)
		switch status {
		case store.StatusPresent:
			out[string(id)] = toWireRecord(rec)
		case store.StatusTombstone:
			out[string(id)] = nil
		}
	}
	return out
}

func fromWireSource(raw map[string]any) (store.MutableRecordSource, error) {
	src := store.NewRecordSource()
	for idStr, v := range raw {
		id := store.DataID(idStr)
		if v == nil {
			src.Delete(id)
			continue
		}
		wire, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("codec: record %s is neither an object nor null", idStr)
		}
		rec, err := fromWireRecord(wire)
		if err != nil {
			return nil, fmt.Errorf("codec: record %s: %w", idStr, err)
		}
		src.Set(id, rec)
	}
	return src, nil
}

func toWireRecord(rec store.Record) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		switch val := v.(type) {
		case store.Ref:
			out[k] = map[string]any{"__ref": string(val.ID)}
		case store.Refs:
			ids := make([]any, len(val.IDs))
			for i, id := range val.IDs {
				if id != nil {
					ids[i] = string(*id)
				}
			}
			out[k] = map[string]any{"__refs": ids}
		case store.DataID:
			out[k] = string(val)
		default:
			out[k] = v
		}
	}
	return out
}

func fromWireRecord(wire map[string]any) (store.Record, error) {
	rec := make(store.Record, len(wire))
	for k, v := range wire {
		if m, ok := v.(map[string]any); ok {
			if refID, has := m["__ref"]; has {
				s, ok := refID.(string)
				if !ok {
					return nil, fmt.Errorf("field %s: __ref is not a string", k)
				}
				rec[k] = store.Ref{ID: store.DataID(s)}
				continue
			}
			if refsRaw, has := m["__refs"]; has {
				arr, ok := refsRaw.([]any)
				if !ok {
					return nil, fmt.Errorf("field %s: __refs is not an array", k)
				}
				ids := make([]*store.DataID, len(arr))
				for i, item := range arr {
					if item == nil {
						continue
					}
					s, ok := item.(string)
					if !ok {
						return nil, fmt.Errorf("field %s: __refs[%d] is not a string", k, i)
					}
					id := store.DataID(s)
					ids[i] = &id
				}
				rec[k] = store.Refs{IDs: ids}
				continue
			}
		}
		rec[k] = v
	}
	if idv, ok := rec[store.ReservedID]; ok {
		if s, ok := idv.(string); ok {
			rec[store.ReservedID] = store.DataID(s)
		}
	}
	return rec, nil
}
