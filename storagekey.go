package store

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/graphkv/store/ir"
)

// StorageKey canonicalizes a field name plus its resolved arguments into the
// textual key a Record stores values under: fieldName when there are no
// arguments, else fieldName(argName1:jsonValue1,argName2:jsonValue2,...)
// with argument names sorted ascending and values rendered via stable JSON
// (encoding/json already sorts map keys, so this only has to additionally
// sort the argument names themselves, per spec.md §6).
func StorageKey(fieldName string, args []ir.Arg, vars ir.Variables) string {
	if len(args) == 0 {
		return fieldName
	}
	resolved := make(map[string]any, len(args))
	names := make([]string, 0, len(args))
	for _, a := range args {
		resolved[a.Name] = a.Value.Resolve(vars)
		names = append(names, a.Name)
	}
	sort.Strings(names)

	var buf strings.Builder
	buf.WriteString(fieldName)
	buf.WriteByte('(')
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(name)
		buf.WriteByte(':')
		buf.Write(stableJSON(resolved[name]))
	}
	buf.WriteByte(')')
	return buf.String()
}

// HandleKey canonicalizes the derived key a client-field handle writes its
// output under: __<fieldStorageKey>_<handle> when no user key is supplied, with
// filters applied to the argument set before canonicalizing (spec.md §4.2
// item 9). An explicit key suffixes the handle name.
func HandleKey(fieldName, handle, key string, args []ir.Arg, filters []string, vars ir.Variables) string {
	filtered := filterArgs(args, filters)
	base := StorageKey(fieldName, filtered, vars)
	var buf strings.Builder
	buf.WriteString("__")
	buf.WriteString(base)
	buf.WriteByte('_')
	buf.WriteString(handle)
	if key != "" {
		buf.WriteByte('_')
		buf.WriteString(key)
	}
	return buf.String()
}

func filterArgs(args []ir.Arg, filters []string) []ir.Arg {
	if len(filters) == 0 {
		return args
	}
	allow := make(map[string]struct{}, len(filters))
	for _, f := range filters {
		allow[f] = struct{}{}
	}
	out := make([]ir.Arg, 0, len(args))
	for _, a := range args {
		if _, ok := allow[a.Name]; ok {
			out = append(out, a)
		}
	}
	return out
}

// stableJSON renders v with map keys sorted (encoding/json's default for
// map[string]any) and no extraneous whitespace.
func stableJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Argument values are always JSON-shaped (they come from a compiled
		// literal or a resolved variable); a marshal failure here means the
		// compiler handed us something malformed.
		panic(&NormalizationError{Msg: "cannot render argument value to JSON", Err: err})
	}
	return b
}

// ClientIDForLinked synthesizes a stable positional client ID for a linked
// field whose child the server did not identify: parent:storageKey.
func ClientIDForLinked(parent DataID, storageKey string) DataID {
	return DataID(string(parent) + ":" + storageKey)
}

// ClientIDForPluralItem synthesizes a stable positional client ID for one
// element of a plural linked field: parent:storageKey:i.
func ClientIDForPluralItem(parent DataID, storageKey string, i int) DataID {
	return DataID(string(parent) + ":" + storageKey + ":" + strconv.Itoa(i))
}
