package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type DumpFlags uint64

const (
	DumpRecords = DumpFlags(1 << iota)
	DumpStats
	DumpSubscriptions
	DumpRetained

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var dumpSep1 = strings.Repeat("=", 80)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders a human-readable snapshot of s for debugging and test
// failure output, gated by f.
func (s *Store) Dump(f DumpFlags) string {
	var buf strings.Builder

	if f.Contains(DumpStats) {
		fmt.Fprintln(&buf, dumpSep1)
		st := s.Stats()
		fmt.Fprintf(&buf, "stats: records=%d subs=%d retained=%d publishes=%d notifies=%d gc_runs=%d\n",
			st.Records, st.Subscriptions, st.RetainedRoots, st.Publishes, st.Notifies, st.GCRuns)
	}

	if f.Contains(DumpRecords) {
		fmt.Fprintln(&buf, dumpSep1)
		ids := s.source.GetRecordIDs()
		sortedIDs := make([]string, len(ids))
		for i, id := range ids {
			sortedIDs[i] = string(id)
		}
		sort.Strings(sortedIDs)
		for _, idStr := range sortedIDs {
			id := DataID(idStr)
			rec, status := s.source.Get(id)
			switch status {
			case StatusPresent:
				fmt.Fprintf(&buf, "%s = %s\n", rpadf(' ', "%s", idStr), must(json.Marshal(dumpableRecord(rec))))
			case StatusTombstone:
				fmt.Fprintf(&buf, "%s = <tombstone>\n", idStr)
			}
		}
	}

	if f.Contains(DumpRetained) {
		fmt.Fprintln(&buf, dumpSep1)
		for idx, root := range s.retained {
			fmt.Fprintf(&buf, "retained[%d] = %s\n", idx, root.sel.DataID)
		}
	}

	if f.Contains(DumpSubscriptions) {
		fmt.Fprintln(&buf, dumpSep1)
		for sub := range s.subs {
			fmt.Fprintf(&buf, "subscription: seen=%v missing=%v\n", sub.snapshot.SeenRecords, sub.snapshot.IsMissingData)
		}
	}

	return buf.String()
}

func dumpableRecord(rec Record) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		switch val := v.(type) {
		case Ref:
			out[k] = map[string]string{"__ref": string(val.ID)}
		case Refs:
			ids := make([]*string, len(val.IDs))
			for i, id := range val.IDs {
				if id != nil {
					s := string(*id)
					ids[i] = &s
				}
			}
			out[k] = map[string]any{"__refs": ids}
		default:
			out[k] = v
		}
	}
	return out
}

func rpadf(pad rune, format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	return rpad(s, 40, pad)
}
