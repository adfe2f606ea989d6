package store

// Stats reports point-in-time counters about a Store, for diagnostics and
// tests — the cache-runtime counterpart of the teacher's per-table
// TableStats.
type Stats struct {
	Records           int
	Subscriptions     int
	RetainedRoots     int
	AppliedOptimistic int
	Publishes         uint64
	Notifies          uint64
	GCRuns            uint64
}

// Stats returns current counters for s.
func (s *Store) Stats() Stats {
	return Stats{
		Records:       s.source.Size(),
		Subscriptions: len(s.subs),
		RetainedRoots: len(s.retained),
		Publishes:     s.statPublishes.Load(),
		Notifies:      s.statNotifies.Load(),
		GCRuns:        s.statGCRuns.Load(),
	}
}

// Stats returns the number of applied and pending optimistic updates, the
// PublishQueue's own counters.
func (q *PublishQueue) Stats() (applied, pending int) {
	return len(q.appliedOptimisticUpdates), len(q.pendingOptimisticUpdates)
}
