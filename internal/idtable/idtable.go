// Package idtable provides a sharded, xxhash-keyed set over DataID strings,
// used for seenRecords membership tests and the GC mark set: xxhash picks
// the shard, and each shard is an ordinary Go map.
package idtable

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 16

// Set is an insertion-order-agnostic set of strings, sharded by xxhash of
// the key, with one lock per shard so a Set is safe to share across
// goroutines (the store itself only uses it from a single goroutine).
type Set struct {
	shards [shardCount]shard
}

type shard struct {
	mu sync.Mutex
	m  map[string]struct{}
}

func NewSet() *Set {
	s := &Set{}
	for i := range s.shards {
		s.shards[i].m = make(map[string]struct{})
	}
	return s
}

func shardFor(key string) uint64 {
	return xxhash.Sum64String(key) % shardCount
}

func (s *Set) Add(id string) {
	sh := &s.shards[shardFor(id)]
	sh.mu.Lock()
	sh.m[id] = struct{}{}
	sh.mu.Unlock()
}

func (s *Set) Has(id string) bool {
	sh := &s.shards[shardFor(id)]
	sh.mu.Lock()
	_, ok := sh.m[id]
	sh.mu.Unlock()
	return ok
}

// Remove deletes id from the set, if present.
func (s *Set) Remove(id string) {
	sh := &s.shards[shardFor(id)]
	sh.mu.Lock()
	delete(sh.m, id)
	sh.mu.Unlock()
}

func (s *Set) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		n += len(s.shards[i].m)
		s.shards[i].mu.Unlock()
	}
	return n
}

// Intersects reports whether s shares at least one member with other,
// without allocating a combined set.
func (s *Set) Intersects(other *Set) bool {
	if s.Len() > other.Len() {
		s, other = other, s
	}
	for i := range s.shards {
		s.shards[i].mu.Lock()
		for id := range s.shards[i].m {
			if other.Has(id) {
				s.shards[i].mu.Unlock()
				return true
			}
		}
		s.shards[i].mu.Unlock()
	}
	return false
}

func (s *Set) Each(f func(id string)) {
	for i := range s.shards {
		s.shards[i].mu.Lock()
		for id := range s.shards[i].m {
			f(id)
		}
		s.shards[i].mu.Unlock()
	}
}

// Fingerprint returns a fast, non-cryptographic content hash of a (storage
// key, value) pair, used by RecordSourceMutator to decide whether a
// copy-on-write clone is actually needed for an unchanged field, and by the
// store's Strict-mode record fingerprint.
func Fingerprint(key, value string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(key)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(value)
	return h.Sum64()
}
