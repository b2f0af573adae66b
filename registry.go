package forestz

import (
	"sync"
	"sync/atomic"
)

const shardCount = 64

// registry routes identities to open accumulators.
// Locking is per shard, so unrelated spans rarely contend.
type registry struct {
	shards [shardCount]shard
	open   atomic.Int64
}

//nolint:govet // Field order optimized for readability
type shard struct {
	mu     sync.RWMutex
	open   map[ID]*accumulator
	tombs  map[ID]uint64
	ring   []tomb
	cursor int
	seq    uint64
}

// tomb remembers a transferred identity so a late close can be reported as
// a duplicate rather than an unknown span.
type tomb struct {
	id  ID
	seq uint64
}

func newRegistry(tombstones int) *registry {
	perShard := 0
	if tombstones > 0 {
		perShard = (tombstones + shardCount - 1) / shardCount
	}
	r := &registry{}
	for i := range r.shards {
		r.shards[i].open = make(map[ID]*accumulator)
		if perShard > 0 {
			r.shards[i].tombs = make(map[ID]uint64, perShard)
			r.shards[i].ring = make([]tomb, perShard)
		}
	}
	return r
}

func (r *registry) shardFor(id ID) *shard {
	// Fibonacci hashing spreads sequential pool slots across shards.
	return &r.shards[(uint64(id)*0x9E3779B97F4A7C15)>>58]
}

// insert registers an open accumulator. It fails if the identity is already open.
func (r *registry) insert(acc *accumulator) bool {
	s := r.shardFor(acc.id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.open[acc.id]; exists {
		return false
	}
	s.open[acc.id] = acc
	if s.tombs != nil {
		delete(s.tombs, acc.id)
	}
	r.open.Add(1)
	return true
}

func (r *registry) get(id ID) *accumulator {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open[id]
}

// remove drops an accumulator once its node is transferred and leaves a tombstone.
func (r *registry) remove(id ID) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.open[id]; !ok {
		return
	}
	delete(s.open, id)
	r.open.Add(-1)

	if len(s.ring) == 0 {
		return
	}
	old := s.ring[s.cursor]
	if seq, ok := s.tombs[old.id]; ok && seq == old.seq {
		delete(s.tombs, old.id)
	}
	s.seq++
	s.ring[s.cursor] = tomb{id: id, seq: s.seq}
	s.tombs[id] = s.seq
	s.cursor = (s.cursor + 1) % len(s.ring)
}

// transferred reports whether id was recently removed.
func (r *registry) transferred(id ID) bool {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tombs[id]
	return ok
}

// snapshot returns every accumulator open at the time of the call.
func (r *registry) snapshot() []*accumulator {
	accs := make([]*accumulator, 0, r.open.Load())
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, acc := range s.open {
			accs = append(accs, acc)
		}
		s.mu.RUnlock()
	}
	return accs
}

func (r *registry) len() int {
	return int(r.open.Load())
}
