package topology

import (
	"github.com/dogmatiq/cosyne"
	"github.com/dogmatiq/retrospect/gateway"
)

// record is an entry in the cache.
type record struct {
	id    string
	cache *Cache

	m         cosyne.Mutex
	state     state
	keep      bool
	populated bool
	nodes     []gateway.Node
}

// keepAlive resets the TTL for this record, and instructs the cache to keep
// the record when it is released.
//
// If keepAlive() is NOT called, the assumption is that the topology could
// not be resolved and the record should not linger in the cache.
func (r *record) keepAlive() {
	r.keep = true
	r.state = active
}

// release unlocks this record, allowing the key to be acquired by other
// callers.
//
// If keepAlive() has not been called since the record was acquired, the
// record is removed from the cache.
func (r *record) release() {
	if r.keep {
		r.keep = false // for the next acquirer
	} else {
		r.remove()
	}

	r.m.Unlock()
}

// remove removes r from the cache.
func (r *record) remove() {
	r.state = removed
	r.cache.records.Delete(r.id)
}

// evict marks the record for eviction (idle), or actually evicts it if it's
// already marked.
func (r *record) evict() {
	if !r.m.TryLock() {
		return
	}
	defer r.m.Unlock()

	switch r.state {
	case active:
		// Mark the record as idle, if it's still idle on the next tick
		// we'll remove it.
		r.state = idle
	case idle:
		// It's still idle, meaning it hasn't been acquired since the last
		// tick.
		r.remove()
	}
}

// state is an enumeration that describes the record's state in the cache.
type state int

const (
	active  state = iota // the record is in the cache, it may be locked or unlocked
	idle                 // the record has been marked for eviction on the next cycle
	removed              // the record has been removed from the cache, and is invalid
)
