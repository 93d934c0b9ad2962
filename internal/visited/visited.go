// Package visited tracks slots seen during a single greedy-search traversal
// and pools the underlying bitsets so repeated searches don't churn
// allocations — the same trade-off a DiskANN index's visitedPool of
// *bitset.BitSet makes.
package visited

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Set tracks which slot IDs have been seen during one search.
type Set struct {
	bits *bitset.BitSet
}

func newSet(capacity uint) *Set {
	return &Set{bits: bitset.New(capacity)}
}

// Visit marks id as seen and reports whether it was already seen.
func (s *Set) Visit(id uint32) (alreadySeen bool) {
	u := uint(id)
	if s.bits.Test(u) {
		return true
	}
	s.bits.Set(u)
	return false
}

// Seen reports whether id has been marked.
func (s *Set) Seen(id uint32) bool {
	return s.bits.Test(uint(id))
}

func (s *Set) ensureCapacity(capacity uint) {
	if s.bits.Len() < capacity {
		s.bits = bitset.New(capacity)
	}
}

func (s *Set) reset() {
	s.bits.ClearAll()
}

// Pool hands out reset, appropriately sized Sets for reuse across searches.
// Mirrors the visitedPool field on diskann.Index.
type Pool struct {
	pool sync.Pool
}

// NewPool creates a Pool whose Sets start with room for initialCapacity
// slot IDs; Get grows a borrowed Set if the caller needs more room.
func NewPool(initialCapacity uint) *Pool {
	if initialCapacity == 0 {
		initialCapacity = 1024
	}
	p := &Pool{}
	p.pool.New = func() any {
		return newSet(initialCapacity)
	}
	return p
}

// Get returns a cleared Set with at least the requested capacity.
func (p *Pool) Get(capacity uint) *Set {
	s := p.pool.Get().(*Set)
	s.reset()
	s.ensureCapacity(capacity)
	return s
}

// Put returns s to the pool for reuse.
func (p *Pool) Put(s *Set) {
	if s != nil {
		p.pool.Put(s)
	}
}
