// Package graph holds the per-slot outbound neighbor lists of the proximity
// graph. The teacher's DiskANN index guards its whole adjacency table with a
// single graphMu; this package generalizes that to one lock per slot so
// searches on unrelated slots never contend with an insert's edge rewrite.
// Growth is the one operation that touches every slot's storage at once, so
// it takes capMu exclusively while every per-slot operation holds it only
// for read — the same shared-for-readers/exclusive-for-growth shape as the
// structural lock the rest of the index uses around slot allocation.
package graph

import (
	"errors"
	"sync"

	"github.com/symphony233/vamanastream/core"
)

// ErrCapacityExceeded is returned by Set when the neighbor list would exceed
// the configured max degree.
var ErrCapacityExceeded = errors.New("graph: neighbor list exceeds max degree")

// Graph is a slot-indexed table of outbound neighbor lists, each guarded by
// its own lock.
type Graph struct {
	capMu sync.RWMutex

	maxDegree int
	rows      [][]core.SlotID
	locks     []sync.RWMutex
}

// New creates an empty Graph bounding every neighbor list to maxDegree
// entries under Set (Append is unbounded, to allow the transient overflow
// the insert engine prunes back afterward).
func New(maxDegree int) *Graph {
	return &Graph{maxDegree: maxDegree}
}

// EnsureCapacity grows the table so slots [0, capacity) are addressable.
// It blocks until every in-flight per-slot operation has released capMu.
func (g *Graph) EnsureCapacity(capacity int) {
	g.capMu.Lock()
	defer g.capMu.Unlock()

	if capacity <= len(g.rows) {
		return
	}
	newCap := capacity
	if grown := len(g.rows) * 2; grown > newCap {
		newCap = grown
	}
	newRows := make([][]core.SlotID, newCap)
	copy(newRows, g.rows)
	newLocks := make([]sync.RWMutex, newCap)
	g.rows = newRows
	g.locks = newLocks
}

// Capacity returns the number of slots currently addressable.
func (g *Graph) Capacity() int {
	g.capMu.RLock()
	defer g.capMu.RUnlock()
	return len(g.rows)
}

// Neighbors returns a copy of slot's outbound neighbor list, safe to use
// without holding any lock.
func (g *Graph) Neighbors(slot core.SlotID) []core.SlotID {
	g.capMu.RLock()
	defer g.capMu.RUnlock()

	lock := &g.locks[int(slot)]
	lock.RLock()
	defer lock.RUnlock()

	row := g.rows[int(slot)]
	out := make([]core.SlotID, len(row))
	copy(out, row)
	return out
}

// Degree returns the current outbound degree of slot.
func (g *Graph) Degree(slot core.SlotID) int {
	g.capMu.RLock()
	defer g.capMu.RUnlock()

	lock := &g.locks[int(slot)]
	lock.RLock()
	defer lock.RUnlock()
	return len(g.rows[int(slot)])
}

// Set replaces slot's neighbor list wholesale, e.g. after robust pruning.
// Rejects self-loops, duplicates, and lists longer than maxDegree.
func (g *Graph) Set(slot core.SlotID, neighbors []core.SlotID) error {
	if err := validate(slot, neighbors, g.maxDegree); err != nil {
		return err
	}

	g.capMu.RLock()
	defer g.capMu.RUnlock()

	lock := &g.locks[int(slot)]
	lock.Lock()
	defer lock.Unlock()

	row := make([]core.SlotID, len(neighbors))
	copy(row, neighbors)
	g.rows[int(slot)] = row
	return nil
}

// Append adds neighbor to slot's list if it is not already present and is
// not a self-loop. It does not enforce maxDegree: the insert engine allows
// transient overflow up to the candidate cap before re-pruning.
func (g *Graph) Append(slot, neighbor core.SlotID) error {
	if neighbor == slot {
		return errors.New("graph: self-loop rejected")
	}

	g.capMu.RLock()
	defer g.capMu.RUnlock()

	lock := &g.locks[int(slot)]
	lock.Lock()
	defer lock.Unlock()

	for _, n := range g.rows[int(slot)] {
		if n == neighbor {
			return nil
		}
	}
	g.rows[int(slot)] = append(g.rows[int(slot)], neighbor)
	return nil
}

// Clear empties slot's neighbor list, used when a slot is freed by
// consolidation.
func (g *Graph) Clear(slot core.SlotID) {
	g.capMu.RLock()
	defer g.capMu.RUnlock()

	lock := &g.locks[int(slot)]
	lock.Lock()
	defer lock.Unlock()
	g.rows[int(slot)] = nil
}

// LoadRows replaces the graph's contents wholesale with rows, sized to
// len(rows). Used when restoring a graph from a snapshot; validation is the
// caller's responsibility since a saved graph may have transiently
// exceeded maxDegree at save time.
func (g *Graph) LoadRows(rows [][]core.SlotID) {
	g.capMu.Lock()
	defer g.capMu.Unlock()

	g.rows = make([][]core.SlotID, len(rows))
	copy(g.rows, rows)
	g.locks = make([]sync.RWMutex, len(rows))
}

func validate(slot core.SlotID, neighbors []core.SlotID, maxDegree int) error {
	if maxDegree > 0 && len(neighbors) > maxDegree {
		return ErrCapacityExceeded
	}
	seen := make(map[core.SlotID]struct{}, len(neighbors))
	for _, n := range neighbors {
		if n == slot {
			return errors.New("graph: self-loop rejected")
		}
		if _, dup := seen[n]; dup {
			return errors.New("graph: duplicate neighbor rejected")
		}
		seen[n] = struct{}{}
	}
	return nil
}
