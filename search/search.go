// Package search implements the beam-style greedy traversal used both to
// answer a query and, as a building block, to gather the candidate set an
// insert prunes down to its outbound edges. It is grounded on
// findNeighborsForInsertWithGraph: a min-heap frontier of unexpanded
// candidates, a visited bitset to avoid recomputing distances, and an
// early-exit once the frontier's best can no longer improve the beam.
package search

import (
	"sort"

	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/internal/queue"
	"github.com/symphony233/vamanastream/internal/visited"
	"github.com/symphony233/vamanastream/metric"
)

// VectorSource resolves a slot to its stored vector.
type VectorSource interface {
	Get(slot core.SlotID) ([]float32, error)
}

// NeighborSource resolves a slot to its current outbound neighbor list.
type NeighborSource interface {
	Neighbors(slot core.SlotID) []core.SlotID
}

// Candidate pairs a slot with its distance to the query that seeded the
// search it was found in.
type Candidate struct {
	Slot     core.SlotID
	Distance float32
}

// Result is the outcome of a greedy search: the L closest slots found
// (Beam, ascending by distance, smaller slot ID breaking ties) and every
// slot whose distance was computed along the way (Explored), which is the
// candidate superset robust pruning consumes.
type Result struct {
	Beam     []Candidate
	Explored []Candidate
}

// Greedy runs best-first traversal from entrySlots toward query, expanding
// the closest unexpanded candidate at each step until no frontier candidate
// can still beat the current L-th best. Deleted slots are traversed (their
// edges are followed) but filterResult lets the caller exclude them from the
// returned beam; pass nil to keep everything.
func Greedy(
	query []float32,
	l int,
	entrySlots []core.SlotID,
	vectors VectorSource,
	neighbors NeighborSource,
	dist metric.Func,
	pool *visited.Pool,
	capacityHint uint,
	filterResult func(core.SlotID) bool,
) Result {
	seen := pool.Get(capacityHint)
	defer pool.Put(seen)

	frontier := queue.NewMin(l * 4)
	var beam []Candidate
	var explored []Candidate

	admit := func(slot core.SlotID) {
		if seen.Visit(uint32(slot)) {
			return
		}
		v, err := vectors.Get(slot)
		if err != nil {
			return
		}
		d := dist(query, v)
		explored = append(explored, Candidate{Slot: slot, Distance: d})
		frontier.PushItem(queue.PriorityQueueItem{Node: uint32(slot), Distance: d})
		if filterResult == nil || filterResult(slot) {
			beam = insertBeam(beam, Candidate{Slot: slot, Distance: d}, l)
		}
	}

	for _, e := range entrySlots {
		admit(e)
	}

	for frontier.Len() > 0 {
		item, ok := frontier.PopItem()
		if !ok {
			break
		}
		if len(beam) >= l {
			kth := beam[l-1]
			if !closer(item.Distance, core.SlotID(item.Node), kth.Distance, kth.Slot) { //nolint:gosec
				break
			}
		}

		for _, n := range neighbors.Neighbors(core.SlotID(item.Node)) { //nolint:gosec
			admit(n)
		}
	}

	sort.Slice(explored, func(i, j int) bool {
		return closer(explored[i].Distance, explored[i].Slot, explored[j].Distance, explored[j].Slot)
	})

	return Result{Beam: beam, Explored: explored}
}

// closer reports whether (distA, slotA) sorts strictly before (distB, slotB)
// under the spec's tie-break rule: smaller slot ID wins on equal distance.
func closer(distA float32, slotA core.SlotID, distB float32, slotB core.SlotID) bool {
	if distA != distB {
		return distA < distB
	}
	return slotA < slotB
}

// insertBeam inserts c into the sorted beam, keeping it capped at l entries.
func insertBeam(beam []Candidate, c Candidate, l int) []Candidate {
	idx := sort.Search(len(beam), func(i int) bool {
		return closer(c.Distance, c.Slot, beam[i].Distance, beam[i].Slot)
	})
	if idx == len(beam) {
		if len(beam) >= l {
			return beam
		}
		return append(beam, c)
	}
	beam = append(beam, Candidate{})
	copy(beam[idx+1:], beam[idx:])
	beam[idx] = c
	if len(beam) > l {
		beam = beam[:l]
	}
	return beam
}
