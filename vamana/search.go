package vamana

import (
	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/search"
)

// Neighbor pairs a result tag with its distance to the query that produced
// it.
type Neighbor struct {
	Tag      core.Tag
	Distance float32
}

// Search returns the k nearest active points to query: greedy traversal
// from the frozen entry points with beam width l (raised to k if given
// smaller), filtering out frozen and lazily deleted slots before tags are
// resolved. Runs under the same structural read lock Insert's steps 2-6
// and ConsolidateDeletes's repair pass hold, so none of the three blocks
// the others.
func (idx *Index) Search(query []float32, k, l int) ([]Neighbor, error) {
	if len(query) != idx.cfg.Dimension {
		return nil, newError(KindDimensionMismatch, "query length does not match index dimension")
	}
	if k <= 0 {
		return nil, newError(KindInvalidConfig, "k must be positive")
	}
	if l < k {
		l = k
	}

	entrySlots := idx.FrozenSlots()
	if len(entrySlots) == 0 {
		return nil, newError(KindInvalidConfig, "index has no frozen entry point; call Build or InitFrozenRandom first")
	}

	idx.structuralMu.RLock()
	defer idx.structuralMu.RUnlock()

	frozen := make(map[core.SlotID]bool, len(entrySlots))
	for _, s := range entrySlots {
		frozen[s] = true
	}

	result := search.Greedy(
		query, l, entrySlots,
		idx.vectors, idx.g, idx.cfg.Metric, idx.pool,
		uint(idx.tags.Capacity()),
		func(s core.SlotID) bool { return !frozen[s] && !idx.isDeleted(s) },
	)

	out := make([]Neighbor, 0, k)
	for _, c := range result.Beam {
		tag, ok := idx.tags.TagOf(c.Slot)
		if !ok {
			continue
		}
		out = append(out, Neighbor{Tag: tag, Distance: c.Distance})
		if len(out) == k {
			break
		}
	}
	return out, nil
}
