package vamana

import (
	"errors"

	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/prune"
	"github.com/symphony233/vamanastream/search"
	"github.com/symphony233/vamanastream/tagmap"
	"github.com/symphony233/vamanastream/vectorstore"
)

// Insert assigns vector to a new or reused slot, binds tag to it, and wires
// the graph so the new slot has at most MaxDegree outbound neighbors while
// at most MaxDegree other slots may transiently exceed MaxDegree (bounded
// by CandidateCap) before being pruned back. Mirrors the original driver's
// six-step insert_point algorithm.
func (idx *Index) Insert(vector []float32, tag core.Tag) error {
	if len(vector) != idx.cfg.Dimension {
		return newError(KindDimensionMismatch, "vector length does not match index dimension")
	}
	if tag == core.NoTag {
		return newError(KindInvalidConfig, "tag 0 is reserved and may not be assigned")
	}
	if _, exists := idx.tags.Resolve(tag); exists {
		return newError(KindDuplicateTag, "tag already resolves to a slot")
	}

	entrySlots := idx.FrozenSlots()
	if len(entrySlots) == 0 {
		return newError(KindInvalidConfig, "index has no frozen entry point; call Build or InitFrozenRandom first")
	}

	// Step 1: allocate slot, exclusive of a concurrent consolidation pass
	// reissuing the same freed slot.
	idx.structuralMu.Lock()
	if err := idx.checkCapacityLocked(); err != nil {
		idx.structuralMu.Unlock()
		return err
	}
	slot := idx.tags.AllocateSlot()
	idx.structuralMu.Unlock()

	// Steps 2-6 run under the structural read lock: concurrent with other
	// inserts and with search, excluded only by a consolidation barrier.
	idx.structuralMu.RLock()
	defer idx.structuralMu.RUnlock()

	// Step 2: store the vector.
	if err := idx.vectors.Set(slot, vector); err != nil {
		if errors.Is(err, vectorstore.ErrWrongDimension) {
			return newError(KindDimensionMismatch, "vector length does not match index dimension")
		}
		return wrapError(KindIOFailure, "failed to store vector", err)
	}
	idx.g.EnsureCapacity(int(slot) + 1)

	// Step 3: greedy search from the frozen entry points for the candidate set.
	result := search.Greedy(
		vector, idx.cfg.BeamWidth, entrySlots,
		idx.vectors, idx.g, idx.cfg.Metric, idx.pool,
		uint(idx.tags.Capacity()), idx.notSelfOrDeleted(slot),
	)

	// Step 4: prune the candidate set down to the new slot's outbound edges.
	candidates := toPruneCandidates(result.Explored)
	neighbors := prune.Prune(vector, candidates, idx.cfg.MaxDegree, idx.cfg.Alpha, idx.vectors, idx.cfg.Metric)
	if err := idx.g.Set(slot, neighbors); err != nil {
		return wrapError(KindIOFailure, "failed to set neighbor list", err)
	}

	// Step 5: back-edges, re-pruning any neighbor whose degree overflows
	// the candidate cap.
	for _, q := range neighbors {
		if err := idx.g.Append(q, slot); err != nil {
			continue
		}
		if idx.g.Degree(q) > idx.cfg.CandidateCap {
			if err := idx.repruneNeighbor(q); err != nil {
				return err
			}
		}
	}

	// Step 6: publish the tag last, so no reader observes slot before it
	// has a complete edge set.
	if err := idx.tags.Bind(tag, slot); err != nil {
		if errors.Is(err, tagmap.ErrDuplicateTag) {
			return newError(KindDuplicateTag, "tag already resolves to a slot")
		}
		return wrapError(KindIOFailure, "failed to bind tag", err)
	}
	return nil
}

func (idx *Index) checkCapacityLocked() error {
	if idx.cfg.MaxCapacity <= 0 {
		return nil
	}
	if idx.tags.FreeCount() > 0 {
		return nil
	}
	if int(idx.tags.Capacity()) >= idx.cfg.MaxCapacity {
		return newError(KindCapacity, "index has reached its configured maximum capacity")
	}
	return nil
}

// repruneNeighbor rewrites q's neighbor list using its current members as
// the candidate set, restoring the MaxDegree bound.
func (idx *Index) repruneNeighbor(q core.SlotID) error {
	qVec, err := idx.vectors.Get(q)
	if err != nil {
		return wrapError(KindIOFailure, "failed to read neighbor vector", err)
	}
	current := idx.g.Neighbors(q)
	candidates := make([]prune.Candidate, 0, len(current))
	for _, n := range current {
		nVec, err := idx.vectors.Get(n)
		if err != nil {
			continue
		}
		candidates = append(candidates, prune.Candidate{Slot: n, Distance: idx.cfg.Metric(qVec, nVec)})
	}
	pruned := prune.Prune(qVec, candidates, idx.cfg.MaxDegree, idx.cfg.Alpha, idx.vectors, idx.cfg.Metric)
	if err := idx.g.Set(q, pruned); err != nil {
		return wrapError(KindIOFailure, "failed to re-prune neighbor list", err)
	}
	return nil
}

func toPruneCandidates(explored []search.Candidate) []prune.Candidate {
	out := make([]prune.Candidate, len(explored))
	for i, c := range explored {
		out[i] = prune.Candidate{Slot: c.Slot, Distance: c.Distance}
	}
	return out
}
