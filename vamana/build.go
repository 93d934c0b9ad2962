package vamana

import (
	"math"
	"math/rand"

	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/parallel"
	"github.com/symphony233/vamanastream/prune"
	"github.com/symphony233/vamanastream/search"
)

// InitFrozenRandom initializes the frozen entry point(s) as random unit
// vectors scaled to norm, for the beginning_index_size == 0 case where
// there is no initial batch to derive a medoid from. Fails with
// InvalidConfig if norm <= 0 or the index already has frozen points.
func (idx *Index) InitFrozenRandom(norm float32) error {
	if norm <= 0 {
		return newError(KindInvalidConfig, "start_point_norm must be > 0 when beginning_index_size is 0")
	}
	idx.frozenMu.Lock()
	defer idx.frozenMu.Unlock()
	if len(idx.frozenSlots) > 0 {
		return newError(KindInvalidConfig, "frozen points already initialized")
	}

	for i := 0; i < idx.cfg.NumFrozenPoints; i++ {
		vec := randomUnitVector(idx.cfg.Dimension, norm)
		if err := idx.addFrozenSlot(vec, i); err != nil {
			return err
		}
	}
	return nil
}

// Build performs the initial batch load: each vector is searched for and
// pruned into the graph as Insert would, with its back-edges added as soon
// as its own list is set so later vectors in the batch can reach it; a
// second global pass then re-appends every missing back-edge, and tags are
// bound only after both passes. The frozen entry point is the batch's
// approximate medoid.
// tags must be the same length as vectors and free of duplicates and
// core.NoTag.
func (idx *Index) Build(vectors [][]float32, tags []core.Tag, workers int) error {
	if len(vectors) == 0 {
		return newError(KindInvalidConfig, "build requires at least one vector")
	}
	if len(tags) != len(vectors) {
		return newError(KindInvalidConfig, "tags and vectors must have the same length")
	}
	for _, v := range vectors {
		if len(v) != idx.cfg.Dimension {
			return newError(KindDimensionMismatch, "vector length does not match index dimension")
		}
	}

	idx.frozenMu.Lock()
	if len(idx.frozenSlots) > 0 {
		idx.frozenMu.Unlock()
		return newError(KindInvalidConfig, "frozen points already initialized")
	}
	medoid := approximateMedoid(vectors, idx.cfg.Metric)
	for i := 0; i < idx.cfg.NumFrozenPoints; i++ {
		if err := idx.addFrozenSlot(medoid, i); err != nil {
			idx.frozenMu.Unlock()
			return err
		}
	}
	idx.frozenMu.Unlock()

	entrySlots := idx.FrozenSlots()
	slots := make([]core.SlotID, len(vectors))

	// Pass 1: each point's outbound edges, computed against the graph as
	// built so far (frozen points plus whatever earlier indices in this
	// pass have already published). Parallel workers may race on exactly
	// which earlier points are visible; that only affects graph quality,
	// never correctness, since every write targets a distinct slot.
	err := parallel.For(workers, len(vectors), func(i int) error {
		slot := idx.tags.AllocateSlot()
		slots[i] = slot

		if err := idx.vectors.Set(slot, vectors[i]); err != nil {
			return wrapError(KindIOFailure, "failed to store vector", err)
		}
		idx.g.EnsureCapacity(int(slot) + 1)

		result := search.Greedy(
			vectors[i], idx.cfg.BeamWidth, entrySlots,
			idx.vectors, idx.g, idx.cfg.Metric, idx.pool,
			uint(idx.tags.Capacity()), idx.notSelfOrDeleted(slot),
		)
		candidates := toPruneCandidates(result.Explored)
		neighbors := prune.Prune(vectors[i], candidates, idx.cfg.MaxDegree, idx.cfg.Alpha, idx.vectors, idx.cfg.Metric)
		if err := idx.g.Set(slot, neighbors); err != nil {
			return err
		}
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
		return nil
	})
	if err != nil {
		return err
	}

	// Pass 2: global back-edge repair, re-pruning any slot whose degree
	// overflows the candidate cap.
	err = parallel.For(workers, len(vectors), func(i int) error {
		slot := slots[i]
		for _, q := range idx.g.Neighbors(slot) {
			if err := idx.g.Append(q, slot); err != nil {
				continue
			}
			if idx.g.Degree(q) > idx.cfg.CandidateCap {
				if err := idx.repruneNeighbor(q); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i, slot := range slots {
		if err := idx.tags.Bind(tags[i], slot); err != nil {
			return wrapError(KindIOFailure, "failed to bind tag during build", err)
		}
	}
	return nil
}

// addFrozenSlot allocates a slot for vec, tags it with a reserved tag far
// outside the driver's row_index+1 convention, and records it as frozen.
// Caller must hold frozenMu.
func (idx *Index) addFrozenSlot(vec []float32, ordinal int) error {
	slot := idx.tags.AllocateSlot()
	if err := idx.vectors.Set(slot, vec); err != nil {
		return wrapError(KindIOFailure, "failed to store frozen vector", err)
	}
	idx.g.EnsureCapacity(int(slot) + 1)
	reserved := reservedTagBase - core.Tag(ordinal) //nolint:gosec
	if err := idx.tags.Bind(reserved, slot); err != nil {
		return wrapError(KindIOFailure, "failed to bind reserved frozen tag", err)
	}
	idx.frozenSlots = append(idx.frozenSlots, slot)
	return nil
}

func randomUnitVector(dim int, norm float32) []float32 {
	v := make([]float32, dim)
	var sumSq float64
	for i := range v {
		x := rand.Float64()*2 - 1 //nolint:gosec
		v[i] = float32(x)
		sumSq += x * x
	}
	length := math.Sqrt(sumSq)
	if length == 0 {
		length = 1
	}
	scale := float32(norm / float32(length))
	for i := range v {
		v[i] *= scale
	}
	return v
}

// approximateMedoid returns the batch vector closest to the batch centroid,
// an O(n) approximation of the exact O(n^2) medoid.
func approximateMedoid(vectors [][]float32, dist func(a, b []float32) float32) []float32 {
	dim := len(vectors[0])
	centroid := make([]float32, dim)
	for _, v := range vectors {
		for i, x := range v {
			centroid[i] += x
		}
	}
	n := float32(len(vectors))
	for i := range centroid {
		centroid[i] /= n
	}

	best := vectors[0]
	bestDist := dist(centroid, best)
	for _, v := range vectors[1:] {
		d := dist(centroid, v)
		if d < bestDist {
			bestDist = d
			best = v
		}
	}
	out := make([]float32, dim)
	copy(out, best)
	return out
}
