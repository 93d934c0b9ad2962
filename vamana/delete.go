package vamana

import (
	"errors"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/parallel"
	"github.com/symphony233/vamanastream/prune"
	"github.com/symphony233/vamanastream/tagmap"
)

// Report summarizes a consolidation pass, mirroring the original driver's
// printed fields (_active_points, _max_points, _empty_slots,
// _slots_released, _delete_set_size, _time).
type Report struct {
	ActivePoints  int
	MaxPoints     int
	EmptySlots    int
	SlotsReleased int
	DeleteSetSize int
	Time          time.Duration
}

// LazyDelete moves tag's slot into the delete set and removes the tag <->
// slot binding, leaving the vector, its outbound list, and all inbound
// edges intact until the next ConsolidateDeletes. Fails with InvalidConfig
// if EnableDelete has not been called, and UnknownTag if tag does not
// resolve.
func (idx *Index) LazyDelete(tag core.Tag) error {
	if !idx.deleteEnabled.Load() {
		return newError(KindInvalidConfig, "delete is not enabled; call EnableDelete first")
	}

	slot, err := idx.tags.Unbind(tag)
	if err != nil {
		if errors.Is(err, tagmap.ErrUnknownTag) {
			return newError(KindUnknownTag, "tag does not resolve to a slot")
		}
		return wrapError(KindIOFailure, "failed to unbind tag", err)
	}

	idx.deleteMu.Lock()
	idx.deleteSet.Set(uint(slot))
	idx.deleteMu.Unlock()
	return nil
}

// ConsolidateDeletes performs a single batched repair removing every
// deleted slot from the graph, returning each to the free list. After it
// returns, no occupied slot's neighbor list references a deleted slot.
// workers <= 0 uses parallel.For's default (GOMAXPROCS).
//
// The repair pass only rewrites existing edges through graph's own per-slot
// locks and never touches slot allocation bookkeeping, so it runs under
// structuralMu.RLock() — the same lock Insert's steps 2-6 hold — instead of
// an exclusive lock. That lets live inserts and a consolidation pass overlap
// rather than one stalling the other for the whole pass. structuralMu.Lock()
// is taken only around the two points that do touch allocation state:
// snapshotting the delete set up front, and moving repaired slots onto the
// free list at the end.
func (idx *Index) ConsolidateDeletes(workers int) (Report, error) {
	start := time.Now()

	idx.structuralMu.Lock()
	idx.deleteMu.Lock()
	deleted := idx.deleteSet.Clone()
	idx.deleteMu.Unlock()

	capacity := int(idx.tags.Capacity())
	deletedCount := int(deleted.Count())

	if deletedCount == 0 {
		defer idx.structuralMu.Unlock()
		return idx.reportLocked(0, start), nil
	}

	free := make(map[core.SlotID]bool)
	for _, s := range idx.tags.FreeSlots() {
		free[s] = true
	}
	idx.structuralMu.Unlock()

	idx.structuralMu.RLock()
	err := parallel.For(workers, capacity, func(i int) error {
		slot := core.SlotID(i) //nolint:gosec
		if free[slot] || deleted.Test(uint(slot)) {
			return nil
		}
		idx.repairSlot(slot, deleted)
		return nil
	})
	idx.structuralMu.RUnlock()
	if err != nil {
		return Report{}, wrapError(KindIOFailure, "consolidation repair failed", err)
	}

	idx.structuralMu.Lock()
	for i := 0; i < capacity; i++ {
		slot := core.SlotID(i) //nolint:gosec
		if !deleted.Test(uint(slot)) {
			continue
		}
		idx.g.Clear(slot)
		idx.tags.FreeSlot(slot)
	}
	idx.structuralMu.Unlock()

	idx.deleteMu.Lock()
	idx.deleteSet.ClearAll()
	idx.deleteMu.Unlock()

	return idx.reportLocked(deletedCount, start), nil
}

func (idx *Index) reportLocked(slotsReleased int, start time.Time) Report {
	idx.frozenMu.RLock()
	frozen := len(idx.frozenSlots)
	idx.frozenMu.RUnlock()

	return Report{
		ActivePoints:  idx.tags.Occupied() - frozen,
		MaxPoints:     int(idx.tags.Capacity()),
		EmptySlots:    idx.tags.FreeCount(),
		SlotsReleased: slotsReleased,
		DeleteSetSize: idx.DeleteSetSize(),
		Time:          time.Since(start),
	}
}

// repairSlot rewrites p's neighbor list to drop references to deleted
// slots, replacing each with members of the deleted neighbor's own
// neighborhood. The expanded set is re-pruned whenever p had a deleted
// neighbor or the set exceeds MaxDegree; otherwise p's list is left as is.
func (idx *Index) repairSlot(p core.SlotID, deleted *bitset.BitSet) {
	current := idx.g.Neighbors(p)

	hasDeleted := false
	expand := make(map[core.SlotID]struct{}, len(current))
	for _, n := range current {
		if deleted.Test(uint(n)) {
			hasDeleted = true
			for _, d2 := range idx.g.Neighbors(n) {
				if d2 != p && !deleted.Test(uint(d2)) {
					expand[d2] = struct{}{}
				}
			}
			continue
		}
		expand[n] = struct{}{}
	}

	if !hasDeleted && len(expand) <= idx.cfg.MaxDegree {
		return
	}

	pVec, err := idx.vectors.Get(p)
	if err != nil {
		return
	}
	candidates := make([]prune.Candidate, 0, len(expand))
	for s := range expand {
		v, err := idx.vectors.Get(s)
		if err != nil {
			continue
		}
		candidates = append(candidates, prune.Candidate{Slot: s, Distance: idx.cfg.Metric(pVec, v)})
	}

	pruned := prune.Prune(pVec, candidates, idx.cfg.MaxDegree, idx.cfg.Alpha, idx.vectors, idx.cfg.Metric)
	_ = idx.g.Set(p, pruned)
}
