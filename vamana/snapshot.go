package vamana

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/snapshot"
)

// SaveSnapshot writes the index's graph, tag map, and vector store to dir
// via snapshot.Save. It takes the structural read lock, the same barrier a
// search or insert would, so it waits out consolidation's two exclusive
// sections; consolidation's repair pass also holds that lock only for read,
// so a snapshot taken during it can capture neighbor lists mid-repair.
func (idx *Index) SaveSnapshot(dir string) error {
	idx.structuralMu.RLock()
	defer idx.structuralMu.RUnlock()

	idx.frozenMu.RLock()
	frozen := make([]core.SlotID, len(idx.frozenSlots))
	copy(frozen, idx.frozenSlots)
	idx.frozenMu.RUnlock()

	meta := snapshot.Meta{
		Dimension:    idx.cfg.Dimension,
		MaxDegree:    idx.cfg.MaxDegree,
		BeamWidth:    idx.cfg.BeamWidth,
		Alpha:        idx.cfg.Alpha,
		ActivePoints: idx.ActivePoints(),
		FrozenSlots:  frozen,
	}

	w := snapshot.Writer{Graph: idx.g, Tags: idx.tags, Vectors: idx.vectors}
	if err := snapshot.Save(dir, w, meta); err != nil {
		return wrapError(KindIOFailure, "failed to save snapshot", err)
	}
	return nil
}

// LoadSnapshot replaces the index's graph, tag map, vector store, and
// frozen-point set with the contents of dir, as written by SaveSnapshot.
// The index must already be configured with the snapshot's dimension and
// degree bound; callers typically call this immediately after New.
func (idx *Index) LoadSnapshot(dir string) (snapshot.Meta, error) {
	idx.structuralMu.Lock()
	defer idx.structuralMu.Unlock()

	r := snapshot.Reader{Graph: idx.g, Tags: idx.tags, Vectors: idx.vectors}
	meta, err := snapshot.Load(dir, r)
	if err != nil {
		return snapshot.Meta{}, wrapError(KindIOFailure, "failed to load snapshot", err)
	}

	idx.frozenMu.Lock()
	idx.frozenSlots = make([]core.SlotID, len(meta.FrozenSlots))
	copy(idx.frozenSlots, meta.FrozenSlots)
	idx.frozenMu.Unlock()

	idx.deleteMu.Lock()
	idx.deleteSet = bitset.New(uint(idx.tags.Capacity()))
	idx.deleteMu.Unlock()

	return meta, nil
}
