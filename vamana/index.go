// Package vamana implements the streaming index core: the insert engine
// (C7) and the lazy-delete/consolidation engine (C8) built on top of
// vectorstore, tagmap, graph, search and prune. Its Index type is the
// counterpart of diskann.Index, generalized to slot reuse and fine-grained
// per-slot locking instead of DiskANN's append-only IDs and single
// graph-wide mutex.
package vamana

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"

	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/graph"
	"github.com/symphony233/vamanastream/internal/visited"
	"github.com/symphony233/vamanastream/tagmap"
	"github.com/symphony233/vamanastream/vectorstore"
)

// reservedTagBase is the first of NumFrozenPoints descending reserved tags
// handed to frozen slots, far outside any tag a driver would assign (the
// original driver's convention is row_index+1, so collisions would require
// billions of inserts).
const reservedTagBase = core.Tag(math.MaxUint32)

// Index is a streaming Vamana graph over fixed-dimension vectors.
type Index struct {
	cfg Config

	vectors *vectorstore.Store
	tags    *tagmap.Map
	g       *graph.Graph
	pool    *visited.Pool

	// structuralMu coordinates slot allocation and consolidation: held
	// exclusively by ConsolidateDeletes around its delete-set snapshot and
	// its free-list move, and by the slot-allocation step of Insert; held
	// for read by everything else that walks the graph, including
	// consolidation's repair pass.
	structuralMu sync.RWMutex

	deleteMu  sync.Mutex
	deleteSet *bitset.BitSet

	frozenMu    sync.RWMutex
	frozenSlots []core.SlotID

	deleteEnabled atomic.Bool
}

// New creates an empty Index. Call Build or InitFrozenRandom before any
// Insert to establish the frozen entry point(s).
func New(cfg Config) (*Index, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	vs, err := vectorstore.New(cfg.Dimension)
	if err != nil {
		return nil, wrapError(KindInvalidConfig, "failed to create vector store", err)
	}

	return &Index{
		cfg:       cfg,
		vectors:   vs,
		tags:      tagmap.New(),
		g:         graph.New(cfg.MaxDegree),
		pool:      visited.NewPool(1024),
		deleteSet: bitset.New(1024),
	}, nil
}

// Dimension returns the configured vector dimension.
func (idx *Index) Dimension() int { return idx.cfg.Dimension }

// ActivePoints returns the number of occupied, non-frozen slots currently
// bound to a user tag.
func (idx *Index) ActivePoints() int {
	idx.frozenMu.RLock()
	frozen := len(idx.frozenSlots)
	idx.frozenMu.RUnlock()
	return idx.tags.Occupied() - frozen
}

// MaxPoints returns the total number of slots ever allocated (the index's
// current capacity).
func (idx *Index) MaxPoints() int { return int(idx.tags.Capacity()) }

// EmptySlots returns the number of slots sitting in the free list.
func (idx *Index) EmptySlots() int { return idx.tags.FreeCount() }

// DeleteSetSize returns the number of slots currently lazily deleted and
// awaiting consolidation.
func (idx *Index) DeleteSetSize() int {
	idx.deleteMu.Lock()
	defer idx.deleteMu.Unlock()
	return int(idx.deleteSet.Count())
}

// FrozenSlots returns a copy of the permanent entry-point slots.
func (idx *Index) FrozenSlots() []core.SlotID {
	idx.frozenMu.RLock()
	defer idx.frozenMu.RUnlock()
	out := make([]core.SlotID, len(idx.frozenSlots))
	copy(out, idx.frozenSlots)
	return out
}

// EnableDelete arms LazyDelete. The original driver calls enable_delete()
// once after the initial build (or after setting a random start point) and
// before issuing any delete; this turns that ordering into an explicit,
// testable precondition rather than a silent assumption.
func (idx *Index) EnableDelete() error {
	if idx.tags.Occupied() == 0 {
		return newError(KindInvalidConfig, "cannot enable delete before the index has been built")
	}
	idx.deleteEnabled.Store(true)
	return nil
}

func (idx *Index) isDeleted(slot core.SlotID) bool {
	idx.deleteMu.Lock()
	defer idx.deleteMu.Unlock()
	return idx.deleteSet.Test(uint(slot))
}

func (idx *Index) notSelfOrDeleted(exclude core.SlotID) func(core.SlotID) bool {
	return func(s core.SlotID) bool {
		return s != exclude && !idx.isDeleted(s)
	}
}
