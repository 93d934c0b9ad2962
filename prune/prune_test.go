package prune

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/metric"
)

type fakeStore struct {
	vecs map[core.SlotID][]float32
}

func (f *fakeStore) Get(slot core.SlotID) ([]float32, error) {
	v, ok := f.vecs[slot]
	if !ok {
		return nil, assert.AnError
	}
	return v, nil
}

func TestPruneRespectsDegreeBound(t *testing.T) {
	store := &fakeStore{vecs: map[core.SlotID][]float32{
		1: {1}, 2: {2}, 3: {3}, 4: {4},
	}}
	cands := []Candidate{
		{Slot: 1, Distance: 1}, {Slot: 2, Distance: 4}, {Slot: 3, Distance: 9}, {Slot: 4, Distance: 16},
	}

	chosen := Prune([]float32{0}, cands, 2, 1.2, store, metric.SquaredL2)
	assert.LessOrEqual(t, len(chosen), 2)
}

func TestPruneAlphaOneDropsCoveredCandidates(t *testing.T) {
	// center=0, candidates at 1,2,3 colinear: with alpha=1, 2 is covered by 1
	// since dist(1,2)=1 <= dist(0,2)=4, and 3 is covered by 1 or 2.
	store := &fakeStore{vecs: map[core.SlotID][]float32{
		1: {1}, 2: {2}, 3: {3},
	}}
	cands := []Candidate{
		{Slot: 1, Distance: 1}, {Slot: 2, Distance: 4}, {Slot: 3, Distance: 9},
	}

	chosen := Prune([]float32{0}, cands, 3, 1.0, store, metric.SquaredL2)
	assert.Equal(t, []core.SlotID{1}, chosen)
}

func TestPruneLargerAlphaYieldsDenserResult(t *testing.T) {
	store := &fakeStore{vecs: map[core.SlotID][]float32{
		1: {1}, 2: {2}, 3: {3},
	}}
	cands := []Candidate{
		{Slot: 1, Distance: 1}, {Slot: 2, Distance: 4}, {Slot: 3, Distance: 9},
	}

	chosen := Prune([]float32{0}, cands, 3, 100.0, store, metric.SquaredL2)
	assert.Len(t, chosen, 3)
}

func TestPruneStableSortOnTies(t *testing.T) {
	store := &fakeStore{vecs: map[core.SlotID][]float32{
		5: {1}, 2: {1},
	}}
	cands := []Candidate{
		{Slot: 5, Distance: 1}, {Slot: 2, Distance: 1},
	}
	chosen := Prune([]float32{0}, cands, 2, 100.0, store, metric.SquaredL2)
	require := assert.New(t)
	require.Equal(core.SlotID(2), chosen[0], "smaller slot ID wins on equal distance")
}

func TestPruneEmptyInputs(t *testing.T) {
	store := &fakeStore{vecs: map[core.SlotID][]float32{}}
	assert.Nil(t, Prune([]float32{0}, nil, 4, 1.2, store, metric.SquaredL2))
	assert.Nil(t, Prune([]float32{0}, []Candidate{{Slot: 1, Distance: 1}}, 0, 1.2, store, metric.SquaredL2))
}
