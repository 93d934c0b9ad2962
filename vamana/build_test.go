package vamana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symphony233/vamanastream/core"
)

func TestInitFrozenRandomPopulatesEntryPoints(t *testing.T) {
	idx, err := New(smallConfig(8))
	require.NoError(t, err)

	require.NoError(t, idx.InitFrozenRandom(10))
	frozen := idx.FrozenSlots()
	assert.Len(t, frozen, idx.cfg.NumFrozenPoints)
}

func TestInitFrozenRandomRejectsNonPositiveNorm(t *testing.T) {
	idx, err := New(smallConfig(8))
	require.NoError(t, err)
	assert.Error(t, idx.InitFrozenRandom(0))
}

func TestInitFrozenRandomRejectsDoubleInit(t *testing.T) {
	idx, err := New(smallConfig(8))
	require.NoError(t, err)
	require.NoError(t, idx.InitFrozenRandom(10))
	assert.Error(t, idx.InitFrozenRandom(10))
}

func TestBuildRejectsEmptyBatch(t *testing.T) {
	idx, err := New(smallConfig(8))
	require.NoError(t, err)
	assert.Error(t, idx.Build(nil, nil, 1))
}

func TestBuildRejectsMismatchedTagCount(t *testing.T) {
	idx, err := New(smallConfig(8))
	require.NoError(t, err)
	vecs := randomVectors(3, 8, 1)
	assert.Error(t, idx.Build(vecs, []core.Tag{1, 2}, 1))
}

func TestBuildBindsEveryTagAndEnablesSearchAfterward(t *testing.T) {
	idx, err := New(smallConfig(8))
	require.NoError(t, err)

	vecs := randomVectors(20, 8, 7)
	tags := make([]core.Tag, len(vecs))
	for i := range tags {
		tags[i] = core.Tag(i + 1)
	}

	require.NoError(t, idx.Build(vecs, tags, 2))
	assert.Equal(t, len(vecs), idx.ActivePoints())
	assert.Len(t, idx.FrozenSlots(), idx.cfg.NumFrozenPoints)

	require.NoError(t, idx.Insert(randomVectors(1, 8, 99)[0], core.Tag(len(vecs)+1)))
	assert.Equal(t, len(vecs)+1, idx.ActivePoints())
}

func TestBuildRejectsSecondCallAfterFrozenInit(t *testing.T) {
	idx, err := New(smallConfig(8))
	require.NoError(t, err)
	vecs := randomVectors(5, 8, 3)
	tags := []core.Tag{1, 2, 3, 4, 5}
	require.NoError(t, idx.Build(vecs, tags, 1))
	assert.Error(t, idx.Build(vecs, tags, 1))
}
