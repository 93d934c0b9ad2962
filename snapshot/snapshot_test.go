package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/graph"
	"github.com/symphony233/vamanastream/tagmap"
	"github.com/symphony233/vamanastream/vectorstore"
)

func TestNameWithoutSkip(t *testing.T) {
	assert.Equal(t, "out/del10-1000", Name("out/", 0, 10, 1000))
}

func TestNameWithSkip(t *testing.T) {
	assert.Equal(t, "out/skip5-del10-1000", Name("out/", 5, 10, 1000))
}

func buildComponents(t *testing.T) (*graph.Graph, *tagmap.Map, *vectorstore.Store) {
	t.Helper()
	g := graph.New(4)
	g.EnsureCapacity(3)
	require.NoError(t, g.Set(core.SlotID(0), []core.SlotID{1, 2}))
	require.NoError(t, g.Set(core.SlotID(1), []core.SlotID{0}))

	tags := tagmap.New()
	for i := 0; i < 3; i++ {
		slot := tags.AllocateSlot()
		require.NoError(t, tags.Bind(core.Tag(i+1), slot))
	}

	vs, err := vectorstore.New(4)
	require.NoError(t, err)
	require.NoError(t, vs.Set(core.SlotID(0), []float32{1, 2, 3, 4}))
	require.NoError(t, vs.Set(core.SlotID(1), []float32{5, 6, 7, 8}))
	require.NoError(t, vs.Set(core.SlotID(2), []float32{9, 10, 11, 12}))

	return g, tags, vs
}

func testMeta() Meta {
	return Meta{
		Dimension:    4,
		MaxDegree:    8,
		BeamWidth:    16,
		Alpha:        1.2,
		ActivePoints: 2,
		FrozenSlots:  []core.SlotID{2},
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	g, tags, vs := buildComponents(t)

	dir := filepath.Join(t.TempDir(), "snap")
	require.NoError(t, Save(dir, Writer{Graph: g, Tags: tags, Vectors: vs}, testMeta()))

	restoredGraph := graph.New(4)
	restoredTags := tagmap.New()
	restoredVectors, err := vectorstore.New(4)
	require.NoError(t, err)

	meta, err := Load(dir, Reader{Graph: restoredGraph, Tags: restoredTags, Vectors: restoredVectors})
	require.NoError(t, err)
	assert.Equal(t, testMeta(), meta)

	assert.Equal(t, []core.SlotID{1, 2}, restoredGraph.Neighbors(core.SlotID(0)))
	assert.Equal(t, []core.SlotID{0}, restoredGraph.Neighbors(core.SlotID(1)))

	slot, ok := restoredTags.Resolve(core.Tag(2))
	require.True(t, ok)
	v, err := restoredVectors.Get(slot)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6, 7, 8}, v)
}

func TestSaveIsByteIdenticalAcrossRepeatedCalls(t *testing.T) {
	g, tags, vs := buildComponents(t)
	writer := Writer{Graph: g, Tags: tags, Vectors: vs}
	meta := testMeta()

	firstDir := filepath.Join(t.TempDir(), "snap")
	require.NoError(t, Save(firstDir, writer, meta))

	secondDir := filepath.Join(t.TempDir(), "snap")
	require.NoError(t, Save(secondDir, writer, meta))

	for _, name := range []string{metaFile, graphFile, tagsFile, vectorFile} {
		a, err := os.ReadFile(filepath.Join(firstDir, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(secondDir, name))
		require.NoError(t, err)
		assert.Equal(t, a, b, "%s differs between two Save calls over the same state", name)
	}
}

func TestLoadDetectsCorruptedDataFile(t *testing.T) {
	g, tags, vs := buildComponents(t)

	dir := filepath.Join(t.TempDir(), "snap")
	require.NoError(t, Save(dir, Writer{Graph: g, Tags: tags, Vectors: vs}, testMeta()))

	graphPath := filepath.Join(dir, graphFile)
	data, err := os.ReadFile(graphPath)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(graphPath, data, 0o600))

	restoredGraph := graph.New(4)
	restoredTags := tagmap.New()
	restoredVectors, err := vectorstore.New(4)
	require.NoError(t, err)

	_, err = Load(dir, Reader{Graph: restoredGraph, Tags: restoredTags, Vectors: restoredVectors})
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestSaveRejectsUncreatableDirectory(t *testing.T) {
	g, tags, vs := buildComponents(t)

	// A directory that cannot be created: its parent is a plain file.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	badDir := filepath.Join(blocker, "snap")

	err := Save(badDir, Writer{Graph: g, Tags: tags, Vectors: vs}, testMeta())
	assert.Error(t, err)
}
