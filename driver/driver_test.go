package driver

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symphony233/vamanastream/config"
	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/vamana"
)

// lcg is a tiny deterministic pseudo-random generator, used instead of
// math/rand so every test run builds the exact same vector file.
func lcg(seed uint64) func() float32 {
	state := seed
	return func() float32 {
		state = state*6364136223846793005 + 1442695040888963407
		return float32(state>>40) / float32(1<<24)
	}
}

func writeVectorFile(t *testing.T, path string, n, dim int, seed uint64) [][]float32 {
	t.Helper()
	next := lcg(seed)

	rows := make([][]float32, n)
	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.LittleEndian, int32(n)))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, int32(dim)))
	for i := range rows {
		row := make([]float32, dim)
		for j := range row {
			row[j] = next()
		}
		rows[i] = row
		for _, x := range row {
			require.NoError(t, binary.Write(buf, binary.LittleEndian, math.Float32bits(x)))
		}
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return rows
}

func testConfig(t *testing.T, n, dim int) config.Resolved {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.bin")
	writeVectorFile(t, path, n, dim, 7)

	cfg := config.Config{
		DataPath:               path,
		Scalar:                 "float",
		DistanceFn:              "l2",
		MaxDegree:               4,
		BeamWidth:               8,
		Alpha:                   1.2,
		NumThreads:              2,
		PointsPerCheckpoint:     5,
		CheckpointsPerSnapshot:  2,
		BeginningIndexSize:      10,
		SnapshotPathPrefix:      filepath.Join(dir, "out."),
	}
	resolved, err := config.Validate(cfg, n)
	require.NoError(t, err)
	return resolved
}

func TestRunBuildsAndInsertsAllPoints(t *testing.T) {
	cfg := testConfig(t, 30, 6)

	d, err := New(cfg, NoopLogger())
	require.NoError(t, err)
	defer d.Close()

	report, err := d.Run(context.Background())
	require.NoError(t, err)

	// BeginningIndexSize (10) is clamped down to PointsPerCheckpoint (5)
	// by config.Validate since CheckpointsPerSnapshot > 0.
	assert.Equal(t, 5, report.PointsBuilt)
	assert.Equal(t, 25, report.PointsInserted)
	assert.Equal(t, 30, d.Index().ActivePoints())
	assert.Greater(t, report.SnapshotsSaved, 0)

	_, err = os.Stat(report.FinalSnapshot)
	require.NoError(t, err)
}

func TestRunWithSequentialDeleteWindow(t *testing.T) {
	cfg := testConfig(t, 30, 6)
	cfg.PointsToDeleteFromBeginning = 5

	d, err := New(cfg, NoopLogger())
	require.NoError(t, err)
	defer d.Close()

	report, err := d.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, report.DeleteReport)
	assert.Equal(t, 25, d.Index().ActivePoints())

	for tag := core.Tag(1); int(tag) <= 5; tag++ {
		assert.True(t, isUnknownTag(d.Index().LazyDelete(tag)), "deleted tag %d should no longer resolve", tag)
	}
}

func isUnknownTag(err error) bool {
	var verr *vamana.Error
	if !errors.As(err, &verr) {
		return false
	}
	return verr.Kind() == string(vamana.KindUnknownTag)
}

func TestRunWithConcurrentDeleteWindow(t *testing.T) {
	cfg := testConfig(t, 40, 6)
	cfg.Concurrent = true
	cfg.PointsToDeleteFromBeginning = 5
	cfg.StartDeletesAfter = 10

	d, err := New(cfg, NoopLogger())
	require.NoError(t, err)
	defer d.Close()

	report, err := d.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, report.DeleteReport)
	assert.Equal(t, 35, d.Index().ActivePoints())
}

func TestRunWithZeroBeginningIndexSizeUsesRandomStartPoint(t *testing.T) {
	base := testConfig(t, 20, 6).Config
	base.BeginningIndexSize = 0
	base.StartPointNorm = 5
	cfg, err := config.Validate(base, 20)
	require.NoError(t, err)

	d, err := New(cfg, NoopLogger())
	require.NoError(t, err)
	defer d.Close()

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.PointsBuilt)
	assert.Equal(t, 20, d.Index().ActivePoints())
}
