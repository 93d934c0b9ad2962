package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{
		DataPath:            "vectors.bin",
		Scalar:              "float",
		DistanceFn:          "l2",
		MaxDegree:           64,
		BeamWidth:           100,
		Alpha:               1.2,
		PointsPerCheckpoint: 1000,
		BeginningIndexSize:  500,
	}
}

func TestValidateAcceptsBaseConfig(t *testing.T) {
	resolved, err := Validate(baseConfig(), 10000)
	require.NoError(t, err)
	assert.Equal(t, 10000, resolved.MaxPointsToInsert)
	assert.Equal(t, 500, resolved.BeginningIndexSize)
}

func TestValidateRejectsBeamNarrowerThanDegree(t *testing.T) {
	cfg := baseConfig()
	cfg.BeamWidth = cfg.MaxDegree - 1
	_, err := Validate(cfg, 10000)
	assert.Error(t, err)
}

func TestValidateRejectsPointsToSkipBeyondFile(t *testing.T) {
	cfg := baseConfig()
	cfg.PointsToSkip = 20000
	_, err := Validate(cfg, 10000)
	assert.Error(t, err)
}

func TestValidateRequiresStartPointNormWhenNoInitialBatch(t *testing.T) {
	cfg := baseConfig()
	cfg.BeginningIndexSize = 0
	cfg.StartPointNorm = 0
	_, err := Validate(cfg, 10000)
	assert.Error(t, err)
}

func TestValidateAllowsZeroBeginningIndexSizeWithStartPointNorm(t *testing.T) {
	cfg := baseConfig()
	cfg.BeginningIndexSize = 0
	cfg.StartPointNorm = 10
	_, err := Validate(cfg, 10000)
	assert.NoError(t, err)
}

func TestValidateClampsMaxPointsToInsertToFileSize(t *testing.T) {
	cfg := baseConfig()
	cfg.PointsToSkip = 9000
	cfg.MaxPointsToInsert = 5000
	resolved, err := Validate(cfg, 10000)
	require.NoError(t, err)
	assert.Equal(t, 1000, resolved.MaxPointsToInsert)
}

func TestValidateClampsBeginningIndexSizeToMaxPointsToInsert(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxPointsToInsert = 100
	cfg.BeginningIndexSize = 500
	resolved, err := Validate(cfg, 10000)
	require.NoError(t, err)
	assert.Equal(t, 100, resolved.BeginningIndexSize)
}

func TestValidateClampsBeginningIndexSizeToCheckpointSizeWhenSnapshotting(t *testing.T) {
	cfg := baseConfig()
	cfg.BeginningIndexSize = 800
	cfg.PointsPerCheckpoint = 200
	cfg.CheckpointsPerSnapshot = 5
	resolved, err := Validate(cfg, 10000)
	require.NoError(t, err)
	assert.Equal(t, 200, resolved.BeginningIndexSize)
}

func TestValidateClampsDeleteWindowToMaxPointsToInsert(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxPointsToInsert = 300
	cfg.PointsToDeleteFromBeginning = 1000
	resolved, err := Validate(cfg, 10000)
	require.NoError(t, err)
	assert.Equal(t, 300, resolved.PointsToDeleteFromBeginning)
}

func TestValidateRejectsUnknownDistanceFn(t *testing.T) {
	cfg := baseConfig()
	cfg.DistanceFn = "cosine"
	_, err := Validate(cfg, 10000)
	assert.Error(t, err)
}
