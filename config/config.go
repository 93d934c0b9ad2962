// Package config holds the streaming driver's top-level configuration: the
// knobs the original incremental-build driver took as command-line flags
// (data path, build parameters, checkpoint/snapshot cadence, delete
// window), validated and clamped exactly as
// original_source/tests/test_insert_deletes_consolidate.cpp's
// build_incremental_index does before ever touching the index. This is
// deliberately a plain struct with a Validate method rather than a
// parsed-from-file config — no config-parsing library is pulled in.
package config

import (
	"errors"
	"fmt"

	"github.com/symphony233/vamanastream/metric"
)

// Config is every parameter the streaming driver needs to run an
// incremental build-insert-delete-snapshot session against a single
// vector file.
type Config struct {
	// DataPath is the input vector file, in ioformat's npts/dim binary layout.
	DataPath string
	// Scalar is the on-disk element type of DataPath.
	Scalar string // one of "float", "int8", "uint8"
	// DistanceFn selects the distance kernel ("l2" or "mips").
	DistanceFn string

	// MaxDegree (R), BeamWidth (L), Alpha mirror vamana.Config.
	MaxDegree int
	BeamWidth int
	Alpha     float32
	// NumThreads bounds how many goroutines a checkpoint's insert pass and
	// consolidation's repair pass may use; <= 0 means GOMAXPROCS.
	NumThreads int

	// PointsToSkip skips this many leading points in DataPath.
	PointsToSkip int
	// MaxPointsToInsert caps how many points after PointsToSkip are
	// inserted; 0 means "all remaining points in the file".
	MaxPointsToInsert int
	// BeginningIndexSize is how many of the selected points are loaded via
	// the initial batch Build rather than one-by-one Insert.
	BeginningIndexSize int
	// StartPointNorm sets the frozen entry point's norm when
	// BeginningIndexSize is 0 (no batch to derive a medoid from).
	StartPointNorm float32

	// PointsPerCheckpoint batches the post-build inserts; each batch is
	// one driver checkpoint.
	PointsPerCheckpoint int
	// CheckpointsPerSnapshot triggers a snapshot every this many
	// checkpoints; 0 disables periodic snapshots.
	CheckpointsPerSnapshot int

	// PointsToDeleteFromBeginning lazily deletes this many points starting
	// at PointsToSkip. In sequential mode the delete runs after the last
	// checkpoint; in concurrent mode it starts once a checkpoint's end row
	// reaches StartDeletesAfter.
	PointsToDeleteFromBeginning int
	StartDeletesAfter           int

	// Concurrent runs the delete/consolidate task on a second goroutine
	// alongside the checkpoint insert loop, instead of sequentially after it.
	Concurrent bool

	// SnapshotPathPrefix names the output snapshot directory; snapshot.Name
	// appends the skip/delete/threshold suffix the original driver uses.
	SnapshotPathPrefix string
}

// Resolved is Config after validation and clamping: every size field is
// guaranteed internally consistent and safe to use directly.
type Resolved struct {
	Config
	NumPoints int // total points in the data file, from its header
	Metric    metric.Func
}

// Validate checks and clamps cfg against numPoints (the point count read
// from DataPath's header), performing exactly the checks and warnings the
// original build_incremental_index applies before starting a run.
func Validate(cfg Config, numPoints int) (Resolved, error) {
	if cfg.MaxDegree <= 0 {
		return Resolved{}, errors.New("config: max_degree must be positive")
	}
	if cfg.BeamWidth < cfg.MaxDegree {
		return Resolved{}, errors.New("config: beam_width must be >= max_degree")
	}
	if cfg.Alpha < 1.0 {
		return Resolved{}, errors.New("config: alpha must be >= 1.0")
	}
	if cfg.PointsToSkip > numPoints {
		return Resolved{}, fmt.Errorf("config: points_to_skip (%d) exceeds the file's point count (%d)", cfg.PointsToSkip, numPoints)
	}
	if cfg.BeginningIndexSize == 0 && cfg.StartPointNorm <= 0 {
		return Resolved{}, errors.New("config: start_point_norm must be > 0 when beginning_index_size is 0")
	}

	m, err := metric.New(metric.Kind(cfg.DistanceFn))
	if err != nil {
		return Resolved{}, fmt.Errorf("config: %w", err)
	}

	maxInsert := cfg.MaxPointsToInsert
	if maxInsert == 0 {
		maxInsert = numPoints - cfg.PointsToSkip
	}
	if cfg.PointsToSkip+maxInsert > numPoints {
		maxInsert = numPoints - cfg.PointsToSkip
	}
	cfg.MaxPointsToInsert = maxInsert

	if cfg.BeginningIndexSize > cfg.MaxPointsToInsert {
		cfg.BeginningIndexSize = cfg.MaxPointsToInsert
	}
	// Second clamp (supplemented from the original): when periodic
	// snapshots are enabled, the first checkpoint after the initial build
	// must still land on a checkpoint boundary, so the batch build can
	// never outrun a single checkpoint's worth of points.
	if cfg.CheckpointsPerSnapshot > 0 && cfg.BeginningIndexSize > cfg.PointsPerCheckpoint {
		cfg.BeginningIndexSize = cfg.PointsPerCheckpoint
	}

	if cfg.PointsToDeleteFromBeginning > cfg.MaxPointsToInsert {
		cfg.PointsToDeleteFromBeginning = cfg.MaxPointsToInsert
	}

	return Resolved{Config: cfg, NumPoints: numPoints, Metric: m}, nil
}
