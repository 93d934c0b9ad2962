// Package driver orchestrates a single streaming build/insert/delete/
// snapshot session against one vector file: the initial batch build (or
// random start point), the checkpointed insert loop, a delete-from-the-
// beginning window that may run concurrently with later checkpoints, and
// periodic + final snapshots. It is grounded directly on
// original_source/tests/test_insert_deletes_consolidate.cpp's
// build_incremental_index, generalized from that file's template-per-
// scalar-type function into a single Go type driven by ioformat.Reader.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/symphony233/vamanastream/config"
	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/ioformat"
	"github.com/symphony233/vamanastream/parallel"
	"github.com/symphony233/vamanastream/snapshot"
	"github.com/symphony233/vamanastream/vamana"
)

// candidateCap is the original driver's hardcoded "const unsigned C = 500"
// back-edge degree cap, never exposed as a CLI flag there either.
const candidateCap = 500

// numFrozenPoints is the original driver's default num_frozen = 1.
const numFrozenPoints = 1

// Report summarizes a completed Run.
type Report struct {
	PointsBuilt    int
	PointsInserted int
	Checkpoints    int
	SnapshotsSaved int
	DeleteReport   *vamana.Report
	FinalSnapshot  string
	Elapsed        time.Duration
}

// Driver runs one incremental build session against cfg.DataPath, driving
// idx through Build/Insert/LazyDelete/ConsolidateDeletes/SaveSnapshot.
type Driver struct {
	cfg    config.Resolved
	idx    *vamana.Index
	reader *ioformat.Reader
	log    *Logger
}

// New opens cfg.DataPath and builds an empty Index sized to its header
// dimension. Call Run to execute the session; Close releases the file
// handle once Run has returned.
func New(cfg config.Resolved, log *Logger) (*Driver, error) {
	if log == nil {
		log = NoopLogger()
	}

	reader, err := ioformat.Open(cfg.DataPath, ioformat.Scalar(cfg.Scalar))
	if err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}

	idxCfg := vamana.Config{
		Dimension:       reader.Header().Dimension,
		MaxDegree:       cfg.MaxDegree,
		BeamWidth:       cfg.BeamWidth,
		Alpha:           cfg.Alpha,
		CandidateCap:    candidateCap,
		NumFrozenPoints: numFrozenPoints,
		Metric:          cfg.Metric,
	}
	idx, err := vamana.New(idxCfg)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("driver: %w", err)
	}

	return &Driver{cfg: cfg, idx: idx, reader: reader, log: log}, nil
}

// Index returns the index the driver is building, for callers that need to
// search it after Run.
func (d *Driver) Index() *vamana.Index { return d.idx }

// Close releases the driver's open file handle.
func (d *Driver) Close() error { return d.reader.Close() }

// Run executes the full session: initial build, checkpointed inserts (with
// an optional concurrent delete window), periodic snapshots, and a final
// snapshot. It returns early with whatever error aborted it if ctx is
// canceled between checkpoints.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	cfg := d.cfg

	if err := d.initialBuild(ctx); err != nil {
		return Report{}, err
	}

	lastThreshold := cfg.PointsToSkip + cfg.MaxPointsToInsert
	// Checkpoint inserts resume right after the initial batch, which itself
	// starts at PointsToSkip.
	currentOffset := cfg.PointsToSkip + cfg.BeginningIndexSize

	run := &runState{cfg: cfg}

	var (
		deleteReport *vamana.Report
		finalSuffix  string
	)

	if cfg.Concurrent {
		finalSuffix = "after-concurrent-delete-"
		rep, err := d.runConcurrentCheckpoints(ctx, run, currentOffset, lastThreshold)
		if err != nil {
			return Report{}, err
		}
		deleteReport = rep
	} else {
		finalSuffix = "after-delete-"
		if err := d.runCheckpoints(ctx, run, currentOffset, lastThreshold); err != nil {
			return Report{}, err
		}
		if cfg.PointsToDeleteFromBeginning > 0 {
			rep, err := d.deleteFromBeginning(ctx, cfg.NumThreads)
			if err != nil {
				return Report{}, err
			}
			deleteReport = &rep
		}
	}

	finalDir := snapshotName(cfg, finalSuffix, lastThreshold)
	snapStart := time.Now()
	err := d.idx.SaveSnapshot(finalDir)
	d.log.LogSnapshot(ctx, finalDir, time.Since(snapStart), d.idx.ActivePoints(), err)
	if err != nil {
		return Report{}, fmt.Errorf("driver: %w", err)
	}
	run.snapshotsSaved++

	return Report{
		PointsBuilt:    cfg.BeginningIndexSize,
		PointsInserted: run.pointsInserted,
		Checkpoints:    run.checkpoints,
		SnapshotsSaved: run.snapshotsSaved,
		DeleteReport:   deleteReport,
		FinalSnapshot:  finalDir,
		Elapsed:        time.Since(start),
	}, nil
}

// runState accumulates counters across the checkpoint loop.
type runState struct {
	cfg             config.Resolved
	checkpoints     int
	pointsInserted  int
	snapshotsSaved  int
	lastSnapshotEnd int
}

// initialBuild performs the batch Build (when BeginningIndexSize > 0) or
// InitFrozenRandom (when it's 0), then arms delete, mirroring the
// original's build()/enable_delete() or
// set_start_point_at_random()/enable_delete() branch.
func (d *Driver) initialBuild(ctx context.Context) error {
	cfg := d.cfg
	buildStart := time.Now()

	if cfg.BeginningIndexSize > 0 {
		if err := d.reader.Seek(cfg.PointsToSkip); err != nil {
			return fmt.Errorf("driver: %w", err)
		}
		vectors, err := d.reader.ReadBatch(cfg.BeginningIndexSize)
		if err != nil {
			return fmt.Errorf("driver: %w", err)
		}
		d.trimPadding(vectors)
		tags := make([]core.Tag, len(vectors))
		for i := range tags {
			tags[i] = core.Tag(cfg.PointsToSkip + i + 1) //nolint:gosec
		}
		err = d.idx.Build(vectors, tags, cfg.NumThreads)
		d.log.LogBuild(ctx, len(vectors), time.Since(buildStart), err)
		if err != nil {
			return fmt.Errorf("driver: %w", err)
		}
	} else {
		if err := d.idx.InitFrozenRandom(cfg.StartPointNorm); err != nil {
			return fmt.Errorf("driver: %w", err)
		}
		d.log.LogBuild(ctx, 0, time.Since(buildStart), nil)
	}

	if err := d.idx.EnableDelete(); err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	return nil
}

// runCheckpoints drives the sequential insert loop from currentOffset to
// lastThreshold, saving a periodic snapshot every CheckpointsPerSnapshot
// checkpoints (Open Question 1: this is never skipped).
func (d *Driver) runCheckpoints(ctx context.Context, run *runState, currentOffset, lastThreshold int) error {
	cfg := d.cfg
	checkpointsTillSnapshot := cfg.CheckpointsPerSnapshot

	for start := currentOffset; start < lastThreshold; start += cfg.PointsPerCheckpoint {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("driver: %w", err)
		}

		end := start + cfg.PointsPerCheckpoint
		if end > lastThreshold {
			end = lastThreshold
		}

		n, err := d.insertCheckpoint(ctx, start, end, cfg.NumThreads)
		if err != nil {
			return err
		}
		run.checkpoints++
		run.pointsInserted += n

		if cfg.CheckpointsPerSnapshot > 0 {
			checkpointsTillSnapshot--
			if checkpointsTillSnapshot == 0 {
				dir := snapshotName(cfg, "inc-", end)
				snapStart := time.Now()
				saveErr := d.idx.SaveSnapshot(dir)
				d.log.LogSnapshot(ctx, dir, time.Since(snapStart), end-cfg.PointsToSkip, saveErr)
				if saveErr != nil {
					return fmt.Errorf("driver: %w", saveErr)
				}
				run.snapshotsSaved++
				run.lastSnapshotEnd = end
				checkpointsTillSnapshot = cfg.CheckpointsPerSnapshot
			}
		}
	}
	return nil
}

// runConcurrentCheckpoints drives the same checkpoint loop as
// runCheckpoints, but launches the delete/consolidate task on a second
// goroutine as soon as the delete window's threshold is reached, and joins
// it once every checkpoint has landed — Open Question 2's resolution.
func (d *Driver) runConcurrentCheckpoints(ctx context.Context, run *runState, currentOffset, lastThreshold int) (*vamana.Report, error) {
	cfg := d.cfg
	subThreads := (cfg.NumThreads + 1) / 2

	type deleteResult struct {
		report vamana.Report
		err    error
	}
	var deleteDone chan deleteResult

	checkpointsTillSnapshot := cfg.CheckpointsPerSnapshot

	for start := currentOffset; start < lastThreshold; start += cfg.PointsPerCheckpoint {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("driver: %w", err)
		}

		end := start + cfg.PointsPerCheckpoint
		if end > lastThreshold {
			end = lastThreshold
		}

		n, err := d.insertCheckpoint(ctx, start, end, subThreads)
		if err != nil {
			return nil, err
		}
		run.checkpoints++
		run.pointsInserted += n

		if deleteDone == nil && cfg.PointsToDeleteFromBeginning > 0 &&
			end >= cfg.StartDeletesAfter && end >= cfg.PointsToSkip+cfg.PointsToDeleteFromBeginning {
			deleteDone = make(chan deleteResult, 1)
			go func() {
				report, err := d.deleteFromBeginning(ctx, subThreads)
				deleteDone <- deleteResult{report: report, err: err}
			}()
		}

		if cfg.CheckpointsPerSnapshot > 0 {
			checkpointsTillSnapshot--
			if checkpointsTillSnapshot == 0 {
				dir := snapshotName(cfg, "inc-", end)
				snapStart := time.Now()
				saveErr := d.idx.SaveSnapshot(dir)
				d.log.LogSnapshot(ctx, dir, time.Since(snapStart), end-cfg.PointsToSkip, saveErr)
				if saveErr != nil {
					return nil, fmt.Errorf("driver: %w", saveErr)
				}
				run.snapshotsSaved++
				run.lastSnapshotEnd = end
				checkpointsTillSnapshot = cfg.CheckpointsPerSnapshot
			}
		}
	}

	if deleteDone == nil {
		return nil, nil
	}
	result := <-deleteDone
	if result.err != nil {
		return nil, result.err
	}
	return &result.report, nil
}

// insertCheckpoint loads [start, end) from the data file and inserts each
// point under a shared tag = row_index+1, across up to workers goroutines,
// mirroring insert_till_next_checkpoint.
func (d *Driver) insertCheckpoint(ctx context.Context, start, end, workers int) (int, error) {
	checkpointStart := time.Now()

	if err := d.reader.Seek(start); err != nil {
		return 0, fmt.Errorf("driver: %w", err)
	}
	vectors, err := d.reader.ReadBatch(end - start)
	if err != nil {
		return 0, fmt.Errorf("driver: %w", err)
	}
	d.trimPadding(vectors)

	err = parallel.For(workers, len(vectors), func(i int) error {
		tag := core.Tag(start + i + 1) //nolint:gosec
		return d.idx.Insert(vectors[i], tag)
	})
	if err != nil {
		return 0, fmt.Errorf("driver: %w", err)
	}

	d.log.LogCheckpoint(ctx, start, end, time.Since(checkpointStart), workers)
	return len(vectors), nil
}

// deleteFromBeginning lazily deletes tags [PointsToSkip+1, PointsToSkip+
// PointsToDeleteFromBeginning] and consolidates, mirroring
// delete_from_beginning.
func (d *Driver) deleteFromBeginning(ctx context.Context, workers int) (vamana.Report, error) {
	cfg := d.cfg

	for i := cfg.PointsToSkip; i < cfg.PointsToSkip+cfg.PointsToDeleteFromBeginning; i++ {
		tag := core.Tag(i + 1) //nolint:gosec
		if err := d.idx.LazyDelete(tag); err != nil {
			return vamana.Report{}, fmt.Errorf("driver: %w", err)
		}
	}

	report, err := d.idx.ConsolidateDeletes(workers)
	d.log.LogConsolidate(ctx, report, cfg.PointsToDeleteFromBeginning, workers, err)
	if err != nil {
		return vamana.Report{}, fmt.Errorf("driver: %w", err)
	}
	return report, nil
}

// trimPadding slices every row in vectors back down from
// ioformat.AlignedDimension(dim) to the index's raw dimension: the Vamana
// core operates on exactly dim scalars per point, the same way the
// original driver's insert_point only ever reads dim elements out of an
// aligned_dim-strided row.
func (d *Driver) trimPadding(vectors [][]float32) {
	dim := d.reader.Header().Dimension
	for i, v := range vectors {
		vectors[i] = v[:dim]
	}
}

// snapshotName builds the "<prefix><stage>skip<S>-del<D>-<threshold>"
// directory name snapshot.Name produces, matching get_save_filename.
func snapshotName(cfg config.Resolved, stage string, threshold int) string {
	return snapshot.Name(cfg.SnapshotPathPrefix+stage, cfg.PointsToSkip, cfg.PointsToDeleteFromBeginning, threshold)
}
