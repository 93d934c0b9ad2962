// Command streaminsert runs one streaming build/insert/delete/snapshot
// session against a vector file, the same workload
// original_source/tests/test_insert_deletes_consolidate.cpp's main() drives
// from the command line: build a starting index over a prefix of the file,
// insert the remaining points in checkpoints, optionally delete a window
// from the beginning partway through, and save snapshots along the way.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/symphony233/vamanastream/config"
	"github.com/symphony233/vamanastream/driver"
	"github.com/symphony233/vamanastream/ioformat"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run parses args against a fresh FlagSet (rather than the package-level
// flag.CommandLine) so it can be called more than once per process, e.g.
// from tests.
func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("streaminsert", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		dataType             = fs.String("data_type", "float", "scalar type of data_path: float, int8, or uint8")
		distFn               = fs.String("dist_fn", "l2", "distance function: l2 or mips")
		dataPath             = fs.String("data_path", "", "input vector file")
		indexPathPrefix      = fs.String("index_path_prefix", "", "prefix for saved snapshot directories")
		maxDegree            = fs.Int("R", 64, "max out-degree per node")
		beamWidth            = fs.Int("L", 100, "build-time beam width")
		alpha                = fs.Float64("alpha", 1.2, "robust pruning alpha")
		numThreads           = fs.Int("T", runtime.NumCPU(), "worker goroutines per checkpoint")
		pointsToSkip         = fs.Int("points_to_skip", -1, "points to skip at the start of data_path")
		maxPointsToInsert    = fs.Int("max_points_to_insert", 0, "cap on points inserted after points_to_skip (0 = all remaining)")
		beginningIndexSize   = fs.Int("beginning_index_size", -1, "points loaded via the initial batch build")
		pointsPerCheckpoint  = fs.Int("points_per_checkpoint", -1, "points inserted per checkpoint")
		checkpointsPerSnap   = fs.Int("checkpoints_per_snapshot", -1, "checkpoints between periodic snapshots (0 disables)")
		pointsToDeleteFromBg = fs.Int("points_to_delete_from_beginning", -1, "points lazily deleted from the beginning")
		doConcurrent         = fs.Bool("do_concurrent", false, "run the delete/consolidate task alongside later checkpoints")
		startDeletesAfter    = fs.Int("start_deletes_after", 0, "points inserted before the concurrent delete task may start")
		startPointNorm       = fs.Float64("start_point_norm", 0, "frozen entry point norm when beginning_index_size is 0")
	)
	if err := fs.Parse(args); err != nil {
		return -1
	}

	if *dataPath == "" || *indexPathPrefix == "" {
		fmt.Fprintln(stderr, "data_path and index_path_prefix are required")
		fs.PrintDefaults()
		return -1
	}
	if *pointsToSkip < 0 || *beginningIndexSize < 0 || *pointsPerCheckpoint < 0 ||
		*checkpointsPerSnap < 0 || *pointsToDeleteFromBg < 0 {
		fmt.Fprintln(stderr, "points_to_skip, beginning_index_size, points_per_checkpoint, checkpoints_per_snapshot, and points_to_delete_from_beginning are required")
		fs.PrintDefaults()
		return -1
	}
	if *beginningIndexSize == 0 && *startPointNorm <= 0 {
		fmt.Fprintln(stderr, "beginning_index_size and start_point_norm are both 0, exiting")
		return -1
	}

	peek, err := ioformat.Open(*dataPath, ioformat.Scalar(*dataType))
	if err != nil {
		fmt.Fprintf(stderr, "streaminsert: %v\n", err)
		return -1
	}
	header := peek.Header()
	peek.Close()

	cfg, err := config.Validate(config.Config{
		DataPath:                    *dataPath,
		Scalar:                      *dataType,
		DistanceFn:                  *distFn,
		MaxDegree:                   *maxDegree,
		BeamWidth:                   *beamWidth,
		Alpha:                       float32(*alpha),
		NumThreads:                  *numThreads,
		PointsToSkip:                *pointsToSkip,
		MaxPointsToInsert:           *maxPointsToInsert,
		BeginningIndexSize:          *beginningIndexSize,
		StartPointNorm:              float32(*startPointNorm),
		PointsPerCheckpoint:         *pointsPerCheckpoint,
		CheckpointsPerSnapshot:      *checkpointsPerSnap,
		PointsToDeleteFromBeginning: *pointsToDeleteFromBg,
		StartDeletesAfter:           *startDeletesAfter,
		Concurrent:                  *doConcurrent,
		SnapshotPathPrefix:          *indexPathPrefix,
	}, header.Points)
	if err != nil {
		fmt.Fprintf(stderr, "streaminsert: %v\n", err)
		return -1
	}

	log := driver.NewTextLogger(slog.LevelInfo)

	d, err := driver.New(cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "streaminsert: %v\n", err)
		return -1
	}
	defer d.Close()

	report, err := d.Run(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "streaminsert: %v\n", err)
		return -1
	}

	log.Info("session complete",
		"points_built", report.PointsBuilt,
		"points_inserted", report.PointsInserted,
		"checkpoints", report.Checkpoints,
		"snapshots_saved", report.SnapshotsSaved,
		"final_snapshot", report.FinalSnapshot,
		"elapsed_seconds", report.Elapsed.Seconds(),
	)
	return 0
}
