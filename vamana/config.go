package vamana

import "github.com/symphony233/vamanastream/metric"

// Config holds the parameters that shape a single Index: its dimension,
// the Vamana graph's build parameters, and the distance kernel it scores
// candidates with. This is a plain struct validated up front rather than
// parsed from a config file or library — only the higher-level driver
// configuration (config.Config) reads from the outside world.
type Config struct {
	// Dimension is the fixed length every inserted vector must have.
	Dimension int
	// MaxDegree (R) bounds a slot's outbound neighbor list.
	MaxDegree int
	// BeamWidth (L) is the greedy-search candidate frontier size, >= MaxDegree.
	BeamWidth int
	// Alpha is the alpha-RNG diversity parameter, >= 1.0.
	Alpha float32
	// CandidateCap (C) bounds how far a back-edge target's degree may
	// transiently exceed MaxDegree before it is re-pruned.
	CandidateCap int
	// NumFrozenPoints is the number of permanent entry-point slots, default 1.
	NumFrozenPoints int
	// MaxCapacity caps the total number of slots ever allocated; 0 means
	// unbounded (the arena grows to fit every insert).
	MaxCapacity int
	// Metric scores the distance between two vectors; smaller is closer.
	Metric metric.Func
}

// DefaultConfig returns the spec's default build parameters (R=64, L=100,
// alpha=1.2, candidate cap 500, one frozen point) for the given dimension
// and distance kernel.
func DefaultConfig(dimension int, m metric.Func) Config {
	return Config{
		Dimension:       dimension,
		MaxDegree:       64,
		BeamWidth:       100,
		Alpha:           1.2,
		CandidateCap:    500,
		NumFrozenPoints: 1,
		Metric:          m,
	}
}

func (c Config) validate() error {
	if c.Dimension <= 0 {
		return newError(KindInvalidConfig, "dimension must be positive")
	}
	if c.MaxDegree <= 0 {
		return newError(KindInvalidConfig, "max_degree (R) must be positive")
	}
	if c.BeamWidth < c.MaxDegree {
		return newError(KindInvalidConfig, "beam_width (L) must be >= max_degree (R)")
	}
	if c.Alpha < 1.0 {
		return newError(KindInvalidConfig, "alpha must be >= 1.0")
	}
	if c.CandidateCap < c.MaxDegree {
		return newError(KindInvalidConfig, "candidate_cap (C) must be >= max_degree (R)")
	}
	if c.NumFrozenPoints <= 0 {
		return newError(KindInvalidConfig, "num_frozen_points must be positive")
	}
	if c.Metric == nil {
		return newError(KindInvalidConfig, "metric must be set")
	}
	return nil
}
