package segment

import (
	"errors"
	"fmt"
)

// Off disables a floating-point threshold.
const Off = -1.0

// Admission strategy names accepted in Options.Admission.
const (
	AdmissionGeneral = "general"
	AdmissionRGLum   = "rg_lum"
)

// Options holds every tunable of the engine. Float thresholds set to Off
// (any negative value) are skipped; integer sizes <= 0 disable their check
// unless documented otherwise.
//
//nolint:lll
type Options struct {
	// Growth admission.
	ConnectCorners bool    `mapstructure:"connect_corners" yaml:"connect_corners" json:"connect_corners"`
	Admission      string  `mapstructure:"admission" yaml:"admission" json:"admission"`
	RGBAbsDiff     float64 `mapstructure:"rgb_abs_diff" yaml:"rgb_abs_diff" json:"rgb_abs_diff"`
	RGBRelDiff     float64 `mapstructure:"rgb_rel_diff" yaml:"rgb_rel_diff" json:"rgb_rel_diff"`
	RGAbsDiff      float64 `mapstructure:"rg_abs_diff" yaml:"rg_abs_diff" json:"rg_abs_diff"`
	SumRGBAbsDiff  float64 `mapstructure:"sum_rgb_abs_diff" yaml:"sum_rgb_abs_diff" json:"sum_rgb_abs_diff"`
	SumRGBRelDiff  float64 `mapstructure:"sum_rgb_rel_diff" yaml:"sum_rgb_rel_diff" json:"sum_rgb_rel_diff"`
	RGVar          float64 `mapstructure:"rg_var" yaml:"rg_var" json:"rg_var"`
	LumVar         float64 `mapstructure:"lum_var" yaml:"lum_var" json:"lum_var"`

	// Seeding.
	SeedMaxRelDiff        float64 `mapstructure:"seed_max_rel_diff" yaml:"seed_max_rel_diff" json:"seed_max_rel_diff"`
	SmoothScales          []int   `mapstructure:"smooth_scales" yaml:"smooth_scales" json:"smooth_scales"`
	SeedWindows           []int   `mapstructure:"seed_windows" yaml:"seed_windows" json:"seed_windows"`
	RandomSeeding         bool    `mapstructure:"random_seeding" yaml:"random_seeding" json:"random_seeding"`
	RandomSeedDensity     float64 `mapstructure:"random_seed_density" yaml:"random_seed_density" json:"random_seed_density"`
	RandomSeed            uint64  `mapstructure:"random_seed" yaml:"random_seed" json:"random_seed"`
	ResegmentCount        int     `mapstructure:"resegment_count" yaml:"resegment_count" json:"resegment_count"`
	MinResegmentSize      int     `mapstructure:"min_resegment_size" yaml:"min_resegment_size" json:"min_resegment_size"`
	MinInitialSegmentSize int     `mapstructure:"min_initial_segment_size" yaml:"min_initial_segment_size" json:"min_initial_segment_size"`
	MaxSegmentSize        int     `mapstructure:"max_segment_size" yaml:"max_segment_size" json:"max_segment_size"`

	// Repair.
	HoleFillIterations        int     `mapstructure:"hole_fill_iterations" yaml:"hole_fill_iterations" json:"hole_fill_iterations"`
	HoleMinNeighbors          int     `mapstructure:"hole_min_neighbors" yaml:"hole_min_neighbors" json:"hole_min_neighbors"`
	ExpandEdgeLevel           int     `mapstructure:"expand_edge_level" yaml:"expand_edge_level" json:"expand_edge_level"`
	ExpandRGDiff              float64 `mapstructure:"expand_rg_diff" yaml:"expand_rg_diff" json:"expand_rg_diff"`
	ExpandSumRelDiff          float64 `mapstructure:"expand_sum_rel_diff" yaml:"expand_sum_rel_diff" json:"expand_sum_rel_diff"`
	ExpandIterations          int     `mapstructure:"expand_iterations" yaml:"expand_iterations" json:"expand_iterations"`
	PostMergeExpandIterations int     `mapstructure:"post_merge_expand_iterations" yaml:"post_merge_expand_iterations" json:"post_merge_expand_iterations"`
	ErodeIterations           int     `mapstructure:"erode_iterations" yaml:"erode_iterations" json:"erode_iterations"`

	// Merging.
	MergeIterations        int     `mapstructure:"merge_iterations" yaml:"merge_iterations" json:"merge_iterations"`
	MaxMergesPerPass       int     `mapstructure:"max_merges_per_pass" yaml:"max_merges_per_pass" json:"max_merges_per_pass"`
	SmallMerge             bool    `mapstructure:"small_merge" yaml:"small_merge" json:"small_merge"`
	BoundaryMerge          bool    `mapstructure:"boundary_merge" yaml:"boundary_merge" json:"boundary_merge"`
	RegionMerge            bool    `mapstructure:"region_merge" yaml:"region_merge" json:"region_merge"`
	MergeSmallRegionSize   int     `mapstructure:"merge_small_region_size" yaml:"merge_small_region_size" json:"merge_small_region_size"`
	MergeMinNumConnections int     `mapstructure:"merge_min_num_connections" yaml:"merge_min_num_connections" json:"merge_min_num_connections"`
	MergeRGDrift           float64 `mapstructure:"merge_rg_drift" yaml:"merge_rg_drift" json:"merge_rg_drift"`
	MergeSumRGBDrift       float64 `mapstructure:"merge_sum_rgb_drift" yaml:"merge_sum_rgb_drift" json:"merge_sum_rgb_drift"`
	MergeSumRGBRelDrift    float64 `mapstructure:"merge_sum_rgb_rel_drift" yaml:"merge_sum_rgb_rel_drift" json:"merge_sum_rgb_rel_drift"`
	MergeDarkSum           float64 `mapstructure:"merge_dark_sum" yaml:"merge_dark_sum" json:"merge_dark_sum"`

	// Collection and neighbours.
	MinSegmentSize           int     `mapstructure:"min_segment_size" yaml:"min_segment_size" json:"min_segment_size"`
	ConnectionMaxStep        int     `mapstructure:"connection_max_step" yaml:"connection_max_step" json:"connection_max_step"`
	MinNumConnections        int     `mapstructure:"min_num_connections" yaml:"min_num_connections" json:"min_num_connections"`
	NeighborConnectionFactor float64 `mapstructure:"neighbor_connection_factor" yaml:"neighbor_connection_factor" json:"neighbor_connection_factor"`
	TraceOutside             bool    `mapstructure:"trace_outside" yaml:"trace_outside" json:"trace_outside"`
	FindNeighbors            bool    `mapstructure:"find_neighbors" yaml:"find_neighbors" json:"find_neighbors"`

	// Resources.
	MaxPixels int `mapstructure:"max_pixels" yaml:"max_pixels" json:"max_pixels"`
}

// DefaultOptions returns the tuned defaults. Seed windows wider than the
// image are narrowed to fit it.
func DefaultOptions() Options {
	return Options{
		ConnectCorners: false,
		Admission:      AdmissionGeneral,
		RGBAbsDiff:     45,
		RGBRelDiff:     0.35,
		RGAbsDiff:      0.03,
		SumRGBAbsDiff:  Off,
		SumRGBRelDiff:  0.3,
		RGVar:          0.025,
		LumVar:         0.3,

		SeedMaxRelDiff:        0.15,
		SmoothScales:          []int{2, 1, 0},
		SeedWindows:           []int{4, 2, 1},
		RandomSeeding:         false,
		RandomSeedDensity:     0.02,
		RandomSeed:            1,
		ResegmentCount:        1,
		MinResegmentSize:      20,
		MinInitialSegmentSize: 10,
		MaxSegmentSize:        0,

		HoleFillIterations:        10,
		HoleMinNeighbors:          5,
		ExpandEdgeLevel:           3,
		ExpandRGDiff:              0.015,
		ExpandSumRelDiff:          0.08,
		ExpandIterations:          4,
		PostMergeExpandIterations: 2,
		ErodeIterations:           2,

		MergeIterations:        8,
		MaxMergesPerPass:       100000,
		SmallMerge:             true,
		BoundaryMerge:          true,
		RegionMerge:            true,
		MergeSmallRegionSize:   8,
		MergeMinNumConnections: 4,
		MergeRGDrift:           0.02,
		MergeSumRGBDrift:       25,
		MergeSumRGBRelDrift:    0.08,
		MergeDarkSum:           60,

		MinSegmentSize:           25,
		ConnectionMaxStep:        1,
		MinNumConnections:        2,
		NeighborConnectionFactor: 1,
		TraceOutside:             true,
		FindNeighbors:            true,

		MaxPixels: 1 << 26,
	}
}

// Validate reports option combinations the engine cannot run with.
func (o *Options) Validate() error {
	if _, ok := admissionByName[o.Admission]; !ok {
		return fmt.Errorf("%w: admission %q (must be %s or %s)", ErrInvalidValue, o.Admission, AdmissionGeneral, AdmissionRGLum)
	}
	if len(o.SeedWindows) == 0 {
		return fmt.Errorf("%w: seed_windows must not be empty", ErrInvalidValue)
	}
	for _, w := range o.SeedWindows {
		if w < 0 {
			return fmt.Errorf("%w: seed window %d is negative", ErrInvalidValue, w)
		}
	}
	for _, s := range o.SmoothScales {
		if s < 0 {
			return fmt.Errorf("%w: smooth scale %d is negative", ErrInvalidValue, s)
		}
	}
	ints := []struct {
		name string
		v    int
	}{
		{"resegment_count", o.ResegmentCount},
		{"hole_fill_iterations", o.HoleFillIterations},
		{"expand_edge_level", o.ExpandEdgeLevel},
		{"expand_iterations", o.ExpandIterations},
		{"post_merge_expand_iterations", o.PostMergeExpandIterations},
		{"erode_iterations", o.ErodeIterations},
		{"merge_iterations", o.MergeIterations},
		{"max_merges_per_pass", o.MaxMergesPerPass},
		{"connection_max_step", o.ConnectionMaxStep},
		{"min_num_connections", o.MinNumConnections},
	}
	for _, c := range ints {
		if c.v < 0 {
			return fmt.Errorf("%w: %s must not be negative (got %d)", ErrInvalidValue, c.name, c.v)
		}
	}
	if o.HoleMinNeighbors < 1 || o.HoleMinNeighbors > 8 {
		return fmt.Errorf("%w: hole_min_neighbors must be in 1..8 (got %d)", ErrInvalidValue, o.HoleMinNeighbors)
	}
	if o.RandomSeeding && o.RandomSeedDensity <= 0 {
		return errors.Join(ErrInvalidValue, errors.New("random_seed_density must be positive when random_seeding is on"))
	}
	if o.NeighborConnectionFactor < 0 {
		return fmt.Errorf("%w: neighbor_connection_factor must not be negative", ErrInvalidValue)
	}
	return nil
}

// within reports whether diff passes tolerance tol; negative tol is off.
func within(diff, tol float64) bool {
	return tol < 0 || diff <= tol
}

func enabled(tol float64) bool { return tol >= 0 }
