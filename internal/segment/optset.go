package segment

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// optKind selects how an option value is parsed and printed.
type optKind int

const (
	kindFloat optKind = iota
	kindInt
	kindUint
	kindBool
	kindIntList
	kindString
)

type optDesc struct {
	name string
	kind optKind
	ptr  any
}

// OptionSet applies textual name/value settings to an Options value.
// Names match case-insensitively on a unique prefix.
type OptionSet struct {
	opts  *Options
	descs []optDesc
	fold  cases.Caser
}

// NewOptionSet binds the textual protocol to opts.
func NewOptionSet(opts *Options) *OptionSet {
	o := opts
	descs := []optDesc{
		{"connect_corners", kindBool, &o.ConnectCorners},
		{"admission", kindString, &o.Admission},
		{"rgb_abs_diff", kindFloat, &o.RGBAbsDiff},
		{"rgb_rel_diff", kindFloat, &o.RGBRelDiff},
		{"rg_abs_diff", kindFloat, &o.RGAbsDiff},
		{"sum_rgb_abs_diff", kindFloat, &o.SumRGBAbsDiff},
		{"sum_rgb_rel_diff", kindFloat, &o.SumRGBRelDiff},
		{"rg_var", kindFloat, &o.RGVar},
		{"lum_var", kindFloat, &o.LumVar},
		{"seed_max_rel_diff", kindFloat, &o.SeedMaxRelDiff},
		{"smooth_scales", kindIntList, &o.SmoothScales},
		{"seed_windows", kindIntList, &o.SeedWindows},
		{"random_seeding", kindBool, &o.RandomSeeding},
		{"random_seed_density", kindFloat, &o.RandomSeedDensity},
		{"random_seed", kindUint, &o.RandomSeed},
		{"resegment_count", kindInt, &o.ResegmentCount},
		{"min_resegment_size", kindInt, &o.MinResegmentSize},
		{"min_initial_segment_size", kindInt, &o.MinInitialSegmentSize},
		{"max_segment_size", kindInt, &o.MaxSegmentSize},
		{"hole_fill_iterations", kindInt, &o.HoleFillIterations},
		{"hole_min_neighbors", kindInt, &o.HoleMinNeighbors},
		{"expand_edge_level", kindInt, &o.ExpandEdgeLevel},
		{"expand_rg_diff", kindFloat, &o.ExpandRGDiff},
		{"expand_sum_rel_diff", kindFloat, &o.ExpandSumRelDiff},
		{"expand_iterations", kindInt, &o.ExpandIterations},
		{"post_merge_expand_iterations", kindInt, &o.PostMergeExpandIterations},
		{"erode_iterations", kindInt, &o.ErodeIterations},
		{"merge_iterations", kindInt, &o.MergeIterations},
		{"max_merges_per_pass", kindInt, &o.MaxMergesPerPass},
		{"small_merge", kindBool, &o.SmallMerge},
		{"boundary_merge", kindBool, &o.BoundaryMerge},
		{"region_merge", kindBool, &o.RegionMerge},
		{"merge_small_region_size", kindInt, &o.MergeSmallRegionSize},
		{"merge_min_num_connections", kindInt, &o.MergeMinNumConnections},
		{"merge_rg_drift", kindFloat, &o.MergeRGDrift},
		{"merge_sum_rgb_drift", kindFloat, &o.MergeSumRGBDrift},
		{"merge_sum_rgb_rel_drift", kindFloat, &o.MergeSumRGBRelDrift},
		{"merge_dark_sum", kindFloat, &o.MergeDarkSum},
		{"min_segment_size", kindInt, &o.MinSegmentSize},
		{"connection_max_step", kindInt, &o.ConnectionMaxStep},
		{"min_num_connections", kindInt, &o.MinNumConnections},
		{"neighbor_connection_factor", kindFloat, &o.NeighborConnectionFactor},
		{"trace_outside", kindBool, &o.TraceOutside},
		{"find_neighbors", kindBool, &o.FindNeighbors},
		{"max_pixels", kindInt, &o.MaxPixels},
	}
	return &OptionSet{opts: opts, descs: descs, fold: cases.Fold()}
}

// Names lists every recognised option name in declaration order.
func (s *OptionSet) Names() []string {
	names := make([]string, len(s.descs))
	for i, d := range s.descs {
		names[i] = d.name
	}
	return names
}

// Set applies value to the option named (or uniquely prefixed) by name.
//
// An empty value leaves the option unchanged and returns "name = value".
// A value of "?" returns the raw "name value" pair. "off" disables a
// threshold, zeroes a size and clears a flag. On success the returned
// string shows the new setting.
func (s *OptionSet) Set(name, value string) (string, error) {
	d, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	value = strings.TrimSpace(value)
	switch value {
	case "":
		return fmt.Sprintf("%s = %s", d.name, format(d)), nil
	case "?":
		return fmt.Sprintf("%s %s", d.name, format(d)), nil
	}
	if err := parseInto(d, value, s.fold.String(value) == "off"); err != nil {
		return "", fmt.Errorf("%w: %s=%q: %v", ErrInvalidValue, d.name, value, err)
	}
	return fmt.Sprintf("%s = %s", d.name, format(d)), nil
}

// Apply runs Set for every "name=value" assignment, stopping at the first
// error.
func (s *OptionSet) Apply(assignments []string) error {
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("%w: %q is not name=value", ErrInvalidValue, a)
		}
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %q has no value", ErrInvalidValue, a)
		}
		if _, err := s.Set(strings.TrimSpace(name), value); err != nil {
			return err
		}
	}
	return nil
}

// Dump returns "name = value" lines for every option, sorted by name.
func (s *OptionSet) Dump() []string {
	lines := make([]string, 0, len(s.descs))
	for _, d := range s.descs {
		lines = append(lines, fmt.Sprintf("%s = %s", d.name, format(d)))
	}
	sort.Strings(lines)
	return lines
}

func (s *OptionSet) lookup(name string) (optDesc, error) {
	key := s.fold.String(strings.TrimSpace(name))
	if key == "" {
		return optDesc{}, fmt.Errorf("%w: empty name", ErrUnknownOption)
	}
	var matches []optDesc
	for _, d := range s.descs {
		folded := s.fold.String(d.name)
		if folded == key {
			return d, nil
		}
		if strings.HasPrefix(folded, key) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return optDesc{}, fmt.Errorf("%w: %q", ErrUnknownOption, name)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.name
		}
		return optDesc{}, fmt.Errorf("%w: %q matches %s", ErrAmbiguousOption, name, strings.Join(names, ", "))
	}
}

func format(d optDesc) string {
	switch d.kind {
	case kindFloat:
		v := *d.ptr.(*float64)
		if v < 0 {
			return "off"
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case kindInt:
		return strconv.Itoa(*d.ptr.(*int))
	case kindUint:
		return strconv.FormatUint(*d.ptr.(*uint64), 10)
	case kindBool:
		return strconv.FormatBool(*d.ptr.(*bool))
	case kindIntList:
		vals := *d.ptr.(*[]int)
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = strconv.Itoa(v)
		}
		return strings.Join(parts, ",")
	default:
		return *d.ptr.(*string)
	}
}

func parseInto(d optDesc, value string, off bool) error {
	switch d.kind {
	case kindFloat:
		if off {
			*d.ptr.(*float64) = Off
			return nil
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		*d.ptr.(*float64) = v
	case kindInt:
		if off {
			*d.ptr.(*int) = 0
			return nil
		}
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*d.ptr.(*int) = v
	case kindUint:
		if off {
			*d.ptr.(*uint64) = 0
			return nil
		}
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		*d.ptr.(*uint64) = v
	case kindBool:
		if off {
			*d.ptr.(*bool) = false
			return nil
		}
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		*d.ptr.(*bool) = v
	case kindIntList:
		if off {
			*d.ptr.(*[]int) = nil
			return nil
		}
		var vals []int
		for _, p := range strings.Split(value, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return err
			}
			vals = append(vals, v)
		}
		*d.ptr.(*[]int) = vals
	case kindString:
		if off {
			return fmt.Errorf("option cannot be disabled")
		}
		*d.ptr.(*string) = value
	}
	return nil
}
