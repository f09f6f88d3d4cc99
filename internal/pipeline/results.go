package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToJSONImage serializes a single result to pretty JSON.
func ToJSONImage(res *SegmentationResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONImages serializes multiple results to pretty JSON.
func ToJSONImages(results []*SegmentationResult) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToYAMLImage serializes a single result to YAML.
func ToYAMLImage(res *SegmentationResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ToPlainTextImage renders a short human-readable summary, one line per
// segment.
func ToPlainTextImage(res *SegmentationResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%dx%d: %d segments, %.1f%% coverage, %d merges\n",
		res.Width, res.Height, len(res.Segments), 100*res.Coverage, res.Stats.TotalMerges())
	for _, s := range res.Segments {
		ids := make([]string, len(s.Neighbors))
		for k, n := range s.Neighbors {
			ids[k] = strconv.Itoa(n.ID)
		}
		fmt.Fprintf(&sb, "  #%d %s pixels=%d box=%d,%d %dx%d elong=%.2f neighbors=[%s]\n",
			s.ID, s.Color, s.NumPixels, s.Box.X, s.Box.Y, s.Box.W, s.Box.H,
			s.Shape.Elongation, strings.Join(ids, " "))
	}
	return sb.String(), nil
}

// ToCSVImage exports per-segment data as CSV with header.
func ToCSVImage(res *SegmentationResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{
		"id", "pixels", "x", "y", "w", "h", "cx", "cy",
		"color", "area", "perimeter", "orientation", "elongation", "neighbors",
	})
	for _, s := range res.Segments {
		ids := make([]string, len(s.Neighbors))
		for k, n := range s.Neighbors {
			ids[k] = strconv.Itoa(n.ID)
		}
		_ = w.Write([]string{
			strconv.Itoa(s.ID),
			strconv.Itoa(s.NumPixels),
			strconv.Itoa(s.Box.X),
			strconv.Itoa(s.Box.Y),
			strconv.Itoa(s.Box.W),
			strconv.Itoa(s.Box.H),
			fmt.Sprintf("%.2f", s.Centroid.X),
			fmt.Sprintf("%.2f", s.Centroid.Y),
			s.Color,
			fmt.Sprintf("%.1f", s.Area),
			fmt.Sprintf("%.1f", s.Perimeter),
			fmt.Sprintf("%.4f", s.Shape.Orientation),
			fmt.Sprintf("%.4f", s.Shape.Elongation),
			strings.Join(ids, " "),
		})
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ValidateResult performs consistency checks on a result.
func ValidateResult(res *SegmentationResult) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.Width <= 0 || res.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", res.Width, res.Height)
	}
	for k, s := range res.Segments {
		if s.ID != k+1 {
			return fmt.Errorf("segment %d has id %d", k+1, s.ID)
		}
		if s.NumPixels <= 0 {
			return fmt.Errorf("segment %d is empty", s.ID)
		}
		if s.Box.X < 0 || s.Box.Y < 0 || s.Box.X+s.Box.W > res.Width || s.Box.Y+s.Box.H > res.Height {
			return fmt.Errorf("segment %d box exceeds the image", s.ID)
		}
		for _, n := range s.Neighbors {
			if n.ID < 1 || n.ID > len(res.Segments) || n.ID == s.ID {
				return fmt.Errorf("segment %d has invalid neighbour %d", s.ID, n.ID)
			}
		}
	}
	if res.Coverage < 0 || res.Coverage > 1 {
		return fmt.Errorf("coverage %.3f out of range", res.Coverage)
	}
	return nil
}
