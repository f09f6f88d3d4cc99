package batch

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
)

// imageEntry is one file of a serialized batch.
type imageEntry struct {
	File   string                       `json:"file"             yaml:"file"`
	Result *pipeline.SegmentationResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string                       `json:"error,omitempty"  yaml:"error,omitempty"`
}

type batchDocument struct {
	Images []imageEntry `json:"images" yaml:"images"`
}

// formatBatchResults formats the batch processing results in the specified format.
func formatBatchResults(r *Result, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(r)
	case "yaml":
		return formatYAML(r)
	case "csv":
		return formatCSV(r)
	default: // text
		return formatText(r)
	}
}

func document(r *Result) batchDocument {
	doc := batchDocument{Images: make([]imageEntry, len(r.ImagePaths))}
	for i, path := range r.ImagePaths {
		doc.Images[i] = imageEntry{File: path, Result: r.Results[i]}
		if i < len(r.Errors) && r.Errors[i] != nil {
			doc.Images[i].Error = r.Errors[i].Error()
		}
	}
	return doc
}

// formatJSON formats results as JSON.
func formatJSON(r *Result) (string, error) {
	bts, err := json.MarshalIndent(document(r), "", "  ")
	return string(bts), err
}

// formatYAML formats results as YAML.
func formatYAML(r *Result) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(document(r)); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatCSV formats results as CSV, one row per segment.
func formatCSV(r *Result) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write([]string{
		"file", "id", "pixels", "x", "y", "w", "h", "cx", "cy", "color", "neighbors",
	}); err != nil {
		return "", err
	}

	for i, res := range r.Results {
		if res == nil {
			continue
		}
		file := r.ImagePaths[i]
		for _, s := range res.Segments {
			ids := make([]string, len(s.Neighbors))
			for k, n := range s.Neighbors {
				ids[k] = strconv.Itoa(n.ID)
			}
			if err := writer.Write([]string{
				file,
				strconv.Itoa(s.ID),
				strconv.Itoa(s.NumPixels),
				strconv.Itoa(s.Box.X),
				strconv.Itoa(s.Box.Y),
				strconv.Itoa(s.Box.W),
				strconv.Itoa(s.Box.H),
				fmt.Sprintf("%.2f", s.Centroid.X),
				fmt.Sprintf("%.2f", s.Centroid.Y),
				s.Color,
				strings.Join(ids, " "),
			}); err != nil {
				return "", err
			}
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

// formatText formats results as plain text.
func formatText(r *Result) (string, error) {
	var output strings.Builder
	for i, res := range r.Results {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s\n", r.ImagePaths[i])
		if res == nil {
			if i < len(r.Errors) && r.Errors[i] != nil {
				fmt.Fprintf(&output, "error: %v\n", r.Errors[i])
			}
			continue
		}
		text, err := pipeline.ToPlainTextImage(res)
		if err != nil {
			return "", err
		}
		output.WriteString(text)
	}
	return output.String(), nil
}
