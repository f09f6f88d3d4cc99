package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
)

// Config holds all configuration for batch processing.
type Config struct {
	// Segmentation settings
	Pipeline  pipeline.Config
	Overrides []string // "name=value" engine option assignments

	// Optional label images, matched to inputs by base name
	LabelsDir string

	// Output settings
	Format       string
	OutputFile   string
	MapDir       string
	OverlayDir   string
	OverlayAlpha float64

	// Parallel processing settings
	Workers         int
	ContinueOnError bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ShowStats        bool
	ProgressInterval time.Duration

	// Stderr receives progress; nil means os.Stderr.
	Stderr io.Writer
}

// DefaultConfig returns a batch configuration with pipeline defaults.
func DefaultConfig() *Config {
	return &Config{
		Pipeline:         pipeline.DefaultConfig(),
		Format:           "text",
		OverlayAlpha:     pipeline.DefaultOverlayOptions().FillAlpha,
		Workers:          4,
		ShowProgress:     true,
		ProgressInterval: 100 * time.Millisecond,
	}
}

func (c *Config) stderr() io.Writer {
	if c.Stderr != nil {
		return c.Stderr
	}
	return os.Stderr
}

// Result holds the result of batch processing.
type Result struct {
	Results     []*pipeline.SegmentationResult
	ImagePaths  []string
	Errors      []error // per image; nil entries succeeded
	Duration    time.Duration
	WorkerCount int
}

// Failed returns the number of images that could not be segmented.
func (r *Result) Failed() int {
	n := 0
	for _, err := range r.Errors {
		if err != nil {
			n++
		}
	}
	return n
}

// FormatResults formats the batch processing results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r, format)
}

// SaveResults writes the formatted results to outputFile, or to w when no
// file is given.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
		return nil
	}
	_, err = fmt.Fprint(w, output)
	return err
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer, quiet bool) {
	if quiet {
		return
	}
	stats := pipeline.CalculateParallelStats(r.Results, r.Duration, r.WorkerCount)
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total images: %d\n", len(r.ImagePaths))
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", stats.ProcessedItems)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.FailedItems)
	_, _ = fmt.Fprintf(w, "  Segments: %d\n", stats.TotalSegments)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per image: %v\n", stats.AveragePerItem.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f images/sec\n", stats.ThroughputPerSec)
}
