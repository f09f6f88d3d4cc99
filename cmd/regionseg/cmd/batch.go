package cmd

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/regionseg/internal/batch"
	"github.com/MeKo-Tech/regionseg/internal/config"
)

// batchCmd represents the batch command for parallel image segmentation.
var batchCmd = &cobra.Command{
	Use:   "batch [files or directories...]",
	Short: "Segment many images in parallel",
	Long: `Segment multiple image files in parallel. Directories are scanned for
supported images; label images are matched to inputs by base name.

Supported formats: JPEG, PNG, BMP, TIFF

Examples:
  regionseg batch *.png
  regionseg batch images/ --recursive --workers 8
  regionseg batch images/ --labels-dir labels/ --map-dir maps/
  regionseg batch a.png b.png --format json --output results.json`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// configToBatchConfig maps centralized configuration to batch.Config.
// Flags override configuration values only when set explicitly.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) (*batch.Config, error) {
	batchConfig := batch.DefaultConfig()
	batchConfig.Pipeline = cfg.ToPipelineConfig()
	batchConfig.Overrides, _ = cmd.Flags().GetStringArray("set")
	batchConfig.Stderr = cmd.ErrOrStderr()

	batchConfig.Format = cfg.Output.Format
	if cmd.Flags().Changed("format") {
		batchConfig.Format, _ = cmd.Flags().GetString("format")
	}

	batchConfig.OutputFile = cfg.Output.File
	if cmd.Flags().Changed("output") {
		batchConfig.OutputFile, _ = cmd.Flags().GetString("output")
	}

	batchConfig.MapDir = cfg.Output.MapDir
	if cmd.Flags().Changed("map-dir") {
		batchConfig.MapDir, _ = cmd.Flags().GetString("map-dir")
	}

	batchConfig.OverlayDir = cfg.Output.OverlayDir
	if cmd.Flags().Changed("overlay-dir") {
		batchConfig.OverlayDir, _ = cmd.Flags().GetString("overlay-dir")
	}

	batchConfig.OverlayAlpha = cfg.Output.OverlayAlpha

	batchConfig.LabelsDir, _ = cmd.Flags().GetString("labels-dir")

	batchConfig.Workers = cfg.Batch.Workers
	if cmd.Flags().Changed("workers") {
		batchConfig.Workers, _ = cmd.Flags().GetInt("workers")
	}

	batchConfig.ContinueOnError = cfg.Batch.ContinueOnError
	if cmd.Flags().Changed("continue-on-error") {
		batchConfig.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}

	batchConfig.Recursive = cfg.Batch.Recursive
	if cmd.Flags().Changed("recursive") {
		batchConfig.Recursive, _ = cmd.Flags().GetBool("recursive")
	}

	batchConfig.IncludePatterns = cfg.Batch.IncludePatterns
	if cmd.Flags().Changed("include") || len(batchConfig.IncludePatterns) == 0 {
		batchConfig.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	}

	batchConfig.ExcludePatterns = cfg.Batch.ExcludePatterns
	if cmd.Flags().Changed("exclude") {
		batchConfig.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	}

	// Progress settings are CLI-only.
	batchConfig.ShowProgress, _ = cmd.Flags().GetBool("progress")
	batchConfig.Quiet, _ = cmd.Flags().GetBool("quiet")
	batchConfig.ShowStats, _ = cmd.Flags().GetBool("stats")
	batchConfig.ProgressInterval, _ = cmd.Flags().GetDuration("progress-interval")

	if !slices.Contains(validFormats, batchConfig.Format) {
		return nil, fmt.Errorf("invalid output format: %s (must be one of: %s)",
			batchConfig.Format, strings.Join(validFormats, ", "))
	}
	if batchConfig.Workers <= 0 {
		return nil, fmt.Errorf("invalid worker count: %d (must be positive)", batchConfig.Workers)
	}
	return batchConfig, nil
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	config, err := configToBatchConfig(cfg, cmd)
	if err != nil {
		return err
	}

	slog.Debug("starting batch", "inputs", len(args), "workers", config.Workers, "recursive", config.Recursive)

	result, err := batch.ProcessBatch(commandContext(cmd), args, config)
	if err != nil {
		return fmt.Errorf("batch processing failed: %w", err)
	}

	if err := result.SaveResults(cmd.OutOrStdout(), config.Format, config.OutputFile, config.Quiet); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	if config.ShowStats {
		result.PrintStats(cmd.ErrOrStderr(), config.Quiet)
	}

	if n := result.Failed(); n > 0 {
		return fmt.Errorf("%d of %d images failed", n, len(result.ImagePaths))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Output flags
	batchCmd.Flags().StringP("format", "f", outputFormatText, "output format: text, json, yaml, csv")
	batchCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	batchCmd.Flags().String("map-dir", "", "directory to save segment id maps")
	batchCmd.Flags().String("overlay-dir", "", "directory to save overlay images")
	batchCmd.Flags().String("labels-dir", "", "directory of label images matched to inputs by base name")
	batchCmd.Flags().StringArray("set", nil, "engine option assignment name=value (repeatable)")

	// Parallel processing flags
	batchCmd.Flags().IntP("workers", "w", 0, fmt.Sprintf("number of parallel workers (default: %d)", runtime.NumCPU()))
	batchCmd.Flags().Bool("continue-on-error", false, "keep going when an image fails")

	// File discovery flags
	batchCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	batchCmd.Flags().StringSlice("include",
		[]string{"*.jpg", "*.jpeg", "*.png", "*.bmp", "*.tif", "*.tiff"}, "file patterns to include")
	batchCmd.Flags().StringSlice("exclude", []string{}, "file patterns to exclude")

	// Progress and monitoring flags
	batchCmd.Flags().Bool("progress", false, "show progress bar")
	batchCmd.Flags().Bool("quiet", false, "suppress progress output")
	batchCmd.Flags().Bool("stats", false, "show processing statistics")
	batchCmd.Flags().Duration("progress-interval", 500*time.Millisecond, "progress update interval")
}
