package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/regionseg/internal/config"
	"github.com/MeKo-Tech/regionseg/internal/pipeline"
	"github.com/MeKo-Tech/regionseg/internal/utils"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
	outputFormatYAML = "yaml"
	outputFormatCSV  = "csv"
)

var validFormats = []string{outputFormatText, outputFormatJSON, outputFormatYAML, outputFormatCSV}

// imageCmd represents the image command.
var imageCmd = &cobra.Command{
	Use:   "image [files...]",
	Short: "Segment images into colour regions",
	Long: `Segment one or more image files into connected regions of similar colour.

Supported formats: JPEG, PNG, BMP, TIFF

Engine options are set with --set name=value; names may be abbreviated to
any unique prefix (see "regionseg config options").

Examples:
  regionseg image photo.png
  regionseg image *.png --format json
  regionseg image scene.png --labels scene_labels.png --overlay-dir out/
  regionseg image scene.png --set min_seg=40 --set find_neighbors=true`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runImageCommand,
}

func runImageCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("no input files provided")
	}

	cfg := GetConfig()

	format := cfg.Output.Format
	if !slices.Contains(validFormats, format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", format, strings.Join(validFormats, ", "))
	}
	if cfg.Output.OverlayAlpha < 0 || cfg.Output.OverlayAlpha > 1 {
		return fmt.Errorf("invalid overlay alpha: %.2f (must be between 0.0 and 1.0)", cfg.Output.OverlayAlpha)
	}

	sets, _ := cmd.Flags().GetStringArray("set")
	if err := cfg.ApplyOverrides(sets); err != nil {
		return fmt.Errorf("invalid engine option: %w", err)
	}

	labelsPath, _ := cmd.Flags().GetString("labels")
	if labelsPath != "" && len(args) > 1 {
		return errors.New("--labels requires exactly one input image")
	}

	pl, err := pipeline.NewBuilder().
		WithConfig(cfg.ToPipelineConfig()).
		WithLogger(slog.Default()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build segmentation pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing pipeline: %v\n", err)
		}
	}()

	ctx := commandContext(cmd)
	results := make([]*pipeline.SegmentationResult, 0, len(args))
	for _, pth := range args {
		if !utils.IsSupportedImage(pth) {
			return fmt.Errorf("unsupported image format: %s", pth)
		}
		res, err := pl.ProcessFile(ctx, pth, labelsPath)
		if err != nil {
			return fmt.Errorf("segmentation failed: %w", err)
		}
		if err := writeImageArtifacts(cmd, cfg, pth, res); err != nil {
			return err
		}
		results = append(results, res)
	}

	out, err := formatImageResults(format, args, results)
	if err != nil {
		return err
	}
	if cfg.Output.File != "" {
		if err := os.WriteFile(cfg.Output.File, []byte(out), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Results written to %s\n", cfg.Output.File)
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

// formatImageResults renders results in input order. Multi-file text and
// CSV output is prefixed per file; JSON becomes an array.
func formatImageResults(format string, paths []string, results []*pipeline.SegmentationResult) (string, error) {
	if format == outputFormatJSON {
		if len(results) == 1 {
			s, err := pipeline.ToJSONImage(results[0])
			return s + "\n", err
		}
		s, err := pipeline.ToJSONImages(results)
		return s + "\n", err
	}

	var sb strings.Builder
	for i, res := range results {
		var (
			s   string
			err error
		)
		switch format {
		case outputFormatYAML:
			s, err = pipeline.ToYAMLImage(res)
			if i > 0 {
				sb.WriteString("---\n")
			}
		case outputFormatCSV:
			s, err = pipeline.ToCSVImage(res)
			if len(results) > 1 {
				sb.WriteString("# " + paths[i] + "\n")
			}
		default:
			s, err = pipeline.ToPlainTextImage(res)
			sb.WriteString(paths[i] + ": ")
		}
		if err != nil {
			return "", fmt.Errorf("format %s failed: %w", format, err)
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// writeImageArtifacts saves the segment map and overlay for one input when
// the output directories are configured.
func writeImageArtifacts(cmd *cobra.Command, cfg *config.Config, path string, res *pipeline.SegmentationResult) error {
	if dir := cfg.Output.MapDir; dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create map directory: %w", err)
		}
		out := artifactName(dir, path, "segments")
		if err := utils.SaveSegmentMap(out, res.Map); err != nil {
			return fmt.Errorf("failed to save segment map: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Saved segment map: %s\n", out)
	}

	if dir := cfg.Output.OverlayDir; dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create overlay directory: %w", err)
		}
		img, _, err := utils.LoadImage(path)
		if err != nil {
			return err
		}
		fitted, _, err := utils.FitImage(img, cfg.ToPipelineConfig().Constraints)
		if err != nil {
			return err
		}
		opts := pipeline.DefaultOverlayOptions()
		opts.FillAlpha = cfg.Output.OverlayAlpha
		ov := pipeline.RenderOverlay(fitted, res, opts)
		if ov == nil {
			return errors.New("overlay rendering failed")
		}
		out := artifactName(dir, path, "overlay")
		if err := imaging.Save(ov, out); err != nil {
			return fmt.Errorf("failed to save overlay: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Saved overlay: %s\n", out)
	}
	return nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func artifactName(dir, source, kind string) string {
	base := filepath.Base(source)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_"+kind+".png")
}

func addImageFlags(cmd *cobra.Command) {
	cons := utils.DefaultImageConstraints()
	cmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json, yaml, csv)")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().String("labels", "", "label image seeding the segmentation (single input only)")
	cmd.Flags().String("map-dir", "", "directory to write 16-bit segment id maps")
	cmd.Flags().String("overlay-dir", "", "directory to write overlay images")
	cmd.Flags().Float64("overlay-alpha", pipeline.DefaultOverlayOptions().FillAlpha, "overlay fill opacity (0..1)")
	cmd.Flags().Int("max-width", cons.MaxWidth, "downscale wider images to this width (0 disables)")
	cmd.Flags().Int("max-height", cons.MaxHeight, "downscale taller images to this height (0 disables)")
	cmd.Flags().Float64("simplify", 0, "outline simplification tolerance in pixels (0 keeps every corner)")
	cmd.Flags().StringArray("set", nil, "engine option assignment name=value (repeatable)")
}

// bindImageFlags binds image flags to viper configuration keys.
func bindImageFlags(cmd *cobra.Command) {
	flagBindings := []struct {
		key  string
		flag string
	}{
		{"output.format", "format"},
		{"output.file", "output"},
		{"output.map_dir", "map-dir"},
		{"output.overlay_dir", "overlay-dir"},
		{"output.overlay_alpha", "overlay-alpha"},
		{"pipeline.max_width", "max-width"},
		{"pipeline.max_height", "max-height"},
		{"pipeline.simplify_epsilon", "simplify"},
	}

	for _, binding := range flagBindings {
		if err := viper.BindPFlag(binding.key, cmd.Flags().Lookup(binding.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", binding.flag, err))
		}
	}
}

func init() {
	rootCmd.AddCommand(imageCmd)

	addImageFlags(imageCmd)
	bindImageFlags(imageCmd)
}

// GetImageCommand returns the image command for testing purposes.
func GetImageCommand() *cobra.Command {
	return imageCmd
}
