package cmd

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/regionseg/internal/common"
	"github.com/MeKo-Tech/regionseg/internal/pipeline"
	"github.com/MeKo-Tech/regionseg/internal/segment"
	"github.com/MeKo-Tech/regionseg/internal/testutil"
	"github.com/MeKo-Tech/regionseg/internal/utils"
)

// benchCmd times whole runs and individual phases.
var benchCmd = &cobra.Command{
	Use:   "bench [files...]",
	Short: "Benchmark segmentation runs and per-phase timings",
	Long: `Segment each input repeatedly and report run time, allocations and the
mean duration of every engine phase. Without inputs a set of synthetic scenes
is used.

Examples:
  regionseg bench
  regionseg bench photo.png --iterations 10
  regionseg bench photo.png --set random_seeding=true`,
	SilenceUsage: true,
	RunE:         runBenchCommand,
}

type benchInput struct {
	name string
	img  image.Image
}

func runBenchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	sets, _ := cmd.Flags().GetStringArray("set")
	if err := cfg.ApplyOverrides(sets); err != nil {
		return fmt.Errorf("invalid engine option: %w", err)
	}
	iterations, _ := cmd.Flags().GetInt("iterations")
	if iterations <= 0 {
		return fmt.Errorf("invalid iterations: %d (must be positive)", iterations)
	}

	inputs, err := benchInputs(args)
	if err != nil {
		return err
	}

	phases := common.NewPhaseTimes()
	observer := segment.ObserverFunc(func(p segment.Phase, d time.Duration, _ int) {
		phases.Add(string(p), d)
	})

	// One shared engine, so runs after the first reuse its buffers.
	pl, err := pipeline.NewBuilder().
		WithConfig(cfg.ToPipelineConfig()).
		WithObserver(observer).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build segmentation pipeline: %w", err)
	}
	defer func() { _ = pl.Close() }()

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "regionseg benchmark: %d image(s), %d iteration(s) each\n\n", len(inputs), iterations)

	var failed []error
	for _, in := range inputs {
		segments := 0
		res := common.Measure(in.name, iterations, func() error {
			r, err := pl.ProcessImageContext(ctx, in.img, pipeline.ProcessOptions{})
			if err != nil {
				return err
			}
			segments = len(r.Segments)
			return nil
		})
		_, _ = fmt.Fprintln(out, res.String())
		if res.Error != nil {
			failed = append(failed, fmt.Errorf("%s: %w", in.name, res.Error))
			continue
		}
		b := in.img.Bounds()
		_, _ = fmt.Fprintf(out, "  %dx%d, %d segments\n", b.Dx(), b.Dy(), segments)
	}

	high, retained := pl.BufferUsage()
	_, _ = fmt.Fprintf(out, "\nBuffers: largest %d elements, %d retained\n", high, retained)

	if len(phases.Phases()) > 0 {
		_, _ = fmt.Fprintln(out, "Mean phase durations:")
		for _, p := range phases.Phases() {
			_, _ = fmt.Fprintf(out, "  %-10s %v\n", p, phases.Mean(p))
		}
	}
	return errors.Join(failed...)
}

// benchInputs loads the named files, or renders the built-in scenes plus a
// noisy one when no files are given.
func benchInputs(paths []string) ([]benchInput, error) {
	if len(paths) == 0 {
		var inputs []benchInput
		for _, f := range testutil.StandardFixtures() {
			inputs = append(inputs, benchInput{name: f.Name, img: testutil.GenerateScene(f.Scene)})
		}
		noisy := testutil.StandardFixtures()[1].Scene
		noisy.Size = testutil.MediumSize
		noisy.Noise = 6
		noisy.Blur = 1
		inputs = append(inputs, benchInput{name: "quadrants_noisy", img: testutil.GenerateScene(noisy)})
		return inputs, nil
	}

	inputs := make([]benchInput, 0, len(paths))
	for _, p := range paths {
		img, _, err := utils.LoadImage(p)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", p, err)
		}
		inputs = append(inputs, benchInput{name: p, img: img})
	}
	return inputs, nil
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntP("iterations", "n", 3, "runs per image")
	benchCmd.Flags().StringArray("set", nil, "engine option assignment name=value (repeatable)")
}
