package main

import (
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/regionseg/internal/testutil"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		generateImages   = flag.Bool("images", true, "Generate synthetic scene images")
		generateFixtures = flag.Bool("fixtures", true, "Generate YAML scene fixtures")
		variants         = flag.Bool("variants", true, "Also generate noisy, blurred and captioned variants")
		verbose          = flag.Bool("v", false, "Verbose output")
		help             = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic scenes for regionseg testing.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                 # Generate all test data\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -fixtures=false # Generate only images\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -variants=false # Only the standard scenes\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	imagesDir, err := testutil.TestDataDir("images")
	if err != nil {
		slog.Error("Failed to find project root", "error", err)
		os.Exit(1)
	}
	fixturesDir, _ := testutil.TestDataDir("fixtures")
	if *verbose {
		slog.Info("Options", "images_dir", imagesDir, "images", *generateImages, "fixtures", *generateFixtures, "variants", *variants)
	}

	fixtures := testutil.StandardFixtures()
	if *variants {
		fixtures = append(fixtures, variantFixtures()...)
	}

	if *generateImages {
		if err := writeImages(imagesDir, fixtures); err != nil {
			slog.Error("Failed to generate images", "error", err)
			os.Exit(1)
		}
		slog.Info("Generated scene images", "count", len(fixtures), "dir", imagesDir)
	}

	if *generateFixtures {
		if err := writeFixtures(fixturesDir, fixtures); err != nil {
			slog.Error("Failed to generate fixtures", "error", err)
			os.Exit(1)
		}
		slog.Info("Generated scene fixtures", "count", len(fixtures), "dir", fixturesDir)
	}
}

// variantFixtures derives harder scenes from the standard ones. Their
// expectations are loose since smoothing decides the transition regions.
func variantFixtures() []testutil.SceneFixture {
	var out []testutil.SceneFixture
	for _, fx := range testutil.StandardFixtures() {
		noisy := fx
		noisy.Name = fx.Name + "_noisy"
		noisy.Description = fx.Description + ", with noise and blur"
		noisy.Scene.Noise = 6
		noisy.Scene.Blur = 1
		noisy.Scene.Seed = 7
		noisy.Options = nil
		noisy.Expected.MaxSegments = fx.Expected.MaxSegments * 3
		noisy.Expected.MinCoverage = 0.8
		out = append(out, noisy)
	}

	out = append(out, testutil.SceneFixture{
		Name:        "captioned",
		Description: "Two rectangles above a black caption",
		Scene: testutil.SceneConfig{
			Size:       testutil.MediumSize,
			Background: testutil.White,
			Rects: []testutil.Rect{
				{Bounds: image.Rect(20, 20, 150, 180), Color: testutil.Green},
				{Bounds: image.Rect(170, 20, 300, 180), Color: testutil.Yellow},
			},
			Caption: "regionseg",
		},
		Expected: testutil.ExpectedSegmentation{MinSegments: 3, MaxSegments: 40, MinCoverage: 0.8},
	})
	return out
}

func writeImages(imagesDir string, fixtures []testutil.SceneFixture) error {
	if err := testutil.EnsureDir(imagesDir); err != nil {
		return fmt.Errorf("failed to create images directory: %w", err)
	}
	for _, fx := range fixtures {
		path := filepath.Join(imagesDir, fx.Name+".png")
		if err := imaging.Save(testutil.GenerateScene(fx.Scene), path); err != nil {
			return fmt.Errorf("failed to save %s: %w", path, err)
		}
	}
	return nil
}

// writeFixtures stores one YAML file per scene, readable by
// testutil.LoadFixture.
func writeFixtures(fixturesDir string, fixtures []testutil.SceneFixture) error {
	if err := testutil.EnsureDir(fixturesDir); err != nil {
		return fmt.Errorf("failed to create fixtures directory: %w", err)
	}
	for _, fx := range fixtures {
		data, err := yaml.Marshal(fx)
		if err != nil {
			return fmt.Errorf("failed to marshal fixture %s: %w", fx.Name, err)
		}
		path := filepath.Join(fixturesDir, fx.Name+".yaml")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
