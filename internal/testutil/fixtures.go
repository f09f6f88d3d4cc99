package testutil

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// SceneFixture pairs a synthetic scene with the segmentation it should
// produce under Options.
type SceneFixture struct {
	Name        string               `json:"name"              yaml:"name"`
	Description string               `json:"description"       yaml:"description"`
	Scene       SceneConfig          `json:"scene"             yaml:"scene"`
	Options     []string             `json:"options,omitempty" yaml:"options,omitempty"`
	Expected    ExpectedSegmentation `json:"expected"          yaml:"expected"`
}

// ExpectedSegmentation bounds the outcome of a fixture.
type ExpectedSegmentation struct {
	MinSegments int     `json:"min_segments" yaml:"min_segments"`
	MaxSegments int     `json:"max_segments" yaml:"max_segments"`
	MinCoverage float64 `json:"min_coverage" yaml:"min_coverage"`
}

// unsmoothed keeps hard synthetic edges from forming transition segments.
var unsmoothed = []string{"smooth_scales=0"}

// StandardFixtures returns the built-in scenes.
func StandardFixtures() []SceneFixture {
	return []SceneFixture{
		{
			Name:        "halves",
			Description: "Red left half, blue right half",
			Scene: SceneConfig{
				Size:       TinySize,
				Background: Red,
				Rects:      []Rect{{Bounds: image.Rect(20, 0, 40, 20), Color: Blue}},
			},
			Options:  unsmoothed,
			Expected: ExpectedSegmentation{MinSegments: 2, MaxSegments: 2, MinCoverage: 0.95},
		},
		{
			Name:        "quadrants",
			Description: "Four coloured quadrants around a white square",
			Scene: SceneConfig{
				Size:       ImageSize{80, 80},
				Background: Red,
				Rects: []Rect{
					{Bounds: image.Rect(40, 0, 80, 40), Color: Green},
					{Bounds: image.Rect(0, 40, 40, 80), Color: Blue},
					{Bounds: image.Rect(40, 40, 80, 80), Color: Yellow},
					{Bounds: image.Rect(30, 30, 50, 50), Color: White},
				},
			},
			Options:  unsmoothed,
			Expected: ExpectedSegmentation{MinSegments: 5, MaxSegments: 5, MinCoverage: 0.95},
		},
		{
			Name:        "discs",
			Description: "Two discs on a white background",
			Scene: SceneConfig{
				Size:       SmallSize,
				Background: White,
				Circles: []Circle{
					{Center: image.Pt(45, 60), Radius: 25, Color: Red},
					{Center: image.Pt(115, 60), Radius: 25, Color: Blue},
				},
			},
			Options:  unsmoothed,
			Expected: ExpectedSegmentation{MinSegments: 3, MaxSegments: 4, MinCoverage: 0.9},
		},
	}
}

// WriteFixtureImages renders every fixture to dir as PNG and returns the
// paths in fixture order.
func WriteFixtureImages(t *testing.T, dir string, fixtures []SceneFixture) []string {
	t.Helper()
	paths := make([]string, len(fixtures))
	for i, f := range fixtures {
		paths[i] = filepath.Join(dir, f.Name+".png")
		SaveImage(t, GenerateScene(f.Scene), paths[i])
	}
	return paths
}

// SaveFixture writes fixture to dir as YAML.
func SaveFixture(t *testing.T, dir string, fixture SceneFixture) string {
	t.Helper()
	require.NoError(t, EnsureDir(dir))

	data, err := yaml.Marshal(fixture)
	require.NoError(t, err, "Failed to marshal fixture")

	path := filepath.Join(dir, fixture.Name+".yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600), "Failed to write fixture file: %s", path)
	return path
}

// LoadFixture reads a fixture saved by SaveFixture.
func LoadFixture(t *testing.T, dir, name string) SceneFixture {
	t.Helper()

	path := filepath.Join(dir, name+".yaml")
	data, err := os.ReadFile(path) //nolint:gosec // G304: Reading test fixture files with controlled paths
	require.NoError(t, err, "Failed to read fixture file: %s", path)

	var fixture SceneFixture
	require.NoError(t, yaml.Unmarshal(data, &fixture), "Failed to unmarshal fixture YAML")
	return fixture
}
