package testutil

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.NotEmpty(t, root)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
}

func TestFindUp(t *testing.T) {
	base := t.TempDir()
	nested := filepath.Join(base, "a", "b")
	require.NoError(t, EnsureDir(nested))
	SaveImage(t, Halves(2, 2, Red, Blue), filepath.Join(base, "a", "marker.png"))

	dir, err := findUp(nested, "marker.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "a"), dir)

	_, err = findUp(nested, "no-such-marker.png")
	assert.Error(t, err)
}

func TestTestDataDir(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)

	dir, err := TestDataDir("images")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "testdata", "images"), dir)
}

func TestEnsureDir(t *testing.T) {
	testDir := filepath.Join(t.TempDir(), "test", "nested", "dir")
	require.NoError(t, EnsureDir(testDir))
	assert.True(t, DirExists(testDir))
	assert.False(t, DirExists(filepath.Join(testDir, "missing")))
	assert.False(t, FileExists("/non/existent/file"))
}

func TestGenerateScene(t *testing.T) {
	img := Halves(10, 4, Red, Blue)
	assert.Equal(t, image.Rect(0, 0, 10, 4), img.Bounds())
	assert.Equal(t, Red, img.NRGBAAt(4, 2))
	assert.Equal(t, Blue, img.NRGBAAt(5, 2))

	q := Quadrants(40, 40)
	assert.Equal(t, Red, q.NRGBAAt(2, 2))
	assert.Equal(t, Green, q.NRGBAAt(37, 2))
	assert.Equal(t, Blue, q.NRGBAAt(2, 37))
	assert.Equal(t, Yellow, q.NRGBAAt(37, 37))
	assert.Equal(t, White, q.NRGBAAt(20, 20))

	disc := GenerateScene(SceneConfig{
		Size:       ImageSize{20, 20},
		Background: White,
		Circles:    []Circle{{Center: image.Pt(10, 10), Radius: 5, Color: Red}},
	})
	assert.Equal(t, Red, disc.NRGBAAt(10, 10))
	assert.Equal(t, Red, disc.NRGBAAt(15, 10))
	assert.Equal(t, White, disc.NRGBAAt(15, 15))
}

func TestGenerateScene_NoiseIsDeterministic(t *testing.T) {
	cfg := DefaultSceneConfig()
	cfg.Size = ImageSize{16, 16}
	cfg.Noise = 8

	a := GenerateScene(cfg)
	b := GenerateScene(cfg)
	assert.Equal(t, a.Pix, b.Pix)

	cfg.Seed = 2
	c := GenerateScene(cfg)
	assert.NotEqual(t, a.Pix, c.Pix)

	plain := DefaultSceneConfig()
	plain.Size = cfg.Size
	assert.True(t, CompareImages(a, GenerateScene(plain), 0.05))
}

func TestGenerateScene_CaptionAndBlur(t *testing.T) {
	cfg := DefaultSceneConfig()
	cfg.Caption = "regions"
	captioned := GenerateScene(cfg)
	assert.False(t, CompareImages(captioned, GenerateScene(DefaultSceneConfig()), 0))

	cfg.Blur = 1.5
	blurred := GenerateScene(cfg)
	assert.Equal(t, captioned.Bounds(), blurred.Bounds())
}

func TestSaveAndLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scene.png")
	img := Quadrants(20, 20)
	SaveImage(t, img, path)

	loaded := LoadImage(t, path)
	assert.True(t, CompareImages(img, loaded, 0))
}

func TestLabelImage(t *testing.T) {
	img := LabelImage(4, 2, func(x, _ int) uint16 { return uint16(x / 2) })
	assert.Equal(t, uint16(0), img.Gray16At(1, 0).Y)
	assert.Equal(t, uint16(1), img.Gray16At(2, 1).Y)
}

func TestCompareImages(t *testing.T) {
	a := Halves(8, 8, Red, Blue)
	assert.True(t, CompareImages(a, a, 0))
	assert.False(t, CompareImages(a, Halves(8, 4, Red, Blue), 1))
	assert.False(t, CompareImages(a, Halves(8, 8, Blue, Red), 0.1))
}

func TestFixtures(t *testing.T) {
	fixtures := StandardFixtures()
	require.NotEmpty(t, fixtures)
	for _, f := range fixtures {
		assert.NotEmpty(t, f.Name)
		assert.LessOrEqual(t, f.Expected.MinSegments, f.Expected.MaxSegments)
	}

	dir := t.TempDir()
	paths := WriteFixtureImages(t, dir, fixtures)
	require.Len(t, paths, len(fixtures))
	for _, p := range paths {
		assert.True(t, FileExists(p))
	}

	SaveFixture(t, dir, fixtures[1])
	loaded := LoadFixture(t, dir, fixtures[1].Name)
	assert.Equal(t, fixtures[1].Name, loaded.Name)
	assert.Equal(t, fixtures[1].Expected, loaded.Expected)
	assert.Equal(t, fixtures[1].Scene.Rects, loaded.Scene.Rects)
}
