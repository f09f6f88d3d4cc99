package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/regionseg/internal/testutil"
)

// theStandardFixtureImagesAreIn renders every built-in scene into dir as
// <name>.png.
func (testCtx *TestContext) theStandardFixtureImagesAreIn(dir string) error {
	target := testCtx.Path(dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	testCtx.TrackDirectory(dir)
	for _, fx := range testutil.StandardFixtures() {
		path := filepath.Join(target, fx.Name+".png")
		if err := imaging.Save(testutil.GenerateScene(fx.Scene), path); err != nil {
			return fmt.Errorf("failed to write fixture %s: %w", fx.Name, err)
		}
	}
	return nil
}

// theStandardFixtureImagesAreAvailable writes the scenes into the temp root.
func (testCtx *TestContext) theStandardFixtureImagesAreAvailable() error {
	return testCtx.theStandardFixtureImagesAreIn(".")
}

// aHalvesImage writes a red/blue split image of the given size.
func (testCtx *TestContext) aHalvesImage(filename string, w, h int) error {
	img := testutil.Halves(w, h, testutil.Red, testutil.Blue)
	if err := imaging.Save(img, testCtx.Path(filename)); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

// aConstantLabelImage writes a 16-bit label image with every pixel set to id.
func (testCtx *TestContext) aConstantLabelImage(filename string, w, h, id int) error {
	img := testutil.LabelImage(w, h, func(_, _ int) uint16 { return uint16(id) }) //nolint:gosec // G115: small test ids
	if err := imaging.Save(img, testCtx.Path(filename)); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

// aFileThatIsNotAnImage writes garbage bytes under an image extension.
func (testCtx *TestContext) aFileThatIsNotAnImage(filename string) error {
	return os.WriteFile(testCtx.Path(filename), []byte("not an image"), 0o600)
}

// theOutputShouldReportSegments checks the segment count of a single-image
// JSON result.
func (testCtx *TestContext) theOutputShouldReportSegments(count int) error {
	data, err := testCtx.parseStdoutJSON()
	if err != nil {
		return err
	}
	return checkArrayLength(data, "segments", count)
}

// theBatchResultForShouldReportSegments finds the batch entry whose file has
// the given base name and checks its segment count.
func (testCtx *TestContext) theBatchResultForShouldReportSegments(name string, count int) error {
	data, err := testCtx.parseStdoutJSON()
	if err != nil {
		return err
	}
	images, err := lookupJSONPath(data, "images")
	if err != nil {
		return err
	}
	entries, ok := images.([]any)
	if !ok {
		return errors.New("batch output has no images array")
	}
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		file, _ := entry["file"].(string)
		if filepath.Base(file) != name {
			continue
		}
		if msg, ok := entry["error"].(string); ok && msg != "" {
			return fmt.Errorf("batch entry %s failed: %s", name, msg)
		}
		return checkArrayLength(entry, "result.segments", count)
	}
	return fmt.Errorf("no batch entry for %s in output: %s", name, testCtx.LastStdout)
}

// theImageShouldMeasure decodes an artifact and checks its dimensions.
func (testCtx *TestContext) theImageShouldMeasure(filename string, w, h int) error {
	img, err := imaging.Open(testCtx.Path(filename))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filename, err)
	}
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		return fmt.Errorf("image %s is %dx%d, expected %dx%d", filename, b.Dx(), b.Dy(), w, h)
	}
	return nil
}

// RegisterImageSteps registers fixture and segmentation result steps.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the standard fixture images are available$`, testCtx.theStandardFixtureImagesAreAvailable)
	sc.Step(`^the standard fixture images are in directory "([^"]*)"$`, testCtx.theStandardFixtureImagesAreIn)
	sc.Step(`^a red and blue halves image "([^"]*)" of size (\d+)x(\d+)$`, testCtx.aHalvesImage)
	sc.Step(`^a label image "([^"]*)" of size (\d+)x(\d+) with every pixel labelled (\d+)$`, testCtx.aConstantLabelImage)
	sc.Step(`^a file "([^"]*)" that is not an image$`, testCtx.aFileThatIsNotAnImage)

	sc.Step(`^the output should report (\d+) segments?$`, testCtx.theOutputShouldReportSegments)
	sc.Step(`^the batch result for "([^"]*)" should report (\d+) segments?$`, testCtx.theBatchResultForShouldReportSegments)
	sc.Step(`^the image "([^"]*)" should measure (\d+)x(\d+)$`, testCtx.theImageShouldMeasure)
}
