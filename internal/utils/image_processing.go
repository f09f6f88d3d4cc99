package utils

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur while loading or
// preparing images.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ImageConstraints bounds the images handed to the segmentation engine.
type ImageConstraints struct {
	MaxWidth  int
	MaxHeight int
	MinWidth  int
	MinHeight int
}

// DefaultImageConstraints returns the default constraints for segmentation
// input. Larger images are downscaled; a zero maximum disables scaling.
func DefaultImageConstraints() ImageConstraints {
	return ImageConstraints{
		MaxWidth:  2048,
		MaxHeight: 2048,
		MinWidth:  1,
		MinHeight: 1,
	}
}

// FitImage downscales img so it fits into the maximum dimensions while
// preserving the aspect ratio. Images that already fit are returned as-is
// with scale 1. The returned scale maps output coordinates to input
// coordinates (input = output * scale).
func FitImage(img image.Image, constraints ImageConstraints) (image.Image, float64, error) {
	if err := ValidateImageConstraints(img, constraints); err != nil {
		return nil, 0, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if constraints.MaxWidth <= 0 || constraints.MaxHeight <= 0 {
		return img, 1, nil
	}

	scale := math.Min(float64(constraints.MaxWidth)/float64(w), float64(constraints.MaxHeight)/float64(h))
	// Only scale down, never up
	if scale >= 1.0 {
		return img, 1, nil
	}

	// Lanczos keeps edges crisp, which matters for region boundaries.
	fitted := imaging.Fit(img, constraints.MaxWidth, constraints.MaxHeight, imaging.Lanczos)
	fb := fitted.Bounds()
	return fitted, float64(w) / float64(fb.Dx()), nil
}

// ValidateImageConstraints checks dimensions against the provided constraints.
func ValidateImageConstraints(img image.Image, constraints ImageConstraints) error {
	if img == nil {
		return &ImageProcessingError{Operation: "validate", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return &ImageProcessingError{Operation: "validate", Err: fmt.Errorf("empty image %dx%d", w, h)}
	}
	if w < constraints.MinWidth || h < constraints.MinHeight {
		return &ImageProcessingError{
			Operation: "validate",
			Err: fmt.Errorf(
				"image too small: %dx%d < %dx%d",
				w, h, constraints.MinWidth, constraints.MinHeight,
			),
		}
	}
	return nil
}
