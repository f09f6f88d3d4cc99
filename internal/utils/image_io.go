package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/MeKo-Tech/regionseg/internal/segment"
)

// SupportedImageExtensions lists supported file extensions for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff"}

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// ImageMetadata captures lightweight file and pixel information.
type ImageMetadata struct {
	Path        string  `json:"path"        yaml:"path"`
	Format      string  `json:"format"      yaml:"format"`
	SizeBytes   int64   `json:"size_bytes"  yaml:"size_bytes"`
	Width       int     `json:"width"       yaml:"width"`
	Height      int     `json:"height"      yaml:"height"`
	AspectRatio float64 `json:"aspect_ratio" yaml:"aspect_ratio"`
}

// LoadImage opens and decodes an image file, applying the EXIF orientation,
// and returns the image with its metadata.
func LoadImage(path string) (image.Image, ImageMetadata, error) {
	if path == "" {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		err := &ImageProcessingError{Operation: "load", Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
		return nil, ImageMetadata{}, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: err}
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "decode", Err: err}
	}

	b := img.Bounds()
	meta := ImageMetadata{
		Path:        path,
		Format:      strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		SizeBytes:   fi.Size(),
		Width:       b.Dx(),
		Height:      b.Dy(),
		AspectRatio: float64(b.Dx()) / float64(b.Dy()),
	}
	return img, meta, nil
}

// LoadLabelMap reads a label image. Grayscale pixels (8 or 16 bit) are
// taken as ids directly; colour pixels are packed as 0xRRGGBB so that each
// distinct colour is one region. Zero stays unassigned.
func LoadLabelMap(path string) (*segment.LabelMap, error) {
	if !IsSupportedImage(path) {
		return nil, &ImageProcessingError{Operation: "load labels", Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, &ImageProcessingError{Operation: "load labels", Err: err}
	}
	return LabelMapFromImage(img), nil
}

// LabelMapFromImage converts a decoded label image into a label map.
func LabelMapFromImage(img image.Image) *segment.LabelMap {
	b := img.Bounds()
	lm := segment.NewLabelMap(b.Dy(), b.Dx())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var v int32
			switch src := img.(type) {
			case *image.Gray16:
				v = int32(src.Gray16At(x, y).Y)
			case *image.Gray:
				v = int32(src.GrayAt(x, y).Y)
			default:
				r, g, bl, _ := img.At(x, y).RGBA()
				v = int32(r>>8)<<16 | int32(g>>8)<<8 | int32(bl>>8)
			}
			lm.Set(y-b.Min.Y, x-b.Min.X, v)
		}
	}
	return lm
}

// SegmentMapImage renders the final segment ids as a 16-bit grayscale
// image. Unassigned, rejected and invalid pixels become 0.
func SegmentMapImage(seg *segment.Segmentation) (*image.Gray16, error) {
	if len(seg.Segments) > math.MaxUint16 {
		return nil, &ImageProcessingError{
			Operation: "encode map",
			Err:       fmt.Errorf("%d segments do not fit into 16 bit", len(seg.Segments)),
		}
	}
	dst := image.NewGray16(image.Rect(0, 0, seg.Cols, seg.Rows))
	for i := range seg.Rows {
		for j := range seg.Cols {
			v := seg.At(i, j)
			if v < 0 {
				v = 0
			}
			dst.SetGray16(j, i, color.Gray16{Y: uint16(v)})
		}
	}
	return dst, nil
}

// SaveSegmentMap writes the segment map as a 16-bit PNG.
func SaveSegmentMap(path string, seg *segment.Segmentation) error {
	if !strings.EqualFold(filepath.Ext(path), ".png") {
		return &ImageProcessingError{Operation: "save map", Err: errors.New("segment maps are written as .png")}
	}
	img, err := SegmentMapImage(seg)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return &ImageProcessingError{Operation: "save map", Err: err}
	}
	return nil
}
