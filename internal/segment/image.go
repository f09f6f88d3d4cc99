package segment

import (
	"fmt"
	"math"
)

// sumEpsilon keeps chrominance finite for black pixels.
const sumEpsilon = 1e-6

// Map sentinel codes.
const (
	// Unassigned marks a valid pixel that belongs to no segment.
	Unassigned int32 = 0
	// InvalidPixel marks a pixel whose source sample is invalid.
	InvalidPixel int32 = math.MinInt32
)

// Sample is one RGB pixel with its derived sum and chrominance.
type Sample struct {
	R, G, B float64
	Sum     float64
	RChrom  float64
	GChrom  float64
}

// NewSample derives sum and chrominance from r, g, b.
func NewSample(r, g, b float64) Sample {
	sum := r + g + b + sumEpsilon
	return Sample{R: r, G: g, B: b, Sum: sum, RChrom: r / sum, GChrom: g / sum}
}

// Coord addresses a pixel by row i and column j.
type Coord struct {
	I int `json:"i" yaml:"i"`
	J int `json:"j" yaml:"j"`
}

// Box is an inclusive pixel bounding box.
type Box struct {
	MinI int `json:"min_i" yaml:"min_i"`
	MinJ int `json:"min_j" yaml:"min_j"`
	MaxI int `json:"max_i" yaml:"max_i"`
	MaxJ int `json:"max_j" yaml:"max_j"`
}

// Height returns the number of rows covered by the box.
func (b Box) Height() int { return b.MaxI - b.MinI + 1 }

// Width returns the number of columns covered by the box.
func (b Box) Width() int { return b.MaxJ - b.MinJ + 1 }

// Image is a row-major RGB image with a per-pixel validity flag.
type Image struct {
	Rows  int
	Cols  int
	Pix   []Sample
	Valid []bool
}

// NewImage allocates a rows x cols image with every pixel valid and black.
func NewImage(rows, cols int) *Image {
	if rows < 0 || cols < 0 {
		rows, cols = 0, 0
	}
	n := rows * cols
	img := &Image{Rows: rows, Cols: cols, Pix: make([]Sample, n), Valid: make([]bool, n)}
	black := NewSample(0, 0, 0)
	for k := range img.Pix {
		img.Pix[k] = black
		img.Valid[k] = true
	}
	return img
}

// Set stores an RGB value at (i, j) and marks the pixel valid.
func (img *Image) Set(i, j int, r, g, b float64) {
	k := i*img.Cols + j
	img.Pix[k] = NewSample(r, g, b)
	img.Valid[k] = true
}

// SetInvalid flags the pixel at (i, j) as invalid.
func (img *Image) SetInvalid(i, j int) {
	img.Valid[i*img.Cols+j] = false
}

// At returns the sample at (i, j).
func (img *Image) At(i, j int) Sample {
	return img.Pix[i*img.Cols+j]
}

// IsValid reports whether (i, j) holds a valid sample.
func (img *Image) IsValid(i, j int) bool {
	return img.Valid[i*img.Cols+j]
}

// Fill sets every pixel to the same colour.
func (img *Image) Fill(r, g, b float64) {
	s := NewSample(r, g, b)
	for k := range img.Pix {
		img.Pix[k] = s
		img.Valid[k] = true
	}
}

func (img *Image) validate() error {
	if img == nil || img.Rows <= 0 || img.Cols <= 0 {
		return &InputError{Op: "validate image", Err: ErrEmptyImage}
	}
	n := img.Rows * img.Cols
	if len(img.Pix) != n || len(img.Valid) != n {
		return &InputError{
			Op:  "validate image",
			Err: fmt.Errorf("%w: %d samples for %dx%d", ErrDimensionMismatch, len(img.Pix), img.Rows, img.Cols),
		}
	}
	return nil
}

// LabelMap is a caller-provided matrix of provisional region ids. Positive
// values are region ids; everything else is unassigned.
type LabelMap struct {
	Rows   int
	Cols   int
	Labels []int32
}

// NewLabelMap allocates an all-unassigned label map.
func NewLabelMap(rows, cols int) *LabelMap {
	return &LabelMap{Rows: rows, Cols: cols, Labels: make([]int32, rows*cols)}
}

// Set assigns label v to (i, j).
func (lm *LabelMap) Set(i, j int, v int32) {
	lm.Labels[i*lm.Cols+j] = v
}

// At returns the label at (i, j).
func (lm *LabelMap) At(i, j int) int32 {
	return lm.Labels[i*lm.Cols+j]
}
