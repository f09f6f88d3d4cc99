package segment

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := NewEngine(opts, WithLogger(quietLogger()))
	require.NoError(t, err)
	return e
}

func newTestContext(t *testing.T, img *Image, opts Options) *segContext {
	t.Helper()
	c, err := newContext(newTestEngine(t, opts), img)
	require.NoError(t, err)
	c.stats.Merges = make(map[string]int)
	return c
}

// artImage paints an image from rows of characters. Characters missing from
// the palette become invalid pixels.
func artImage(art []string, palette map[rune][3]float64) *Image {
	img := NewImage(len(art), len(art[0]))
	for i, row := range art {
		for j, ch := range row {
			rgb, ok := palette[ch]
			if !ok {
				img.SetInvalid(i, j)
				continue
			}
			img.Set(i, j, rgb[0], rgb[1], rgb[2])
		}
	}
	return img
}

// artLabels assigns provisional ids from digits; any other rune stays
// unassigned.
func artLabels(t *testing.T, c *segContext, art []string) {
	t.Helper()
	ids := map[rune]int32{}
	for i, row := range art {
		for j, ch := range row {
			if ch < '1' || ch > '9' {
				continue
			}
			id, ok := ids[ch]
			if !ok {
				for c.ids.size() <= int(ch-'0') {
					c.newID()
				}
				id = ch - '0'
				ids[ch] = id
			}
			c.assign(i*c.cols+j, id)
		}
	}
}

func uniformImage(rows, cols int, r, g, b float64) *Image {
	img := NewImage(rows, cols)
	img.Fill(r, g, b)
	return img
}
