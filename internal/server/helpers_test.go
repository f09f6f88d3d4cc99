package server

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
	"github.com/MeKo-Tech/regionseg/internal/segment"
	"github.com/MeKo-Tech/regionseg/internal/testutil"
)

// mockPipeline returns a canned result or error.
type mockPipeline struct {
	result *pipeline.SegmentationResult
	err    error
}

func (m *mockPipeline) ProcessImageContext(_ context.Context, _ image.Image, _ pipeline.ProcessOptions) (*pipeline.SegmentationResult, error) {
	return m.result, m.err
}

func (m *mockPipeline) Options() segment.Options { return segment.DefaultOptions() }

func (m *mockPipeline) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a server around a real pipeline with unsmoothed
// seeding so hard-edged test images segment cleanly.
func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	pc := pipeline.DefaultConfig()
	pc.Segmentation.SmoothScales = []int{0}
	cfg := Config{
		CORSOrigin:     "*",
		MaxUploadMB:    5,
		TimeoutSec:     30,
		PipelineConfig: pc,
		OverlayEnabled: true,
		OverlayAlpha:   0.5,
		Logger:         discardLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// halvesPNG encodes a red/blue split image.
func halvesPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	return encodePNG(t, testutil.Halves(w, h, testutil.Red, testutil.Blue))
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// constantLabels encodes a 16-bit label image with every pixel set to id.
func constantLabels(t *testing.T, w, h int, id uint16) []byte {
	t.Helper()
	return encodePNG(t, testutil.LabelImage(w, h, func(_, _ int) uint16 { return id }))
}

// multipartRequest builds a POST /segment/image request. sets become
// repeated "set" fields.
func multipartRequest(t *testing.T, imageData, labels []byte, fields map[string]string, sets ...string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if imageData != nil {
		part, err := writer.CreateFormFile("image", "image.png")
		require.NoError(t, err)
		_, err = part.Write(imageData)
		require.NoError(t, err)
	}
	if labels != nil {
		part, err := writer.CreateFormFile("labels", "labels.png")
		require.NoError(t, err)
		_, err = part.Write(labels)
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, s := range sets {
		require.NoError(t, writer.WriteField("set", s))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/segment/image", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
