package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeSegmentResponse(t *testing.T, w *httptest.ResponseRecorder) SegmentResponse {
	t.Helper()
	var resp SegmentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSegmentImageHandler_JSON(t *testing.T) {
	s := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, halvesPNG(t, 40, 20), nil, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decodeSegmentResponse(t, w)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 40, resp.Result.Width)
	assert.Equal(t, 20, resp.Result.Height)
	require.Len(t, resp.Result.Segments, 2)
	assert.Equal(t, "#c82828", resp.Result.Segments[0].Color)
	assert.Equal(t, "#2828c8", resp.Result.Segments[1].Color)
}

func TestSegmentImageHandler_Formats(t *testing.T) {
	s := newTestServer(t, nil)
	data := halvesPNG(t, 40, 20)

	tests := []struct {
		format      string
		contentType string
		contains    string
	}{
		{"csv", "text/csv", "id,pixels,"},
		{"text", "text/plain; charset=utf-8", "2 segments"},
		{"yaml", "application/yaml", "segments:"},
		{"json", "application/json", `"success":true`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.segmentImageHandler(w, multipartRequest(t, data, nil, map[string]string{"format": tt.format}))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}

	w := httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, data, nil, map[string]string{"format": "xml"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSegmentImageHandler_FormatFromQuery(t *testing.T) {
	s := newTestServer(t, nil)
	req := multipartRequest(t, halvesPNG(t, 40, 20), nil, nil)
	req.URL.RawQuery = "format=csv"

	w := httptest.NewRecorder()
	s.segmentImageHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 3)
}

func TestSegmentImageHandler_Overlay(t *testing.T) {
	s := newTestServer(t, nil)
	data := halvesPNG(t, 40, 20)

	w := httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, data, nil, map[string]string{"format": "overlay"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "2", w.Header().Get("X-Segment-Count"))

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())

	disabled := newTestServer(t, func(c *Config) { c.OverlayEnabled = false })
	w = httptest.NewRecorder()
	disabled.segmentImageHandler(w, multipartRequest(t, data, nil, map[string]string{"format": "overlay"}))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSegmentImageHandler_OptionOverrides(t *testing.T) {
	s := newTestServer(t, nil)
	data := halvesPNG(t, 40, 20)

	w := httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, data, nil, nil, "min_seg=7", "connect_c=true"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeSegmentResponse(t, w).Result.Segments, 2)

	for _, bad := range []string{"bogus=1", "min_seg", "min_seg=abc", "merge=1"} {
		w = httptest.NewRecorder()
		s.segmentImageHandler(w, multipartRequest(t, data, nil, nil, bad))
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
		resp := decodeSegmentResponse(t, w)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "Invalid options")
	}
}

func TestSegmentImageHandler_Labels(t *testing.T) {
	s := newTestServer(t, nil)
	data := halvesPNG(t, 40, 20)

	w := httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, data, constantLabels(t, 40, 20, 7), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeSegmentResponse(t, w)
	require.Len(t, resp.Result.Segments, 1)
	assert.Equal(t, 800, resp.Result.Segments[0].NumPixels)

	w = httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, data, constantLabels(t, 10, 10, 7), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code, "label size must match the image")

	w = httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, data, []byte("not a png"), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSegmentImageHandler_BadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.segmentImageHandler(w, httptest.NewRequest(http.MethodGet, "/segment/image", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, nil, nil, map[string]string{"format": "json"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeSegmentResponse(t, w).Error, "No image")

	w = httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, []byte("garbage"), nil, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeSegmentResponse(t, w).Error, "Invalid image")

	req := httptest.NewRequest(http.MethodPost, "/segment/image", strings.NewReader("plain body"))
	req.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	s.segmentImageHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSegmentImageHandler_TooLarge(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.MaxUploadMB = 1 })
	big := bytes.Repeat([]byte{0xAB}, 2*1024*1024)

	w := httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, big, nil, nil))
	assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, w.Code)
}

func TestSegmentImageHandler_PipelineErrors(t *testing.T) {
	s := &Server{pipeline: &mockPipeline{err: errors.New("engine exploded")}, maxUploadMB: 5, logger: discardLogger()}

	w := httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, halvesPNG(t, 8, 8), nil, nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeSegmentResponse(t, w).Error, "engine exploded")

	s.pipeline = nil
	w = httptest.NewRecorder()
	s.segmentImageHandler(w, multipartRequest(t, halvesPNG(t, 8, 8), nil, nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
