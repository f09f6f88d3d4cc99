package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/segment/batch", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSegmentBatchHandler(t *testing.T) {
	s := newTestServer(t, nil)
	req := BatchSegmentRequest{
		Images: []BatchImageRequest{
			{Name: "halves", Data: halvesPNG(t, 40, 20)},
			{Name: "broken", Data: []byte("nope")},
			{Name: "labelled", Data: halvesPNG(t, 20, 10), Labels: constantLabels(t, 20, 10, 3)},
			{Name: "empty"},
		},
	}

	w := httptest.NewRecorder()
	s.segmentBatchHandler(w, batchRequest(t, req))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp BatchSegmentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.Len(t, resp.Results, 4)

	assert.Equal(t, "halves", resp.Results[0].Name)
	assert.True(t, resp.Results[0].Success)
	assert.Len(t, resp.Results[0].Result.Segments, 2)

	assert.False(t, resp.Results[1].Success)
	assert.Contains(t, resp.Results[1].Error, "decode")

	assert.True(t, resp.Results[2].Success)
	assert.Len(t, resp.Results[2].Result.Segments, 1)

	assert.False(t, resp.Results[3].Success)

	assert.Equal(t, 4, resp.Summary.TotalItems)
	assert.Equal(t, 2, resp.Summary.Successful)
	assert.Equal(t, 2, resp.Summary.Failed)
	assert.Equal(t, 3, resp.Summary.TotalSegments)
	assert.Positive(t, resp.Summary.TotalDuration)
}

func TestSegmentBatchHandler_Overrides(t *testing.T) {
	s := newTestServer(t, nil)
	req := BatchSegmentRequest{
		Images: []BatchImageRequest{{Name: "a", Data: halvesPNG(t, 40, 20)}},
		Set:    []string{"min_seg=5"},
	}
	w := httptest.NewRecorder()
	s.segmentBatchHandler(w, batchRequest(t, req))
	require.Equal(t, http.StatusOK, w.Code)

	req.Set = []string{"unknown_thing=1"}
	w = httptest.NewRecorder()
	s.segmentBatchHandler(w, batchRequest(t, req))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSegmentBatchHandler_BadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.segmentBatchHandler(w, httptest.NewRequest(http.MethodGet, "/segment/batch", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	s.segmentBatchHandler(w, httptest.NewRequest(http.MethodPost, "/segment/batch", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	s.segmentBatchHandler(w, batchRequest(t, BatchSegmentRequest{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tooMany := BatchSegmentRequest{Images: make([]BatchImageRequest, maxBatchItems+1)}
	w = httptest.NewRecorder()
	s.segmentBatchHandler(w, batchRequest(t, tooMany))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "too large")
}
