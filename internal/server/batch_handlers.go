package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
)

// maxBatchItems caps the images accepted by one batch request.
const maxBatchItems = 10

// BatchSegmentRequest represents a batch segmentation request. Data and
// Labels are base64 in JSON.
type BatchSegmentRequest struct {
	Images []BatchImageRequest `json:"images"`
	Set    []string            `json:"set,omitempty"`
}

// BatchImageRequest represents a single image in a batch request.
type BatchImageRequest struct {
	Name   string `json:"name"`
	Data   []byte `json:"data"`
	Labels []byte `json:"labels,omitempty"`
}

// BatchSegmentResponse represents the response for batch processing.
type BatchSegmentResponse struct {
	Success bool                   `json:"success"`
	Results []BatchSegmentResult   `json:"results,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Summary BatchProcessingSummary `json:"summary"`
}

// BatchSegmentResult represents a single result in batch processing.
type BatchSegmentResult struct {
	Name     string                       `json:"name"`
	Success  bool                         `json:"success"`
	Result   *pipeline.SegmentationResult `json:"result,omitempty"`
	Error    string                       `json:"error,omitempty"`
	Duration float64                      `json:"duration_seconds"`
}

// BatchProcessingSummary provides summary statistics for batch processing.
type BatchProcessingSummary struct {
	TotalItems    int     `json:"total_items"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	TotalSegments int     `json:"total_segments"`
	TotalDuration float64 `json:"total_duration_seconds"`
	AvgItemTime   float64 `json:"avg_item_time_seconds"`
}

// segmentBatchHandler segments up to maxBatchItems base64 images with one
// shared set of option overrides.
func (s *Server) segmentBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, "Segmentation pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)
	var req BatchSegmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "Request too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, fmt.Sprintf("Failed to parse JSON request: %v", err), http.StatusBadRequest)
		return
	}

	if len(req.Images) == 0 {
		s.writeErrorResponse(w, "No images provided in batch request", http.StatusBadRequest)
		return
	}
	if len(req.Images) > maxBatchItems {
		s.writeErrorResponse(w, fmt.Sprintf("Batch size too large (maximum %d items)", maxBatchItems), http.StatusBadRequest)
		return
	}

	pl, release, err := s.pipelineForRequest(req.Set)
	if err != nil {
		segmentRequestsTotal.WithLabelValues(kindBatch, "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Invalid options: %v", err), statusForError(err))
		return
	}
	defer release()

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	start := time.Now()
	results, summary := s.processBatchRequest(ctx, pl, req)
	totalDuration := time.Since(start)

	summary.TotalDuration = totalDuration.Seconds()
	if summary.TotalItems > 0 {
		summary.AvgItemTime = summary.TotalDuration / float64(summary.TotalItems)
	}

	status := "success"
	if summary.Failed > 0 {
		status = "partial"
	}
	segmentRequestsTotal.WithLabelValues(kindBatch, status).Inc()
	segmentDuration.WithLabelValues(kindBatch).Observe(totalDuration.Seconds())

	s.writeJSON(w, http.StatusOK, BatchSegmentResponse{
		Success: summary.Failed == 0,
		Results: results,
		Summary: summary,
	})
}

// processBatchRequest processes all items in order.
func (s *Server) processBatchRequest(ctx context.Context, pl pipelineInterface, req BatchSegmentRequest) ([]BatchSegmentResult, BatchProcessingSummary) {
	results := make([]BatchSegmentResult, 0, len(req.Images))
	summary := BatchProcessingSummary{TotalItems: len(req.Images)}

	for _, item := range req.Images {
		result := s.processBatchImage(ctx, pl, item)
		results = append(results, result)
		if result.Success {
			summary.Successful++
			summary.TotalSegments += len(result.Result.Segments)
		} else {
			summary.Failed++
		}
	}
	return results, summary
}

// processBatchImage processes a single image in a batch request.
func (s *Server) processBatchImage(ctx context.Context, pl pipelineInterface, item BatchImageRequest) BatchSegmentResult {
	result := BatchSegmentResult{Name: item.Name}

	if len(item.Data) == 0 {
		result.Error = "No image data provided"
		return result
	}
	uploadSizeBytes.Observe(float64(len(item.Data)))

	img, err := imaging.Decode(bytes.NewReader(item.Data), imaging.AutoOrientation(true))
	if err != nil {
		result.Error = fmt.Sprintf("Failed to decode image: %v", err)
		return result
	}

	var po pipeline.ProcessOptions
	if len(item.Labels) > 0 {
		if po.Labels, err = decodeLabels(item.Labels); err != nil {
			result.Error = fmt.Sprintf("Failed to decode labels: %v", err)
			return result
		}
	}

	start := time.Now()
	res, err := pl.ProcessImageContext(ctx, img, po)
	result.Duration = time.Since(start).Seconds()
	if err != nil {
		result.Error = fmt.Sprintf("Segmentation failed: %v", err)
		return result
	}

	result.Success = true
	result.Result = res
	observeResult(kindBatch, res)
	return result
}
