package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
	"github.com/MeKo-Tech/regionseg/internal/segment"
	"github.com/MeKo-Tech/regionseg/internal/utils"
)

// imageRequest is a decoded /segment/image upload.
type imageRequest struct {
	img    image.Image
	labels *segment.LabelMap
	sets   []string
	format string
}

// segmentImageHandler segments one uploaded image.
func (s *Server) segmentImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, "Segmentation pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	req, err := s.parseImageRequest(w, r)
	if err != nil {
		segmentRequestsTotal.WithLabelValues(kindImage, "error").Inc()
		return // error already written
	}

	pl, release, err := s.pipelineForRequest(req.sets)
	if err != nil {
		segmentRequestsTotal.WithLabelValues(kindImage, "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Invalid options: %v", err), statusForError(err))
		return
	}
	defer release()

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	start := time.Now()
	res, err := pl.ProcessImageContext(ctx, req.img, pipeline.ProcessOptions{Labels: req.labels})
	duration := time.Since(start)
	if err != nil {
		segmentRequestsTotal.WithLabelValues(kindImage, "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Segmentation failed: %v", err), statusForError(err))
		return
	}

	segmentRequestsTotal.WithLabelValues(kindImage, "success").Inc()
	segmentDuration.WithLabelValues(kindImage).Observe(duration.Seconds())
	observeResult(kindImage, res)

	s.writeImageResponse(w, req, res)
}

func (s *Server) parseImageRequest(w http.ResponseWriter, r *http.Request) (*imageRequest, error) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return nil, err
	}

	data, err := readFormFile(r, "image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return nil, err
	}
	uploadSizeBytes.Observe(float64(len(data)))

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return nil, err
	}

	req := &imageRequest{
		img:    img,
		sets:   r.MultipartForm.Value["set"],
		format: r.FormValue("format"),
	}
	if req.format == "" {
		req.format = r.URL.Query().Get("format")
	}

	if _, ok := r.MultipartForm.File["labels"]; ok {
		raw, err := readFormFile(r, "labels")
		if err != nil {
			s.writeErrorResponse(w, "Failed to read label image", http.StatusBadRequest)
			return nil, err
		}
		if req.labels, err = decodeLabels(raw); err != nil {
			s.writeErrorResponse(w, "Invalid label image", http.StatusBadRequest)
			return nil, err
		}
	}
	return req, nil
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer func(f multipart.File) { _ = f.Close() }(file)
	return io.ReadAll(file)
}

// decodeLabels decodes a label image without orientation or colour
// conversion so 16-bit grayscale ids survive.
func decodeLabels(raw []byte) (*segment.LabelMap, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return utils.LabelMapFromImage(img), nil
}

func (s *Server) writeImageResponse(w http.ResponseWriter, req *imageRequest, res *pipeline.SegmentationResult) {
	switch req.format {
	case formatCSV:
		s.writeFormatted(w, "text/csv", pipeline.ToCSVImage, res)
	case formatText:
		s.writeFormatted(w, "text/plain; charset=utf-8", pipeline.ToPlainTextImage, res)
	case formatYAML:
		s.writeFormatted(w, "application/yaml", pipeline.ToYAMLImage, res)
	case formatOverlay:
		s.handleOverlayOutput(w, req.img, res)
	case "", formatJSON:
		s.writeJSON(w, http.StatusOK, SegmentResponse{Success: true, Result: res})
	default:
		s.writeErrorResponse(w, "Unsupported format: "+req.format, http.StatusBadRequest)
	}
}

func (s *Server) writeFormatted(
	w http.ResponseWriter,
	contentType string,
	format func(*pipeline.SegmentationResult) (string, error),
	res *pipeline.SegmentationResult,
) {
	out, err := format(res)
	if err != nil {
		http.Error(w, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write([]byte(out))
}

// handleOverlayOutput renders the segmentation over the (fitted) input as PNG.
func (s *Server) handleOverlayOutput(w http.ResponseWriter, img image.Image, res *pipeline.SegmentationResult) {
	if !s.overlayEnabled {
		http.Error(w, "overlay output disabled", http.StatusForbidden)
		return
	}

	fitted, _, err := utils.FitImage(img, s.baseConfig.Constraints)
	if err != nil {
		http.Error(w, "overlay failed", http.StatusInternalServerError)
		return
	}
	opts := pipeline.DefaultOverlayOptions()
	if s.overlayAlpha > 0 {
		opts.FillAlpha = s.overlayAlpha
	}
	ov := pipeline.RenderOverlay(fitted, res, opts)
	if ov == nil {
		http.Error(w, "overlay failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Segment-Count", strconv.Itoa(len(res.Segments)))
	_ = png.Encode(w, ov)
}
