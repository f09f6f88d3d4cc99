package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MeKo-Tech/regionseg/internal/segment"
	"github.com/MeKo-Tech/regionseg/internal/utils"
	"github.com/MeKo-Tech/regionseg/internal/version"
)

const (
	formatText    = "text"
	formatJSON    = "json"
	formatYAML    = "yaml"
	formatCSV     = "csv"
	formatOverlay = "overlay"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Info().Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// optionsHandler lists the engine option names and the server defaults.
func (s *Server) optionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, "Segmentation pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	opts := s.pipeline.Options()
	set := segment.NewOptionSet(&opts)
	s.writeJSON(w, http.StatusOK, OptionsResponse{Names: set.Names(), Settings: set.Dump()})
}

// writeJSON encodes v with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log().Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, SegmentResponse{Success: false, Error: message})
}

// statusForError maps caller mistakes to 400 and everything else to 500.
func statusForError(err error) int {
	var inputErr *segment.InputError
	var imgErr *utils.ImageProcessingError
	switch {
	case errors.Is(err, segment.ErrDimensionMismatch),
		errors.Is(err, segment.ErrNoLabels),
		errors.Is(err, segment.ErrEmptyImage),
		errors.Is(err, segment.ErrUnknownOption),
		errors.Is(err, segment.ErrAmbiguousOption),
		errors.Is(err, segment.ErrInvalidValue),
		errors.As(err, &inputErr),
		errors.As(err, &imgErr):
		return http.StatusBadRequest
	case errors.Is(err, segment.ErrAllocation):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
