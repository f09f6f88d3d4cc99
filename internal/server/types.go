package server

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
	"github.com/MeKo-Tech/regionseg/internal/segment"
)

// pipelineInterface defines the methods needed by the server from a pipeline.
type pipelineInterface interface {
	ProcessImageContext(ctx context.Context, img image.Image, po pipeline.ProcessOptions) (*pipeline.SegmentationResult, error)
	Options() segment.Options
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline       pipelineInterface
	baseConfig     pipeline.Config
	logger         *slog.Logger
	corsOrigin     string
	maxUploadMB    int64
	timeoutSec     int
	overlayEnabled bool
	overlayAlpha   float64
	rateLimiter    *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigin     string
	MaxUploadMB    int64
	TimeoutSec     int
	PipelineConfig pipeline.Config
	OverlayEnabled bool
	OverlayAlpha   float64
	RateLimit      RateLimitConfig
	Logger         *slog.Logger
}

// RateLimitConfig enables per-client limits. Zero disables a single limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type OptionsResponse struct {
	Names    []string `json:"names"`
	Settings []string `json:"settings"`
}

type SegmentResponse struct {
	Success bool                         `json:"success"`
	Result  *pipeline.SegmentationResult `json:"result,omitempty"`
	Error   string                       `json:"error,omitempty"`
}

// NewServer creates a new segmentation server instance.
func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pl, err := pipeline.NewBuilder().
		WithConfig(config.PipelineConfig).
		WithLogger(logger).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	s := &Server{
		pipeline:       pl,
		baseConfig:     config.PipelineConfig,
		logger:         logger,
		corsOrigin:     config.CORSOrigin,
		maxUploadMB:    config.MaxUploadMB,
		timeoutSec:     config.TimeoutSec,
		overlayEnabled: config.OverlayEnabled,
		overlayAlpha:   config.OverlayAlpha,
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 50
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/options", s.corsMiddleware(s.optionsHandler))
	mux.HandleFunc("/segment/image", s.corsMiddleware(s.rateLimitMiddleware(s.segmentImageHandler)))
	mux.HandleFunc("/segment/batch", s.corsMiddleware(s.rateLimitMiddleware(s.segmentBatchHandler)))
	mux.HandleFunc("/ws/segment", s.rateLimitMiddleware(s.segmentWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// pipelineForRequest returns the shared pipeline, or a dedicated one when the
// request carries "name=value" option overrides. The release func must be
// called when the request is done.
func (s *Server) pipelineForRequest(sets []string) (pipelineInterface, func(), error) {
	if len(sets) == 0 {
		return s.pipeline, func() {}, nil
	}
	cfg := s.baseConfig
	if err := segment.NewOptionSet(&cfg.Segmentation).Apply(sets); err != nil {
		return nil, nil, err
	}
	pl, err := pipeline.NewBuilder().WithConfig(cfg).WithLogger(s.log()).Build()
	if err != nil {
		return nil, nil, err
	}
	return pl, func() { _ = pl.Close() }, nil
}

// log returns the server logger, falling back to the default logger.
func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// requestContext bounds a request by the configured timeout.
func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeoutSec > 0 {
		return context.WithTimeout(parent, secondsDuration(s.timeoutSec))
	}
	return context.WithCancel(parent)
}
