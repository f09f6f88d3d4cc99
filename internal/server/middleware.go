package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
	corsMaxAge  = "86400"
)

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// corsMiddleware answers preflight requests and records request metrics for
// everything else. Metrics are labelled by route pattern so that arbitrary
// paths cannot blow up label cardinality.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.corsOrigin)
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Access-Control-Allow-Headers", corsHeaders)
		h.Set("Access-Control-Max-Age", corsMaxAge)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)

		route := routeLabel(r)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	}
}

// routeLabel prefers the mux pattern that matched the request.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.URL.Path
}

// rateLimitMiddleware admits requests through the limiter, keyed by client
// address. A nil limiter admits everything.
func (s *Server) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter == nil {
			next(w, r)
			return
		}

		size := max(r.ContentLength, 0)
		if err := s.rateLimiter.Allow(getClientIP(r), size); err != nil {
			s.handleRateLimitError(w, err)
			return
		}
		next(w, r)
	}
}

type rateLimitBody struct {
	Error      string  `json:"error"`
	Type       string  `json:"type"`
	Limit      int     `json:"limit"`
	RetryAfter float64 `json:"retry_after"`
	Message    string  `json:"message"`
}

type quotaBody struct {
	Error   string `json:"error"`
	Type    string `json:"type"`
	Limit   int64  `json:"limit"`
	Used    int64  `json:"used"`
	Resets  string `json:"resets"`
	Message string `json:"message"`
}

// handleRateLimitError answers a rejected request with 429 and headers
// describing the limit, or 500 for anything that is not a limiter error.
func (s *Server) handleRateLimitError(w http.ResponseWriter, err error) {
	var rateErr *RateLimitError
	var quotaErr *QuotaExceededError

	switch {
	case errors.As(err, &rateErr):
		rateLimitHits.WithLabelValues(rateErr.Type).Inc()
		h := w.Header()
		h.Set("X-RateLimit-Type", rateErr.Type)
		h.Set("X-RateLimit-Limit", strconv.Itoa(rateErr.Limit))
		h.Set("Retry-After", fmt.Sprintf("%.0f", rateErr.RetryAfter.Seconds()))
		s.writeJSON(w, http.StatusTooManyRequests, rateLimitBody{
			Error:      "rate_limit_exceeded",
			Type:       rateErr.Type,
			Limit:      rateErr.Limit,
			RetryAfter: rateErr.RetryAfter.Seconds(),
			Message:    rateErr.Error(),
		})

	case errors.As(err, &quotaErr):
		rateLimitHits.WithLabelValues(quotaErr.Type).Inc()
		h := w.Header()
		h.Set("X-Quota-Type", quotaErr.Type)
		h.Set("X-Quota-Limit", strconv.FormatInt(quotaErr.Limit, 10))
		h.Set("X-Quota-Used", strconv.FormatInt(quotaErr.Used, 10))
		h.Set("X-Quota-Resets", quotaErr.Resets.UTC().Format(http.TimeFormat))
		s.writeJSON(w, http.StatusTooManyRequests, quotaBody{
			Error:   "quota_exceeded",
			Type:    quotaErr.Type,
			Limit:   quotaErr.Limit,
			Used:    quotaErr.Used,
			Resets:  quotaErr.Resets.Format(time.RFC3339),
			Message: quotaErr.Error(),
		})

	default:
		s.log().Error("Rate limiter failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "internal_error",
			"message": "Rate limiting check failed",
		})
	}
}

// getClientIP picks the client address: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote host.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
