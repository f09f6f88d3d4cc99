package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
	"github.com/MeKo-Tech/regionseg/internal/segment"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// phasesPerRun is the number of phase completions a full run reports.
const phasesPerRun = 8

// WebSocketSegmentRequest represents a segmentation request via WebSocket.
// Image and Labels are base64 in JSON.
type WebSocketSegmentRequest struct {
	Type   string   `json:"type"` // "segment"
	Image  []byte   `json:"image,omitempty"`
	Labels []byte   `json:"labels,omitempty"`
	Set    []string `json:"set,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketSegmentResponse represents a response via WebSocket.
type WebSocketSegmentResponse struct {
	Type      string                       `json:"type"`
	Status    string                       `json:"status"` // "processing", "completed", "error"
	Phase     string                       `json:"phase,omitempty"`
	Segments  int                          `json:"segments,omitempty"`
	Progress  float64                      `json:"progress,omitempty"`
	Result    *pipeline.SegmentationResult `json:"result,omitempty"`
	Error     string                       `json:"error,omitempty"`
	ErrorType string                       `json:"error_type,omitempty"`
	RequestID string                       `json:"request_id,omitempty"`
}

// lockedWriter serialises writes from the engine observer and the handler.
type lockedWriter struct {
	mu   sync.Mutex
	conn WebSocketConnWriter
}

func (l *lockedWriter) WriteMessage(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(messageType, data)
}

// segmentWebSocketHandler handles WebSocket connections for streamed segmentation.
func (s *Server) segmentWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log().Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.log().Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
}

// handleWebSocketConnection processes messages from a WebSocket connection.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	out := &lockedWriter{conn: conn}
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log().Error("WebSocket error", "error", err)
			}
			break
		}

		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, out, data)
		}
	}
}

// handleWebSocketMessage processes one request and streams its progress.
func (s *Server) handleWebSocketMessage(ctx context.Context, out WebSocketConnWriter, data []byte) {
	var req WebSocketSegmentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(out, "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if req.Type != "segment" {
		s.sendWebSocketError(out, "invalid_request", "Unsupported request type: "+req.Type)
		return
	}
	if len(req.Image) == 0 {
		s.sendWebSocketError(out, "invalid_request", "No image data provided")
		return
	}
	if s.pipeline == nil {
		s.sendWebSocketError(out, "unavailable", "Segmentation pipeline not initialized")
		return
	}

	requestID := strconv.FormatInt(time.Now().UnixNano(), 10)
	uploadSizeBytes.Observe(float64(len(req.Image)))

	img, err := imaging.Decode(bytes.NewReader(req.Image), imaging.AutoOrientation(true))
	if err != nil {
		s.sendWebSocketError(out, "invalid_request", fmt.Sprintf("Failed to decode image: %v", err))
		return
	}
	var po pipeline.ProcessOptions
	if len(req.Labels) > 0 {
		if po.Labels, err = decodeLabels(req.Labels); err != nil {
			s.sendWebSocketError(out, "invalid_request", fmt.Sprintf("Failed to decode labels: %v", err))
			return
		}
	}

	pl, release, err := s.pipelineForRequest(req.Set)
	if err != nil {
		s.sendWebSocketError(out, "invalid_request", fmt.Sprintf("Invalid options: %v", err))
		return
	}
	defer release()

	s.sendWebSocketResponse(out, WebSocketSegmentResponse{
		Type:      "segment_response",
		Status:    "processing",
		RequestID: requestID,
	})

	var completed int
	po.Observer = segment.ObserverFunc(func(phase segment.Phase, _ time.Duration, segments int) {
		completed++
		s.sendWebSocketResponse(out, WebSocketSegmentResponse{
			Type:      "segment_response",
			Status:    "processing",
			Phase:     string(phase),
			Segments:  segments,
			Progress:  min(float64(completed)/phasesPerRun, 0.99),
			RequestID: requestID,
		})
	})

	rctx, cancel := s.requestContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := pl.ProcessImageContext(rctx, img, po)
	duration := time.Since(start)
	if err != nil {
		segmentRequestsTotal.WithLabelValues(kindWebSocket, "error").Inc()
		s.sendWebSocketError(out, "processing_error", fmt.Sprintf("Segmentation failed: %v", err))
		return
	}

	segmentRequestsTotal.WithLabelValues(kindWebSocket, "success").Inc()
	segmentDuration.WithLabelValues(kindWebSocket).Observe(duration.Seconds())
	observeResult(kindWebSocket, res)

	s.sendWebSocketResponse(out, WebSocketSegmentResponse{
		Type:      "segment_response",
		Status:    "completed",
		Progress:  1.0,
		Result:    res,
		RequestID: requestID,
	})
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketSegmentResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		s.log().Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log().Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketSegmentResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
	})
}
