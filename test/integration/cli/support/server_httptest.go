package support

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
	"github.com/MeKo-Tech/regionseg/internal/server"
)

// HTTPTestServerWrapper wraps an httptest server around a real segmentation
// server.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
}

// URL returns the base URL of the running server.
func (w *HTTPTestServerWrapper) URL() string {
	return w.Server.URL
}

// Close stops the listener and releases the pipeline.
func (w *HTTPTestServerWrapper) Close() {
	if w.Server != nil {
		w.Server.Close()
	}
	if w.TestServer != nil {
		_ = w.TestServer.Close()
	}
}

// testServerConfig returns a server configuration that segments hard-edged
// fixtures without smoothing.
func testServerConfig() server.Config {
	pc := pipeline.DefaultConfig()
	pc.Segmentation.SmoothScales = []int{0}
	return server.Config{
		CORSOrigin:     "*",
		MaxUploadMB:    5,
		TimeoutSec:     30,
		PipelineConfig: pc,
		OverlayEnabled: true,
		OverlayAlpha:   0.5,
		Logger:         slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
}

// startTestHTTPServer starts an httptest server for cfg, replacing any
// server already running in this scenario.
func (testCtx *TestContext) startTestHTTPServer(cfg server.Config) error {
	testCtx.StopServer()

	segServer, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	mux := http.NewServeMux()
	segServer.SetupRoutes(mux)

	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     httptest.NewServer(mux),
		TestServer: segServer,
	}
	return nil
}
