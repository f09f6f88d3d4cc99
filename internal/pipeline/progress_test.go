package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewConsoleProgress(&buf, "seg: ").WithUpdateInterval(time.Hour)

	p.OnStart(3)
	p.OnItem(ItemEvent{Index: 0, Done: 1, Total: 3, Segments: 2})
	p.OnItem(ItemEvent{Index: 2, Done: 2, Total: 3, Err: errors.New("bad pixels")})
	p.OnItem(ItemEvent{Index: 1, Done: 3, Total: 3, Segments: 5})
	p.OnComplete()

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "seg: 0/3 images\n"))
	assert.Contains(t, out, "seg: image 2 failed: bad pixels")
	// Throttled: the first item draws (lastDraw is zero), the second does not,
	// the final one always does.
	assert.Contains(t, out, "seg: 1/3 images (33.3%), 2 segments")
	assert.NotContains(t, out, "2/3 images")
	assert.Contains(t, out, "seg: 3/3 images (100.0%), 7 segments")
	assert.Contains(t, out, "7 segments, 1 failed")
}

func TestConsoleProgress_StatusLine(t *testing.T) {
	p := NewConsoleProgress(&bytes.Buffer{}, "")
	p.segments = 10

	assert.Equal(t, "0/4 images (0.0%), 10 segments", p.statusLine(0, 4, time.Second))
	assert.Equal(t, "2/4 images (50.0%), 10 segments, 1.0 img/s, ETA 2s", p.statusLine(2, 4, 2*time.Second))
	assert.Equal(t, "4/4 images (100.0%), 10 segments, 2.0 img/s", p.statusLine(4, 4, 2*time.Second))
}

func TestLogProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := NewLogProgress(logger, slog.LevelInfo, 2)

	p.OnStart(3)
	p.OnItem(ItemEvent{Index: 0, Done: 1, Total: 3, Segments: 1})
	p.OnItem(ItemEvent{Index: 1, Done: 2, Total: 3, Segments: 2})
	p.OnItem(ItemEvent{Index: 2, Done: 3, Total: 3, Err: errors.New("broken")})
	p.OnComplete()

	var msgs []string
	var last map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		msgs = append(msgs, rec["msg"].(string))
		last = rec
	}
	assert.Equal(t, []string{
		"Segmentation started",
		"Segmentation progress",
		"Image segmentation failed",
		"Segmentation progress",
		"Segmentation completed",
	}, msgs)
	assert.InDelta(t, 3, last["segments"], 0)
}

func TestNewLogProgress_Defaults(t *testing.T) {
	p := NewLogProgress(nil, slog.LevelDebug, 0)
	assert.Equal(t, slog.Default(), p.logger)
	assert.Equal(t, 1, p.every)
}
