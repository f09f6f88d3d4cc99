package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ItemEvent reports one finished image of a parallel run.
type ItemEvent struct {
	Index    int // position in the input list
	Done     int // images finished so far, this one included
	Total    int
	Segments int // 0 on failure
	Err      error
}

// ProgressCallback receives batch progress. OnItem is called from a single
// goroutine in completion order, not input order.
type ProgressCallback interface {
	OnStart(total int)
	OnItem(ev ItemEvent)
	OnComplete()
}

// ConsoleProgress rewrites a single status line with images done, segments
// found, rate and ETA. Failures are printed on their own line.
type ConsoleProgress struct {
	mu             sync.Mutex
	w              io.Writer
	prefix         string
	updateInterval time.Duration
	start          time.Time
	lastDraw       time.Time
	segments       int
	failed         int
}

// NewConsoleProgress creates a console reporter writing to w (stderr if nil).
func NewConsoleProgress(w io.Writer, prefix string) *ConsoleProgress {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgress{w: w, prefix: prefix, updateInterval: 100 * time.Millisecond}
}

// WithUpdateInterval throttles redraws; the final item always draws.
func (c *ConsoleProgress) WithUpdateInterval(d time.Duration) *ConsoleProgress {
	c.updateInterval = d
	return c
}

func (c *ConsoleProgress) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
	c.lastDraw = time.Time{}
	c.segments, c.failed = 0, 0
	_, _ = fmt.Fprintf(c.w, "%s0/%d images\n", c.prefix, total)
}

func (c *ConsoleProgress) OnItem(ev ItemEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.segments += ev.Segments
	if ev.Err != nil {
		c.failed++
		_, _ = fmt.Fprintf(c.w, "\n%simage %d failed: %v\n", c.prefix, ev.Index, ev.Err)
	}

	now := time.Now()
	if ev.Done < ev.Total && now.Sub(c.lastDraw) < c.updateInterval {
		return
	}
	c.lastDraw = now
	_, _ = fmt.Fprint(c.w, "\r"+c.statusLine(ev.Done, ev.Total, now.Sub(c.start)))
}

func (c *ConsoleProgress) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "\n%sdone in %v, %d segments, %d failed\n",
		c.prefix, time.Since(c.start).Round(time.Millisecond), c.segments, c.failed)
}

func (c *ConsoleProgress) statusLine(done, total int, elapsed time.Duration) string {
	line := fmt.Sprintf("%s%d/%d images (%.1f%%), %d segments",
		c.prefix, done, total, percent(done, total), c.segments)
	if elapsed <= 0 || done == 0 {
		return line
	}
	rate := float64(done) / elapsed.Seconds()
	line += fmt.Sprintf(", %.1f img/s", rate)
	if done < total {
		eta := time.Duration(float64(total-done) / rate * float64(time.Second))
		line += fmt.Sprintf(", ETA %v", eta.Round(time.Second))
	}
	return line
}

func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}

// LogProgress reports through slog every n images, on failures and on
// the last image.
type LogProgress struct {
	logger   *slog.Logger
	level    slog.Level
	every    int
	start    time.Time
	segments int
}

// NewLogProgress creates a slog reporter. A nil logger means slog.Default().
func NewLogProgress(logger *slog.Logger, level slog.Level, every int) *LogProgress {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgress{logger: logger, level: level, every: max(every, 1)}
}

func (l *LogProgress) OnStart(total int) {
	l.start = time.Now()
	l.segments = 0
	l.logger.Log(context.Background(), l.level, "Segmentation started", "images", total)
}

func (l *LogProgress) OnItem(ev ItemEvent) {
	l.segments += ev.Segments
	if ev.Err != nil {
		l.logger.Log(context.Background(), l.level, "Image segmentation failed", "index", ev.Index, "error", ev.Err)
	}
	if ev.Done%l.every != 0 && ev.Done != ev.Total {
		return
	}
	l.logger.Log(context.Background(), l.level, "Segmentation progress",
		"done", ev.Done,
		"total", ev.Total,
		"percent", fmt.Sprintf("%.1f", percent(ev.Done, ev.Total)),
		"segments", l.segments,
		"elapsed", time.Since(l.start).Round(time.Millisecond),
	)
}

func (l *LogProgress) OnComplete() {
	l.logger.Log(context.Background(), l.level, "Segmentation completed",
		"segments", l.segments,
		"elapsed", time.Since(l.start).Round(time.Millisecond))
}
