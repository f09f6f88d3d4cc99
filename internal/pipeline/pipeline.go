package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/regionseg/internal/segment"
	"github.com/MeKo-Tech/regionseg/internal/utils"
)

// Config holds configuration for the segmentation pipeline.
type Config struct {
	Segmentation segment.Options
	Constraints  utils.ImageConstraints
	// SimplifyEpsilon simplifies result outlines with Douglas-Peucker; 0
	// keeps every traced corner.
	SimplifyEpsilon float64

	// Parallel processing configuration
	Parallel ParallelConfig
}

// DefaultConfig returns a default pipeline config with engine defaults.
func DefaultConfig() Config {
	return Config{
		Segmentation:    segment.DefaultOptions(),
		Constraints:     utils.DefaultImageConstraints(),
		SimplifyEpsilon: 0,
		Parallel:        DefaultParallelConfig(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg       Config
	sets      [][2]string
	logger    *slog.Logger
	observers []segment.Observer
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithOptions replaces the engine options.
func (b *Builder) WithOptions(opts segment.Options) *Builder {
	b.cfg.Segmentation = opts
	return b
}

// WithOption queues a name=value override applied through the option
// protocol when the pipeline is built. Names may be abbreviated.
func (b *Builder) WithOption(name, value string) *Builder {
	b.sets = append(b.sets, [2]string{name, value})
	return b
}

// WithWorkers sets the number of parallel workers (if >0).
func (b *Builder) WithWorkers(n int) *Builder {
	if n > 0 {
		b.cfg.Parallel.MaxWorkers = n
	}
	return b
}

// WithLogger sets the logger handed to the engines.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithObserver adds an observer to every engine the pipeline creates. It
// must be safe for concurrent use if the pipeline runs parallel batches.
func (b *Builder) WithObserver(o segment.Observer) *Builder {
	b.observers = append(b.observers, o)
	return b
}

// Config returns the current builder config.
func (b *Builder) Config() Config { return b.cfg }

// Build resolves the queued option overrides, validates the configuration
// and creates the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	cfg := b.cfg
	if len(b.sets) > 0 {
		set := segment.NewOptionSet(&cfg.Segmentation)
		for _, kv := range b.sets {
			if _, err := set.Set(kv[0], kv[1]); err != nil {
				return nil, fmt.Errorf("option %s=%s: %w", kv[0], kv[1], err)
			}
		}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{cfg: cfg, logger: logger, observers: b.observers}
	eng, err := p.newEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	p.engine = eng
	return p, nil
}

// Pipeline converts images, runs the segmentation engine and packages the
// results. A Pipeline is safe for concurrent use: single-image calls share
// one engine behind a mutex and parallel batches create one engine per
// worker.
type Pipeline struct {
	cfg       Config
	logger    *slog.Logger
	observers []segment.Observer

	mu     sync.Mutex
	engine *segment.Engine
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Options returns the resolved engine options.
func (p *Pipeline) Options() segment.Options { return p.engine.Options() }

// BufferUsage reports the largest buffer requested by the shared engine and
// the capacity, in elements, it retains between single-image calls.
func (p *Pipeline) BufferUsage() (highWater, retained int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.BufferHighWater(), p.engine.BufferRetained()
}

func (p *Pipeline) newEngine(extra ...segment.Observer) (*segment.Engine, error) {
	observers := append([]segment.Observer{metricsObserver{}}, p.observers...)
	observers = append(observers, extra...)
	return segment.NewEngine(p.cfg.Segmentation,
		segment.WithLogger(p.logger),
		segment.WithObserver(multiObserver(observers)),
	)
}

// Close releases pipeline resources. Engines only hold memory, so this is
// a no-op kept for symmetry with callers that defer it.
func (p *Pipeline) Close() error {
	if p == nil {
		return errors.New("nil pipeline")
	}
	return nil
}

// multiObserver fans phase completions out to several observers.
type multiObserver []segment.Observer

func (m multiObserver) PhaseDone(phase segment.Phase, elapsed time.Duration, segments int) {
	for _, o := range m {
		if o != nil {
			o.PhaseDone(phase, elapsed, segments)
		}
	}
}
