package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
	"github.com/MeKo-Tech/regionseg/internal/segment"
	"github.com/MeKo-Tech/regionseg/internal/utils"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	constraints := utils.DefaultImageConstraints()
	return Config{
		LogLevel:     "info",
		Verbose:      false,
		Segmentation: segment.DefaultOptions(),
		Pipeline: PipelineConfig{
			MaxWidth:        constraints.MaxWidth,
			MaxHeight:       constraints.MaxHeight,
			MinWidth:        constraints.MinWidth,
			MinHeight:       constraints.MinHeight,
			SimplifyEpsilon: pipeline.DefaultConfig().SimplifyEpsilon,
			Parallel: ParallelConfig{
				MaxWorkers: runtime.NumCPU(),
			},
		},
		Output: OutputConfig{
			Format:       "text",
			OverlayAlpha: pipeline.DefaultOverlayOptions().FillAlpha,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			OverlayEnabled:  true,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 5000,
				MaxDataPerDayMB:   1024,
			},
		},
		Batch: BatchConfig{
			Workers:         4,
			Recursive:       false,
			ContinueOnError: false,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "yaml", "csv"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if err := validateThreshold(c.Output.OverlayAlpha, "output.overlay_alpha"); err != nil {
		return err
	}

	if err := c.Segmentation.Validate(); err != nil {
		return fmt.Errorf("invalid segmentation options: %w", err)
	}

	if c.Pipeline.MaxWidth < 0 || c.Pipeline.MaxHeight < 0 || c.Pipeline.MinWidth < 0 || c.Pipeline.MinHeight < 0 {
		return fmt.Errorf("invalid image size limits: sizes must not be negative")
	}
	// A zero maximum disables downscaling.
	if (c.Pipeline.MaxWidth > 0 && c.Pipeline.MinWidth > c.Pipeline.MaxWidth) ||
		(c.Pipeline.MaxHeight > 0 && c.Pipeline.MinHeight > c.Pipeline.MaxHeight) {
		return fmt.Errorf("minimum image size %dx%d exceeds maximum %dx%d",
			c.Pipeline.MinWidth, c.Pipeline.MinHeight, c.Pipeline.MaxWidth, c.Pipeline.MaxHeight)
	}
	if c.Pipeline.SimplifyEpsilon < 0 {
		return fmt.Errorf("invalid simplify epsilon: %.2f (must not be negative)", c.Pipeline.SimplifyEpsilon)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Pipeline.Parallel.MaxWorkers <= 0 {
		return fmt.Errorf("invalid parallel max workers: %d (must be positive)", c.Pipeline.Parallel.MaxWorkers)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}

	rl := c.Server.RateLimit
	if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDayMB < 0 {
		return fmt.Errorf("invalid rate limit: limits must not be negative")
	}

	return nil
}

// ToPipelineConfig converts the config to the internal pipeline configuration format.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Segmentation = c.Segmentation
	cfg.Constraints = utils.ImageConstraints{
		MaxWidth:  c.Pipeline.MaxWidth,
		MaxHeight: c.Pipeline.MaxHeight,
		MinWidth:  c.Pipeline.MinWidth,
		MinHeight: c.Pipeline.MinHeight,
	}
	cfg.SimplifyEpsilon = c.Pipeline.SimplifyEpsilon
	cfg.Parallel.MaxWorkers = c.Pipeline.Parallel.MaxWorkers
	return cfg
}

// ApplyOverrides applies "name=value" engine option assignments on top of
// the configured segmentation options. Names may be unique prefixes.
func (c *Config) ApplyOverrides(assignments []string) error {
	if len(assignments) == 0 {
		return nil
	}
	opts := c.Segmentation
	opts.SmoothScales = slices.Clone(opts.SmoothScales)
	opts.SeedWindows = slices.Clone(opts.SeedWindows)
	if err := segment.NewOptionSet(&opts).Apply(assignments); err != nil {
		return err
	}
	c.Segmentation = opts
	return nil
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
