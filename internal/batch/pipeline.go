package batch

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
	"github.com/MeKo-Tech/regionseg/internal/segment"
)

// buildPipeline creates a segmentation pipeline from the batch configuration.
func buildPipeline(config *Config) (*pipeline.Pipeline, error) {
	b := pipeline.NewBuilder().
		WithConfig(config.Pipeline).
		WithWorkers(config.Workers)

	for _, a := range config.Overrides {
		name, value, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not name=value", segment.ErrInvalidValue, a)
		}
		b = b.WithOption(strings.TrimSpace(name), value)
	}

	return b.Build()
}
