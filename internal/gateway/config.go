package gateway

import (
	"fmt"
	"time"

	"github.com/abhisek/lexiz/internal/wire"
)

// Config holds stream gateway configuration.
type Config struct {
	// Timeout bounds one upstream call including the whole stream.
	// Zero disables the timeout. Default: 30s. Loaded from the llm section.
	Timeout time.Duration `yaml:"-"`

	// MaxTokens caps every upstream reply. Loaded from the llm section.
	MaxTokens int `yaml:"-"`

	// Temperature for evaluations and examples.
	Temperature float64 `yaml:"temperature"`

	// MaxBatch is the largest number of items accepted in one request.
	MaxBatch int `yaml:"max_batch"`

	// DefaultMode applies to evaluate items that do not name a mode.
	DefaultMode wire.Mode `yaml:"default_mode"`

	// ExampleCount is how many sentences an examples item asks for.
	ExampleCount int `yaml:"example_count"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxTokens:    1024,
		Temperature:  0.3,
		MaxBatch:     20,
		DefaultMode:  wire.ModeStream,
		ExampleCount: 3,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("gateway timeout must not be negative")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("gateway max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.MaxBatch < 1 {
		return fmt.Errorf("gateway max_batch must be at least 1, got %d", c.MaxBatch)
	}
	switch c.DefaultMode {
	case wire.ModeStream, wire.ModeWhole:
	default:
		return fmt.Errorf("gateway default_mode must be %q or %q, got %q", wire.ModeStream, wire.ModeWhole, c.DefaultMode)
	}
	if c.ExampleCount < 1 {
		return fmt.Errorf("gateway example_count must be at least 1, got %d", c.ExampleCount)
	}
	return nil
}
