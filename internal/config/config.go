// Package config loads lexiz configuration from an optional YAML file and
// LEXIZ_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/lexiz/internal/gateway"
	"github.com/abhisek/lexiz/internal/guard"
	"github.com/abhisek/lexiz/internal/llm"
	"github.com/abhisek/lexiz/internal/logging"
	"github.com/abhisek/lexiz/internal/metrics"
	"github.com/abhisek/lexiz/internal/retention"
	"github.com/abhisek/lexiz/internal/server"
)

// Config is the complete process configuration.
type Config struct {
	Server     server.Config    `yaml:"server"`
	LLM        llm.Config       `yaml:"llm"`
	Protection guard.Config     `yaml:"protection"`
	Gateway    gateway.Config   `yaml:"gateway"`
	Store      StoreConfig      `yaml:"store"`
	Retention  retention.Config `yaml:"retention"`
	Metrics    metrics.Config   `yaml:"metrics"`
	Logging    logging.Config   `yaml:"logging"`
}

// StoreConfig locates the event database.
type StoreConfig struct {
	// Path of the sqlite file. Empty resolves to the XDG data directory.
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:     server.DefaultConfig(),
		LLM:        llm.DefaultConfig(),
		Protection: guard.DefaultConfig(),
		Gateway:    gateway.DefaultConfig(),
		Retention:  retention.DefaultConfig(),
		Metrics:    metrics.DefaultConfig(),
		Logging:    logging.DefaultConfig(),
	}
}

// Load builds the configuration in this order: defaults, the YAML file at
// path (skipped when path is empty), environment overrides. When path is
// empty, LEXIZ_CONFIG names the file. The LLM section is not validated here
// because only commands that call a provider need a key; use Config.LLM.Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("LEXIZ_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	discoverProvider(cfg)
	cfg.syncGateway()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every section except the LLM provider key.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Protection.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("protection: %w", err))
	}
	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}
	if err := c.Retention.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retention: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Config) syncGateway() {
	c.Gateway.Timeout = c.LLM.Timeout
	c.Gateway.MaxTokens = c.LLM.MaxTokens
}

// discoverProvider falls back to vendor API key variables when the chosen
// provider has no key and the provider was not picked explicitly.
func discoverProvider(cfg *Config) {
	if os.Getenv("LEXIZ_LLM_PROVIDER") != "" || cfg.LLM.Validate() == nil {
		return
	}
	found, ok := llm.DiscoverConfig()
	if !ok {
		return
	}
	cfg.LLM.Provider = found.Provider
	switch found.Provider {
	case "anthropic":
		cfg.LLM.Anthropic.APIKey = found.Anthropic.APIKey
	case "openai":
		cfg.LLM.OpenAI.APIKey = found.OpenAI.APIKey
	case "gemini":
		cfg.LLM.Gemini.APIKey = found.Gemini.APIKey
	case "openrouter":
		cfg.LLM.OpenRouter.APIKey = found.OpenRouter.APIKey
	}
}

// applyEnvOverrides applies LEXIZ_SECTION_FIELD variables. Values that do
// not parse are ignored.
func applyEnvOverrides(cfg *Config) {
	cfg.LLM.ApplyEnv()

	setString(&cfg.Server.ListenAddress, "LEXIZ_LISTEN_ADDRESS")
	if v := os.Getenv("LEXIZ_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}
	setBool(&cfg.Server.Admin, "LEXIZ_ADMIN")

	setInt(&cfg.Protection.MaxRequests, "LEXIZ_RATE_MAX_REQUESTS")
	setDuration(&cfg.Protection.Window, "LEXIZ_RATE_WINDOW")
	setInt(&cfg.Protection.FailureThreshold, "LEXIZ_CIRCUIT_FAILURE_THRESHOLD")
	setDuration(&cfg.Protection.ResetTimeout, "LEXIZ_CIRCUIT_RESET_TIMEOUT")

	setInt(&cfg.Gateway.MaxBatch, "LEXIZ_GATEWAY_MAX_BATCH")

	setString(&cfg.Store.Path, "LEXIZ_DB")

	setString(&cfg.Retention.Schedule, "LEXIZ_RETENTION_SCHEDULE")
	setDuration(&cfg.Retention.MaxAge, "LEXIZ_RETENTION_MAX_AGE")

	setBool(&cfg.Metrics.Enabled, "LEXIZ_METRICS_ENABLED")

	setString(&cfg.Logging.Level, "LEXIZ_LOG_LEVEL")
	setString(&cfg.Logging.Format, "LEXIZ_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
