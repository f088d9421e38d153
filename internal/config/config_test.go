package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"LEXIZ_CONFIG", "LEXIZ_LLM_PROVIDER", "LEXIZ_ANTHROPIC_API_KEY", "LEXIZ_OPENAI_API_KEY",
	"LEXIZ_GEMINI_API_KEY", "LEXIZ_OPENROUTER_API_KEY", "LEXIZ_GEMINI_BASE_URL", "LEXIZ_OPENROUTER_BASE_URL",
	"LEXIZ_OPENROUTER_APP_TITLE", "LEXIZ_OPENROUTER_REFERER", "LEXIZ_LLM_TIMEOUT", "LEXIZ_LLM_MAX_TOKENS",
	"LEXIZ_LISTEN_ADDRESS", "LEXIZ_ALLOWED_ORIGINS", "LEXIZ_ADMIN", "LEXIZ_RATE_MAX_REQUESTS",
	"LEXIZ_RATE_WINDOW", "LEXIZ_CIRCUIT_FAILURE_THRESHOLD", "LEXIZ_CIRCUIT_RESET_TIMEOUT",
	"LEXIZ_GATEWAY_MAX_BATCH", "LEXIZ_DB", "LEXIZ_RETENTION_SCHEDULE", "LEXIZ_RETENTION_MAX_AGE",
	"LEXIZ_METRICS_ENABLED", "LEXIZ_LOG_LEVEL", "LEXIZ_LOG_FORMAT",
	"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lexiz.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Protection.MaxRequests != 10 || cfg.Protection.Window != 60*time.Second {
		t.Errorf("rate defaults = %d/%v", cfg.Protection.MaxRequests, cfg.Protection.Window)
	}
	if cfg.Protection.FailureThreshold != 5 || cfg.Protection.ResetTimeout != 5*time.Minute {
		t.Errorf("circuit defaults = %d/%v", cfg.Protection.FailureThreshold, cfg.Protection.ResetTimeout)
	}
	if cfg.Server.ListenAddress != ":8080" {
		t.Errorf("listen = %q", cfg.Server.ListenAddress)
	}
	if cfg.Gateway.Timeout != 30*time.Second || cfg.Gateway.MaxBatch != 20 {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  listen_address: "127.0.0.1:9000"
llm:
  provider: mock
  timeout: 12s
protection:
  max_requests: 3
  window: 10s
  failure_threshold: 2
gateway:
  max_batch: 5
retention:
  schedule: "30 1 * * *"
logging:
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:9000" {
		t.Errorf("listen = %q", cfg.Server.ListenAddress)
	}
	if cfg.LLM.Provider != "mock" {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
	if cfg.Gateway.Timeout != 12*time.Second {
		t.Errorf("gateway timeout = %v, want the llm timeout", cfg.Gateway.Timeout)
	}
	if cfg.Protection.MaxRequests != 3 || cfg.Protection.Window != 10*time.Second || cfg.Protection.FailureThreshold != 2 {
		t.Errorf("protection = %+v", cfg.Protection)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Protection.ResetTimeout != 5*time.Minute {
		t.Errorf("reset timeout = %v", cfg.Protection.ResetTimeout)
	}
	if cfg.Gateway.MaxBatch != 5 || cfg.Gateway.ExampleCount != 3 {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Retention.Schedule != "30 1 * * *" || cfg.Logging.Format != "text" {
		t.Errorf("retention/logging = %+v %+v", cfg.Retention, cfg.Logging)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "protection:\n  max_requests: 3\n")
	t.Setenv("LEXIZ_RATE_MAX_REQUESTS", "42")
	t.Setenv("LEXIZ_RATE_WINDOW", "2m")
	t.Setenv("LEXIZ_CIRCUIT_FAILURE_THRESHOLD", "7")
	t.Setenv("LEXIZ_CIRCUIT_RESET_TIMEOUT", "90s")
	t.Setenv("LEXIZ_LISTEN_ADDRESS", ":7070")
	t.Setenv("LEXIZ_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LEXIZ_DB", "/tmp/lexiz-test.db")
	t.Setenv("LEXIZ_LLM_TIMEOUT", "5s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Protection.MaxRequests != 42 || cfg.Protection.Window != 2*time.Minute {
		t.Errorf("rate = %d/%v", cfg.Protection.MaxRequests, cfg.Protection.Window)
	}
	if cfg.Protection.FailureThreshold != 7 || cfg.Protection.ResetTimeout != 90*time.Second {
		t.Errorf("circuit = %d/%v", cfg.Protection.FailureThreshold, cfg.Protection.ResetTimeout)
	}
	if cfg.Server.ListenAddress != ":7070" {
		t.Errorf("listen = %q", cfg.Server.ListenAddress)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Store.Path != "/tmp/lexiz-test.db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	if cfg.Gateway.Timeout != 5*time.Second {
		t.Errorf("gateway timeout = %v", cfg.Gateway.Timeout)
	}
}

func TestLoad_ConfigFromEnvVar(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEXIZ_CONFIG", writeFile(t, "gateway:\n  example_count: 4\n"))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.ExampleCount != 4 {
		t.Errorf("example count = %d", cfg.Gateway.ExampleCount)
	}
}

func TestLoad_DiscoversVendorKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.OpenAI.APIKey != "sk-test" {
		t.Errorf("llm = %q/%q", cfg.LLM.Provider, cfg.LLM.OpenAI.APIKey)
	}
	// The rest of the llm section keeps its defaults.
	if cfg.LLM.MaxTokens != 1024 {
		t.Errorf("max tokens = %d", cfg.LLM.MaxTokens)
	}
}

func TestLoad_ExplicitProviderSkipsDiscovery(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LEXIZ_LLM_PROVIDER", "anthropic")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
	if err := cfg.LLM.Validate(); err == nil {
		t.Error("expected missing anthropic key to fail llm validation")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "server: [\n"},
		{"bad threshold", "protection:\n  failure_threshold: 0\n"},
		{"bad schedule", "retention:\n  schedule: \"whenever\"\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"bad mode", "gateway:\n  default_mode: burst\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := Load(writeFile(t, tt.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
