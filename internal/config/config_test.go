package config

import (
	"os"
	"testing"
	"time"
)

func setCloudKeys(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")
	t.Setenv("CARTESIA_API_KEY", "test-cartesia-key")
}

func TestLoad(t *testing.T) {
	setCloudKeys(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
	if cfg.GeminiAPIKey != "test-gemini-key" {
		t.Errorf("Expected GeminiAPIKey 'test-gemini-key', got '%s'", cfg.GeminiAPIKey)
	}
	if cfg.CartesiaAPIKey != "test-cartesia-key" {
		t.Errorf("Expected CartesiaAPIKey 'test-cartesia-key', got '%s'", cfg.CartesiaAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("GEMINI_API_KEY")
	os.Unsetenv("CARTESIA_API_KEY")
	t.Setenv("ADAPTER_PROVIDER", ProviderCloud)

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_EchoProviderNeedsNoKeys(t *testing.T) {
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("GEMINI_API_KEY")
	os.Unsetenv("CARTESIA_API_KEY")
	t.Setenv("ADAPTER_PROVIDER", ProviderEcho)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.AdapterProvider != ProviderEcho {
		t.Errorf("Expected provider %q, got %q", ProviderEcho, cfg.AdapterProvider)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setCloudKeys(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.GRPCPort != "9090" {
		t.Errorf("Expected default GRPCPort '9090', got '%s'", cfg.GRPCPort)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
	if cfg.PipelineDepth != 3 {
		t.Errorf("Expected default PipelineDepth 3, got %d", cfg.PipelineDepth)
	}
	if cfg.PipelineQueue != 2 {
		t.Errorf("Expected default PipelineQueue 2, got %d", cfg.PipelineQueue)
	}
	if cfg.BroadcasterGrace() != 60*time.Second {
		t.Errorf("Expected default grace 60s, got %v", cfg.BroadcasterGrace())
	}
	if cfg.QualityProbeInterval() != 5*time.Second {
		t.Errorf("Expected default probe interval 5s, got %v", cfg.QualityProbeInterval())
	}
	if cfg.AdapterTimeout() != 5*time.Second {
		t.Errorf("Expected default adapter timeout 5s, got %v", cfg.AdapterTimeout())
	}
	if cfg.CacheSize != 256 {
		t.Errorf("Expected default CacheSize 256, got %d", cfg.CacheSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled to default to true")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setCloudKeys(t)
	t.Setenv("PORT", "3000")
	t.Setenv("PIPELINE_DEPTH", "2")
	t.Setenv("REORDER_TIMEOUT_MS", "1500")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "3000" {
		t.Errorf("Expected Port '3000', got '%s'", cfg.Port)
	}
	if cfg.PipelineDepth != 2 {
		t.Errorf("Expected PipelineDepth 2, got %d", cfg.PipelineDepth)
	}
	if cfg.ReorderTimeout() != 1500*time.Millisecond {
		t.Errorf("Expected reorder timeout 1.5s, got %v", cfg.ReorderTimeout())
	}
	if !cfg.LogPretty {
		t.Error("Expected LogPretty true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero depth", func(c *Config) { c.PipelineDepth = 0 }, true},
		{"negative queue", func(c *Config) { c.PipelineQueue = -1 }, true},
		{"zero queue allowed", func(c *Config) { c.PipelineQueue = 0 }, false},
		{"unknown provider", func(c *Config) { c.AdapterProvider = "local" }, true},
		{"zero cache", func(c *Config) { c.CacheSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	if value := GetEnv("TEST_VAR", "default"); value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}
	if value := GetEnv("NON_EXISTENT_VAR", "default"); value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func validConfig() *Config {
	return &Config{
		AdapterProvider:         ProviderEcho,
		PipelineDepth:           3,
		PipelineQueue:           2,
		ReorderTimeoutMs:        4000,
		AdapterTimeoutMs:        5000,
		MaxChunkBytes:           1 << 20,
		BroadcasterGraceSeconds: 60,
		MaxSessions:             10,
		MaxSubscribers:          10,
		QualityProbeSeconds:     5,
		CacheSize:               16,
		AudioRefCacheSize:       16,
	}
}
