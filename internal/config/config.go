package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Adapter providers
const (
	ProviderCloud = "cloud" // Deepgram + Gemini + Cartesia
	ProviderEcho  = "echo"  // Local loopback adapters for development
)

// Config holds all configuration for the translation gateway service
type Config struct {
	// Server configuration
	Port     string `envconfig:"PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"9090"` // gRPC health service

	// Public base URL for this service, used only for logging the WebSocket endpoint.
	PublicURL string `envconfig:"PUBLIC_URL" default:""`

	// Which adapter set to wire into the pipeline: cloud or echo
	AdapterProvider string `envconfig:"ADAPTER_PROVIDER" default:"cloud"`

	// Deepgram STT API configuration
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base

	// Gemini translation configuration
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`

	// Cartesia TTS API configuration
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY"`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"sonic-multilingual"` // Voice ID for Cartesia
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic-multilingual"`

	// Pipeline configuration
	PipelineDepth    int `envconfig:"PIPELINE_DEPTH" default:"3"`        // K: chunks processed concurrently per session
	PipelineQueue    int `envconfig:"PIPELINE_QUEUE" default:"2"`        // Accepted chunks waiting for a free slot
	ReorderTimeoutMs int `envconfig:"REORDER_TIMEOUT_MS" default:"4000"` // Max wait for a lower sequence before skipping it
	AdapterTimeoutMs int `envconfig:"ADAPTER_TIMEOUT_MS" default:"5000"` // Per adapter call deadline
	MaxChunkBytes    int `envconfig:"MAX_CHUNK_BYTES" default:"2097152"` // 2 MiB

	// Session lifecycle configuration
	BroadcasterGraceSeconds int `envconfig:"BROADCASTER_GRACE_SECONDS" default:"60"`
	SessionIdleMinutes      int `envconfig:"SESSION_IDLE_MINUTES" default:"30"`
	EndedRetentionMinutes   int `envconfig:"ENDED_RETENTION_MINUTES" default:"10"`
	MaxSessions             int `envconfig:"MAX_SESSIONS" default:"100"`
	MaxSubscribers          int `envconfig:"MAX_SUBSCRIBERS" default:"500"` // Per session

	// Connection quality probing
	QualityProbeSeconds int `envconfig:"QUALITY_PROBE_SECONDS" default:"5"`

	// Dual output cache
	CacheSize         int `envconfig:"CACHE_SIZE" default:"256"`           // (language, text) entries
	AudioRefCacheSize int `envconfig:"AUDIO_REF_CACHE_SIZE" default:"512"` // Clips addressable via /audio/{ref}

	// Audio processing configuration
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"300.0"` // RMS below this marks a WAV chunk silent

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"2"`             // Maximum attempts per adapter call
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks value ranges and provider credentials
func (c *Config) Validate() error {
	switch c.AdapterProvider {
	case ProviderCloud:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required")
		}
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
		if c.CartesiaAPIKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required")
		}
	case ProviderEcho:
	default:
		return fmt.Errorf("ADAPTER_PROVIDER must be %q or %q, got %q", ProviderCloud, ProviderEcho, c.AdapterProvider)
	}

	positive := map[string]int{
		"PIPELINE_DEPTH":            c.PipelineDepth,
		"REORDER_TIMEOUT_MS":        c.ReorderTimeoutMs,
		"ADAPTER_TIMEOUT_MS":        c.AdapterTimeoutMs,
		"MAX_CHUNK_BYTES":           c.MaxChunkBytes,
		"BROADCASTER_GRACE_SECONDS": c.BroadcasterGraceSeconds,
		"MAX_SESSIONS":              c.MaxSessions,
		"MAX_SUBSCRIBERS":           c.MaxSubscribers,
		"QUALITY_PROBE_SECONDS":     c.QualityProbeSeconds,
		"CACHE_SIZE":                c.CacheSize,
		"AUDIO_REF_CACHE_SIZE":      c.AudioRefCacheSize,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, value)
		}
	}
	if c.PipelineQueue < 0 {
		return fmt.Errorf("PIPELINE_QUEUE must not be negative, got %d", c.PipelineQueue)
	}

	return nil
}

// ReorderTimeout returns the reorder buffer wait as a duration
func (c *Config) ReorderTimeout() time.Duration {
	return time.Duration(c.ReorderTimeoutMs) * time.Millisecond
}

// AdapterTimeout returns the per adapter call deadline
func (c *Config) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutMs) * time.Millisecond
}

// BroadcasterGrace returns how long a session waits for its broadcaster to reconnect
func (c *Config) BroadcasterGrace() time.Duration {
	return time.Duration(c.BroadcasterGraceSeconds) * time.Second
}

// SessionIdle returns the administrative idle timeout (0 disables it)
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// EndedRetention returns how long ended sessions remain queryable
func (c *Config) EndedRetention() time.Duration {
	return time.Duration(c.EndedRetentionMinutes) * time.Minute
}

// QualityProbeInterval returns the connection probe period
func (c *Config) QualityProbeInterval() time.Duration {
	return time.Duration(c.QualityProbeSeconds) * time.Second
}

// CircuitBreakerReset returns how long an open breaker waits before a trial request
func (c *Config) CircuitBreakerReset() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

// RetryBackoff returns the initial adapter retry backoff
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoff) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
