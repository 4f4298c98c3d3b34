// Package configuration holds the model invocation configuration: the model
// table (local and external endpoints), the role-key to system-prompt mapping,
// and the resilience settings for the middleware pipeline.
package configuration

import (
	"net/http"
	"time"
)

// Config holds comprehensive configuration for the model invocation client.
type Config struct {
	// HTTP client configuration. Zero timeout leaves the transport default.
	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout"`
	HTTPClient  *http.Client  `json:"-" yaml:"-"`

	// Models maps local model identifiers to OpenAI-compatible base URLs.
	Models map[string]string `json:"models" yaml:"models"`

	// External maps model identifiers to hosted provider settings.
	External map[string]ExternalModel `json:"external" yaml:"external"`

	// Roles maps role keys to system prompts.
	Roles map[string]string `json:"roles" yaml:"roles"`

	// RawHosts lists base URL host fragments served by raw HTTP requests
	// rather than the OpenAI-compatible chat completions path.
	RawHosts []string `json:"raw_hosts" yaml:"raw_hosts"`

	// ReasoningModels lists provider model names exposing a separate reasoning channel.
	ReasoningModels []string `json:"reasoning_models" yaml:"reasoning_models"`

	// Generation parameters shared by every variant.
	MaxTokens int64 `json:"max_tokens" yaml:"max_tokens"`

	Retry     RetryConfig     `json:"retry" yaml:"retry"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`

	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// ExternalModel describes a hosted model reachable with an API key.
type ExternalModel struct {
	APIKey    string `json:"-" yaml:"api_key"` // Sensitive, not serialized to JSON
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
	ModelName string `json:"model_name" yaml:"model_name"`

	// Reasoning forces the single-user-turn request shape and surfaces
	// reasoning content. Also implied by ReasoningModels.
	Reasoning bool `json:"reasoning" yaml:"reasoning"`
}

// RetryConfig controls retry behavior for failed invocations.
// MaxAttempts of 1 disables retries.
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"`
	MaxElapsedTime  time.Duration `json:"max_elapsed_time" yaml:"max_elapsed_time"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval"`
	Multiplier      float64       `json:"multiplier" yaml:"multiplier"`
	UseJitter       bool          `json:"use_jitter" yaml:"use_jitter"`
}

// RateLimitConfig controls the in-memory token bucket applied per model.
type RateLimitConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	TokensPerSecond float64 `json:"tokens_per_second" yaml:"tokens_per_second"`
	BurstSize       int     `json:"burst_size" yaml:"burst_size"`
}

// CircuitBreakerConfig controls the per-model breaker that stops calling a
// model after repeated transient failures.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout" yaml:"open_timeout"`
	HalfOpenProbes   int           `json:"half_open_probes" yaml:"half_open_probes"`
}

// CacheConfig controls Redis-based response caching.
// Only deterministic variants (temperature 0) are cached.
type CacheConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	TTL           time.Duration `json:"ttl" yaml:"ttl"`
	RedisAddr     string        `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `json:"-" yaml:"redis_password"` // Sensitive
	RedisDB       int           `json:"redis_db" yaml:"redis_db"`
	KeyPrefix     string        `json:"key_prefix" yaml:"key_prefix"`
}
