package configuration

import (
	"time"
)

// Request shaping constants.
const (
	DefaultMaxTokens         = 512
	DeterministicTemperature = 0.0
	RawTemperature           = 0.7
	RawTopP                  = 0.7
	RawTopK                  = 50
	RawFrequencyPenalty      = 0.5
)

// HTTP client constants.
const (
	DefaultMaxIdleConns        = 100
	DefaultIdleTimeoutSeconds  = 90
	DefaultTLSTimeoutSeconds   = 10
	ServerErrorStatusThreshold = 500
)

// Retry constants.
const (
	DefaultMaxAttempts       = 3
	DefaultMaxElapsedTime    = 2 * time.Minute
	DefaultInitialInterval   = 500 * time.Millisecond
	DefaultMaxInterval       = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// Rate limiting constants.
const (
	DefaultTokensPerSecond = 10
	DefaultBurstSize       = 20
)

// Circuit breaker constants.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultOpenTimeout      = 30 * time.Second
	DefaultHalfOpenProbes   = 1
)

// Cache constants.
const (
	DefaultCacheTTL       = 24 * time.Hour
	DefaultCacheKeyPrefix = "esa:llm:"
)

// DefaultRawHosts are base URL hosts that require the raw HTTP request shape.
var DefaultRawHosts = []string{"siliconflow.cn"}

// DefaultReasoningModels are provider model names with a separate reasoning channel.
var DefaultReasoningModels = []string{"deepseek-r1-250120"}

// DefaultConfig returns configuration with sensible defaults and an empty model table.
func DefaultConfig() *Config {
	return &Config{
		Models:          map[string]string{},
		External:        map[string]ExternalModel{},
		Roles:           map[string]string{},
		RawHosts:        append([]string(nil), DefaultRawHosts...),
		ReasoningModels: append([]string(nil), DefaultReasoningModels...),
		MaxTokens:       DefaultMaxTokens,
		Retry: RetryConfig{
			MaxAttempts:     DefaultMaxAttempts,
			MaxElapsedTime:  DefaultMaxElapsedTime,
			InitialInterval: DefaultInitialInterval,
			MaxInterval:     DefaultMaxInterval,
			Multiplier:      DefaultBackoffMultiplier,
			UseJitter:       true,
		},
		RateLimit: RateLimitConfig{
			Enabled:         false,
			TokensPerSecond: DefaultTokensPerSecond,
			BurstSize:       DefaultBurstSize,
		},
		Cache: CacheConfig{
			Enabled:   false,
			TTL:       DefaultCacheTTL,
			KeyPrefix: DefaultCacheKeyPrefix,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          false,
			FailureThreshold: DefaultFailureThreshold,
			SuccessThreshold: DefaultSuccessThreshold,
			OpenTimeout:      DefaultOpenTimeout,
			HalfOpenProbes:   DefaultHalfOpenProbes,
		},
	}
}
