package configuration

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidModelTable indicates a malformed model or role table.
var ErrInvalidModelTable = errors.New("invalid model configuration")

// Load reads a YAML model configuration file layered over DefaultConfig.
// API keys referenced by api_key_env are resolved from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Operator-supplied config path.
	if err != nil {
		return nil, fmt.Errorf("reading model config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML model configuration layered over DefaultConfig.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModelTable, err)
	}
	cfg.resolveSecrets()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolveSecrets() {
	for id, m := range c.External {
		if m.APIKey == "" && m.APIKeyEnv != "" {
			m.APIKey = os.Getenv(m.APIKeyEnv)
			c.External[id] = m
		}
	}
}

// Validate checks the model and role tables for entries that can never be invoked.
func (c *Config) Validate() error {
	var errs []error
	for id, base := range c.Models {
		if _, err := url.ParseRequestURI(base); err != nil {
			errs = append(errs, fmt.Errorf("local model %q: base url: %w", id, err))
		}
		if _, dup := c.External[id]; dup {
			errs = append(errs, fmt.Errorf("model %q defined as both local and external", id))
		}
	}
	for id, m := range c.External {
		if _, err := url.ParseRequestURI(m.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("external model %q: base url: %w", id, err))
		}
		if strings.TrimSpace(m.ModelName) == "" {
			errs = append(errs, fmt.Errorf("external model %q: model_name is required", id))
		}
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.RateLimit.Enabled && c.RateLimit.TokensPerSecond <= 0 {
		errs = append(errs, errors.New("rate_limit.tokens_per_second must be positive"))
	}
	if cb := c.CircuitBreaker; cb.Enabled {
		if cb.FailureThreshold < 1 || cb.SuccessThreshold < 1 || cb.HalfOpenProbes < 1 {
			errs = append(errs, errors.New("circuit_breaker thresholds and probes must be at least 1"))
		}
		if cb.OpenTimeout <= 0 {
			errs = append(errs, errors.New("circuit_breaker.open_timeout must be positive"))
		}
	}
	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		errs = append(errs, errors.New("cache.redis_addr is required when caching is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidModelTable, errors.Join(errs...))
	}
	return nil
}

// IsRawHost reports whether baseURL is served by the raw HTTP request shape.
func (c *Config) IsRawHost(baseURL string) bool {
	u, err := url.Parse(baseURL)
	host := baseURL
	if err == nil && u.Host != "" {
		host = u.Host
	}
	for _, h := range c.RawHosts {
		if h != "" && strings.Contains(host, h) {
			return true
		}
	}
	return false
}

// IsReasoningModel reports whether an external model exposes reasoning content.
func (c *Config) IsReasoningModel(m ExternalModel) bool {
	return m.Reasoning || slices.Contains(c.ReasoningModels, m.ModelName)
}

// ModelIDs returns every configured model identifier, sorted.
func (c *Config) ModelIDs() []string {
	ids := make([]string, 0, len(c.Models)+len(c.External))
	for id := range c.Models {
		ids = append(ids, id)
	}
	for id := range c.External {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
