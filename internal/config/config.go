// Package config holds the run-level settings shared by the esa commands:
// where the dataset and outputs live, which ledger and engine to use, and
// how to reach Elasticsearch, Redis and Temporal.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ring2236/ESA-DGR/internal/domain"
)

// ErrInvalidAppConfig wraps every load or validation failure.
var ErrInvalidAppConfig = errors.New("invalid application config")

// Ledger backends.
const (
	LedgerFile  = "file"
	LedgerRedis = "redis"
)

// Refinement engines.
const (
	EngineLocal    = "local"
	EngineTemporal = "temporal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AppConfig is the run configuration. Flags override file values.
type AppConfig struct {
	Input       string `yaml:"input" validate:"required"`
	OutputDir   string `yaml:"output_dir" validate:"required"`
	Checkpoint  string `yaml:"checkpoint" validate:"required"`
	// FailureLog defaults to <output-dir>/failures.jsonl when empty.
	FailureLog  string `yaml:"failure_log"`
	SinkFormat  string `yaml:"sink_format" validate:"oneof=json jsonl"`
	Threads     int    `yaml:"threads" validate:"min=1"`
	ModelConfig string `yaml:"model_config"`

	Ledger    string `yaml:"ledger" validate:"oneof=file redis"`
	RedisAddr string `yaml:"redis_addr" validate:"required_if=Ledger redis"`
	RedisDB   int    `yaml:"redis_db"`
	RunName   string `yaml:"run_name"`

	Engine   string         `yaml:"engine" validate:"oneof=local temporal"`
	Temporal TemporalConfig `yaml:"temporal"`

	Elastic ElasticConfig `yaml:"elastic"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	LogFormat   string `yaml:"log_format" validate:"omitempty,oneof=text json"`

	// Refinement is validated separately; the worker command never uses it.
	Refinement domain.RefinementConfig `yaml:"refinement" validate:"-"`
}

// TemporalConfig locates the Temporal frontend.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" validate:"required"`
	Namespace string `yaml:"namespace" validate:"required"`
	TaskQueue string `yaml:"task_queue" validate:"required"`
	// MaxConcurrentActivities bounds the worker; zero keeps the sdk default.
	MaxConcurrentActivities int `yaml:"max_concurrent_activities" validate:"min=0"`
}

// ElasticConfig locates the retrieval backend.
type ElasticConfig struct {
	Endpoint string        `yaml:"endpoint" validate:"required,url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	return &AppConfig{
		Input:      "data/hotpot_dev_v1_simplified.json",
		OutputDir:  "output",
		Checkpoint: "checkpoint.txt",
		SinkFormat: "json",
		Threads:    domain.DefaultMaxConcurrency,
		Ledger:     LedgerFile,
		RunName:    "default",
		Engine:     EngineLocal,
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "esa-refinement",
		},
		Elastic: ElasticConfig{
			Endpoint: "http://localhost:9200",
		},
		LogLevel:   "info",
		LogFormat:  "text",
		Refinement: domain.DefaultRefinementConfig(),
	}
}

// Load reads path layered over Default. An empty path returns Default.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // Operator-supplied config path.
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrInvalidAppConfig, path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAppConfig, path, err)
	}
	return cfg, nil
}

// FailureLogPath returns FailureLog, or failures.jsonl under OutputDir when unset.
func (c *AppConfig) FailureLogPath() string {
	if c.FailureLog != "" {
		return c.FailureLog
	}
	return filepath.Join(c.OutputDir, "failures.jsonl")
}

// Validate checks the run-level fields.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAppConfig, err)
	}
	return nil
}
