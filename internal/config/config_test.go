package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ring2236/ESA-DGR/internal/domain"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestFailureLogPath(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "runs"
	assert.Empty(t, cfg.FailureLog)
	assert.Equal(t, filepath.Join("runs", "failures.jsonl"), cfg.FailureLogPath())

	cfg.FailureLog = "/var/log/esa/failed.jsonl"
	assert.Equal(t, "/var/log/esa/failed.jsonl", cfg.FailureLogPath())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "esa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input: data/dev.json
sink_format: jsonl
threads: 8
ledger: redis
redis_addr: localhost:6379
engine: temporal
temporal:
  host_port: temporal:7233
  namespace: research
  task_queue: esa
elastic:
  endpoint: http://es:9200
  timeout: 30s
refinement:
  max_round: 3
  loose_threshold: 0.8
  default: {model: qwen, role: helpful}
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "data/dev.json", cfg.Input)
	assert.Equal(t, "output", cfg.OutputDir, "unset keys keep defaults")
	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, LedgerRedis, cfg.Ledger)
	assert.Equal(t, "research", cfg.Temporal.Namespace)
	assert.Equal(t, 30*time.Second, cfg.Elastic.Timeout)
	assert.Equal(t, 3, cfg.Refinement.MaxRound)
	assert.Equal(t, domain.ModelRole{Model: "qwen", Role: "helpful"}, cfg.Refinement.Default)
	assert.Equal(t, domain.DefaultCorpus, cfg.Refinement.Corpus)
	require.NotNil(t, cfg.Refinement.LooseThreshold)
	assert.InDelta(t, 0.8, cfg.Refinement.Threshold(), 1e-9)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalidAppConfig)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threads: [1, 2"), 0o600))
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalidAppConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{name: "unknown sink format", mutate: func(c *AppConfig) { c.SinkFormat = "csv" }},
		{name: "zero threads", mutate: func(c *AppConfig) { c.Threads = 0 }},
		{name: "redis ledger without addr", mutate: func(c *AppConfig) { c.Ledger = LedgerRedis }},
		{name: "unknown engine", mutate: func(c *AppConfig) { c.Engine = "spark" }},
		{name: "bad elastic endpoint", mutate: func(c *AppConfig) { c.Elastic.Endpoint = "not a url" }},
		{name: "missing task queue", mutate: func(c *AppConfig) { c.Temporal.TaskQueue = "" }},
		{name: "bad log level", mutate: func(c *AppConfig) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidAppConfig)
		})
	}
}
