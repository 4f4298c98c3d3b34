package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
http_timeout: 45s
models:
  qwen2.5-7b: http://localhost:8000/v1
external:
  gpt-4o:
    api_key_env: ESA_TEST_OPENAI_KEY
    base_url: https://api.openai.com/v1
    model_name: gpt-4o-2024-08-06
  ds-r1:
    api_key: sk-inline
    base_url: https://ark.cn-beijing.volces.com/api/v3
    model_name: deepseek-r1-250120
  qwq:
    api_key: sk-raw
    base_url: https://api.siliconflow.cn/v1/chat/completions
    model_name: Qwen/QwQ-32B
roles:
  default: You are a helpful assistant.
  strict: You are a strict judge.
retry:
  max_attempts: 5
`

func TestParse(t *testing.T) {
	t.Setenv("ESA_TEST_OPENAI_KEY", "sk-from-env")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "http://localhost:8000/v1", cfg.Models["qwen2.5-7b"])
	assert.Equal(t, "sk-from-env", cfg.External["gpt-4o"].APIKey)
	assert.Equal(t, "sk-inline", cfg.External["ds-r1"].APIKey)
	assert.Equal(t, "You are a strict judge.", cfg.Roles["strict"])

	// Overridden field keeps sibling defaults.
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, DefaultInitialInterval, cfg.Retry.InitialInterval)
	assert.Equal(t, []string{"siliconflow.cn"}, cfg.RawHosts)
	assert.Equal(t, int64(DefaultMaxTokens), cfg.MaxTokens)

	assert.Equal(t, []string{"ds-r1", "gpt-4o", "qwen2.5-7b", "qwq"}, cfg.ModelIDs())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "malformed yaml", yaml: "models: [unclosed"},
		{name: "local without url", yaml: "models:\n  m: not a url"},
		{name: "external without model name", yaml: "external:\n  m:\n    base_url: https://x.test/v1"},
		{name: "duplicate id", yaml: "models:\n  m: http://a/v1\nexternal:\n  m:\n    base_url: https://x.test/v1\n    model_name: n"},
		{name: "zero attempts", yaml: "retry:\n  max_attempts: 0"},
		{name: "cache without redis", yaml: "cache:\n  enabled: true"},
		{name: "breaker without threshold", yaml: "circuit_breaker:\n  enabled: true\n  failure_threshold: 0"},
		{name: "breaker without timeout", yaml: "circuit_breaker:\n  enabled: true\n  open_timeout: 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidModelTable)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  default: hi\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hi", cfg.Roles["default"])

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestIsRawHost(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.IsRawHost("https://api.siliconflow.cn/v1/chat/completions"))
	assert.False(t, cfg.IsRawHost("https://api.openai.com/v1"))
	assert.False(t, cfg.IsRawHost("http://localhost:8000/v1"))
}

func TestIsReasoningModel(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.IsReasoningModel(ExternalModel{ModelName: "deepseek-r1-250120"}))
	assert.True(t, cfg.IsReasoningModel(ExternalModel{ModelName: "custom", Reasoning: true}))
	assert.False(t, cfg.IsReasoningModel(ExternalModel{ModelName: "gpt-4o"}))
}

func TestDefaultConfig_Independent(t *testing.T) {
	a := DefaultConfig()
	a.RawHosts[0] = "mutated"

	b := DefaultConfig()
	assert.Equal(t, "siliconflow.cn", b.RawHosts[0])
	assert.Equal(t, "siliconflow.cn", DefaultRawHosts[0])
}
