package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ring2236/ESA-DGR/internal/config"
	"github.com/ring2236/ESA-DGR/internal/domain"
)

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.String("default-model", "", "")
	fs.String("default-role", "", "")
	fs.String("ledger", "", "")
	fs.Int("max-round", 1, "")
	fs.Int("threads", 5, "")
	fs.Float64("loose-score", 0, "")
	fs.Duration("elastic-timeout", 0, "")
	require.NoError(t, fs.Parse([]string{
		"--default-model", "qwen",
		"--default-role", "helpful",
		"--max-round", "3",
		"--loose-score", "0.75",
		"--elastic-timeout", "20s",
	}))

	cfg := config.Default()
	require.NoError(t, applyFlags(fs, cfg))

	assert.Equal(t, domain.ModelRole{Model: "qwen", Role: "helpful"}, cfg.Refinement.Default)
	assert.Equal(t, 3, cfg.Refinement.MaxRound)
	require.NotNil(t, cfg.Refinement.LooseThreshold)
	assert.InDelta(t, 0.75, cfg.Refinement.Threshold(), 1e-9)
	assert.Equal(t, 20*time.Second, cfg.Elastic.Timeout)
	assert.Equal(t, config.LedgerFile, cfg.Ledger, "unset flags keep config values")
	assert.Equal(t, domain.DefaultMaxConcurrency, cfg.Threads)
}

func TestEvalCommand(t *testing.T) {
	dir := t.TempDir()
	pred := filepath.Join(dir, "pred.json")
	gold := filepath.Join(dir, "gold.json")
	require.NoError(t, os.WriteFile(pred, []byte(`{"a": "Yes", "b": "Paris"}`), 0o600))
	require.NoError(t, os.WriteFile(gold, []byte(`{"a": "yes", "b": "London"}`), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"eval", pred, gold, "--log-level", "error"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "Evaluation Metrics:")
	assert.Contains(t, out.String(), `"em": 0.5`)
}

func TestRunCommand_RequiresModelSelection(t *testing.T) {
	rootCmd.SetArgs([]string{"run", "--input", filepath.Join(t.TempDir(), "dev.json")})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "--default-model")
	assert.Contains(t, err.Error(), "--loose-score")
}

func TestRunCommand_RequiresLooseScore(t *testing.T) {
	t.Cleanup(func() {
		runCmd.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})
	rootCmd.SetArgs([]string{"run",
		"--input", filepath.Join(t.TempDir(), "dev.json"),
		"--default-model", "qwen", "--default-role", "helpful",
		"--strict-model", "qwen", "--strict-role", "strict",
		"--loose-model", "qwen", "--loose-role", "loose",
		"--max-round", "3",
	})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "LooseThreshold")
}
