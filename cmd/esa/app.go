package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ring2236/ESA-DGR/internal/config"
	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/internal/llm"
	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
	"github.com/ring2236/ESA-DGR/internal/logging"
	"github.com/ring2236/ESA-DGR/internal/retrieval"
	"github.com/ring2236/ESA-DGR/internal/store"
	"github.com/ring2236/ESA-DGR/internal/worker"
)

// loadAppConfig reads --config and applies every flag the user set.
func loadAppConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, cfg *config.AppConfig) error {
	strs := map[string]*string{
		"input":              &cfg.Input,
		"output-dir":         &cfg.OutputDir,
		"checkpoint":         &cfg.Checkpoint,
		"failure-log":        &cfg.FailureLog,
		"sink-format":        &cfg.SinkFormat,
		"model-config":       &cfg.ModelConfig,
		"ledger":             &cfg.Ledger,
		"redis-addr":         &cfg.RedisAddr,
		"run-name":           &cfg.RunName,
		"engine":             &cfg.Engine,
		"temporal-host":      &cfg.Temporal.HostPort,
		"temporal-namespace": &cfg.Temporal.Namespace,
		"task-queue":         &cfg.Temporal.TaskQueue,
		"elastic":            &cfg.Elastic.Endpoint,
		"metrics-addr":       &cfg.MetricsAddr,
		"log-level":          &cfg.LogLevel,
		"log-format":         &cfg.LogFormat,
		"default-model":      &cfg.Refinement.Default.Model,
		"default-role":       &cfg.Refinement.Default.Role,
		"strict-model":       &cfg.Refinement.Strict.Model,
		"strict-role":        &cfg.Refinement.Strict.Role,
		"loose-model":        &cfg.Refinement.Loose.Model,
		"loose-role":         &cfg.Refinement.Loose.Role,
		"corpus":             &cfg.Refinement.Corpus,
	}
	ints := map[string]*int{
		"threads":        &cfg.Threads,
		"max-round":      &cfg.Refinement.MaxRound,
		"retrieval-size": &cfg.Refinement.RetrievalSize,
		"max-activities": &cfg.Temporal.MaxConcurrentActivities,
	}

	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	for name, dst := range ints {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	if fs.Changed("loose-score") {
		v, err := fs.GetFloat64("loose-score")
		if err != nil {
			return err
		}
		cfg.Refinement.SetLooseThreshold(v)
	}
	if fs.Changed("elastic-timeout") {
		v, err := fs.GetDuration("elastic-timeout")
		if err != nil {
			return err
		}
		cfg.Elastic.Timeout = v
	}
	return nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(cfg *config.AppConfig) (*slog.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func loadModelConfig(path string) (*configuration.Config, error) {
	if path == "" {
		return configuration.DefaultConfig(), nil
	}
	return configuration.Load(path)
}

// newLLMClient builds the model client and checks that every configured
// model/role pair resolves before any entry is processed.
func newLLMClient(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, m llm.Metrics) (*llm.Client, error) {
	mcfg, err := loadModelConfig(cfg.ModelConfig)
	if err != nil {
		return nil, err
	}
	return worker.InitializeLLMClient(ctx, mcfg, llm.WithLogger(logger), llm.WithMetrics(m))
}

func checkModelRoles(client *llm.Client, r domain.RefinementConfig) error {
	for _, mr := range []domain.ModelRole{r.Default, r.Strict, r.Loose} {
		if err := client.CheckModelRole(mr); err != nil {
			return err
		}
	}
	return nil
}

func newSearcher(cfg *config.AppConfig) (*retrieval.ElasticClient, error) {
	var opts []retrieval.ElasticOption
	if cfg.Elastic.Timeout > 0 {
		opts = append(opts, retrieval.WithTimeout(cfg.Elastic.Timeout))
	}
	return retrieval.NewElasticClient(cfg.Elastic.Endpoint, opts...)
}

// newLedger opens the configured checkpoint ledger. The returned close func
// releases the Redis connection, if any.
func newLedger(ctx context.Context, cfg *config.AppConfig) (store.Ledger, func(), error) {
	if cfg.Ledger != config.LedgerRedis {
		return store.NewFileLedger(cfg.Checkpoint), func() {}, nil
	}
	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("connecting to redis ledger at %s: %w", cfg.RedisAddr, err)
	}
	return store.NewRedisLedger(rc, store.DefaultLedgerKeyPrefix, cfg.RunName), func() { _ = rc.Close() }, nil
}
