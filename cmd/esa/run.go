package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ring2236/ESA-DGR/internal/config"
	"github.com/ring2236/ESA-DGR/internal/metrics"
	"github.com/ring2236/ESA-DGR/internal/refine"
	"github.com/ring2236/ESA-DGR/internal/scheduler"
	"github.com/ring2236/ESA-DGR/internal/server"
	"github.com/ring2236/ESA-DGR/internal/store"
	"github.com/ring2236/ESA-DGR/internal/worker"
	"github.com/ring2236/ESA-DGR/pkg/events"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Refine and answer every unprocessed dataset entry",
	Long: `Runs the evidence refinement loop over the dataset with bounded concurrency.
Entries already in the checkpoint ledger are skipped, so an interrupted run
resumes where it stopped.`,
	Args: cobra.NoArgs,
	RunE: runRefinement,
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()

	f.String("default-model", "", "model that distills evidence and writes the answer")
	f.String("default-role", "", "role key for the default model")
	f.String("strict-model", "", "strict judge model")
	f.String("strict-role", "", "role key for the strict judge")
	f.String("loose-model", "", "loose judge model")
	f.String("loose-role", "", "role key for the loose judge")
	f.Float64("loose-score", 0, "loose judge acceptance threshold")
	f.Int("max-round", 1, "maximum refinement rounds per entry")

	f.Int("threads", 5, "maximum concurrently refined entries")
	f.String("input", "", "dataset JSON file")
	f.String("output-dir", "", "directory for result files")
	f.String("checkpoint", "", "checkpoint ledger file")
	f.String("failure-log", "", "failure log file (default <output-dir>/failures.jsonl)")
	f.String("sink-format", "", "result format: json or jsonl")
	f.String("model-config", "", "model table YAML or JSON")
	f.String("ledger", "", "checkpoint backend: file or redis")
	f.String("redis-addr", "", "redis address for the redis ledger")
	f.String("run-name", "", "ledger namespace for the redis backend")
	f.String("engine", "", "refinement engine: local or temporal")
	f.String("temporal-host", "", "temporal frontend host:port")
	f.String("temporal-namespace", "", "temporal namespace")
	f.String("task-queue", "", "temporal task queue")
	f.String("elastic", "", "elasticsearch endpoint")
	f.Duration("elastic-timeout", 0, "per-search timeout")
	f.String("corpus", "", "elasticsearch index to search")
	f.Int("retrieval-size", 0, "passages retrieved per round")
	f.String("metrics-addr", "", "serve /metrics, /healthz and /progress on this address")
}

func runRefinement(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadAppConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Refinement.Validate(); err != nil {
		return fmt.Errorf("%w (check --default-model, --default-role, --strict-model, --strict-role, --loose-model, --loose-role, --loose-score and --max-round)", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	m := metrics.New()

	ledger, closeLedger, err := newLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	sinkPath := store.OutputPath(cfg.OutputDir, cfg.Refinement.Default.Model, cfg.SinkFormat, time.Now())
	sink, err := store.NewSink(cfg.SinkFormat, sinkPath)
	if err != nil {
		return err
	}
	failurePath := cfg.FailureLogPath()

	entries, err := store.LoadDataset(cfg.Input, logger)
	if err != nil {
		return err
	}

	proc, closeProc, err := newProcessor(ctx, cfg, sink, ledger, m, logger)
	if err != nil {
		return err
	}
	defer closeProc()

	sched, err := scheduler.New(proc, ledger,
		scheduler.WithSink(sink),
		scheduler.WithFailureLog(store.NewFailureLog(failurePath)),
		scheduler.WithObserver(m),
		scheduler.WithLogger(logger))
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srvCtx, cancelSrv := context.WithCancel(ctx)
		defer cancelSrv()
		srv := server.New(cfg.MetricsAddr, server.NewHandler(m.Handler(), sched.Progress), logger)
		go func() {
			if err := srv.Run(srvCtx); err != nil {
				logger.Error("status server stopped", "error", err)
			}
		}()
	}

	logger.Info("starting run",
		"entries", len(entries),
		"engine", cfg.Engine,
		"threads", cfg.Threads,
		"output", sinkPath)

	summary, err := sched.Run(ctx, entries, cfg.Threads)
	fmt.Fprintf(cmd.OutOrStdout(), "entries: %d total, %d completed, %d skipped, %d failed\nresults: %s\n",
		summary.Total, summary.Completed, summary.Skipped, summary.Failed, sinkPath)
	if errors.Is(err, context.Canceled) {
		logger.Warn("run interrupted; rerun to resume")
		return nil
	}
	return err
}

// newProcessor builds the per-entry processor for the configured engine.
func newProcessor(
	ctx context.Context,
	cfg *config.AppConfig,
	sink store.Sink,
	ledger store.Ledger,
	m *metrics.Metrics,
	logger *slog.Logger,
) (scheduler.Processor, func(), error) {
	if cfg.Engine == config.EngineTemporal {
		c, err := worker.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace, logger)
		if err != nil {
			return nil, nil, err
		}
		proc, err := scheduler.NewTemporalProcessor(c, cfg.Temporal.TaskQueue, cfg.Refinement, sink, ledger, m)
		if err != nil {
			c.Close()
			return nil, nil, err
		}
		return proc, c.Close, nil
	}

	client, err := newLLMClient(ctx, cfg, logger, m)
	if err != nil {
		return nil, nil, err
	}
	if err := checkModelRoles(client, cfg.Refinement); err != nil {
		return nil, nil, err
	}
	searcher, err := newSearcher(cfg)
	if err != nil {
		return nil, nil, err
	}
	core, err := refine.NewCore(client, searcher, logger)
	if err != nil {
		return nil, nil, err
	}
	engine, err := refine.NewEngine(core, cfg.Refinement,
		refine.WithEventSink(events.NewLogEventSink(logger, slog.LevelDebug)),
		refine.WithObserver(m))
	if err != nil {
		return nil, nil, err
	}
	proc, err := scheduler.NewDefaultProcessor(engine, sink, ledger, m)
	if err != nil {
		return nil, nil, err
	}
	logCacheStats := func() {
		st := client.CacheStats()
		if st.Hits+st.Misses > 0 {
			logger.Info("response cache", "hits", st.Hits, "misses", st.Misses, "errors", st.Errors, "hit_rate", st.HitRate())
		}
	}
	return proc, logCacheStats, nil
}
