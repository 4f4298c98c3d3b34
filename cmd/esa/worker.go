package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ring2236/ESA-DGR/internal/metrics"
	"github.com/ring2236/ESA-DGR/internal/server"
	"github.com/ring2236/ESA-DGR/internal/worker"
	"github.com/ring2236/ESA-DGR/pkg/events"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker executing refinement workflows",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	f := workerCmd.Flags()
	f.String("model-config", "", "model table YAML or JSON")
	f.String("temporal-host", "", "temporal frontend host:port")
	f.String("temporal-namespace", "", "temporal namespace")
	f.String("task-queue", "", "temporal task queue")
	f.Int("max-activities", 0, "maximum concurrently executing activities (0 = sdk default)")
	f.String("elastic", "", "elasticsearch endpoint")
	f.Duration("elastic-timeout", 0, "per-search timeout")
	f.String("metrics-addr", "", "serve /metrics and /healthz on this address")
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadAppConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	client, err := newLLMClient(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	searcher, err := newSearcher(cfg)
	if err != nil {
		return err
	}
	acts, err := worker.NewActivities(client, searcher, events.NewLogEventSink(logger, slog.LevelDebug), logger)
	if err != nil {
		return err
	}

	c, err := worker.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.MetricsAddr != "" {
		srv := server.New(cfg.MetricsAddr, server.NewHandler(m.Handler(), nil), logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("status server stopped", "error", err)
			}
		}()
	}

	w := worker.New(c, cfg.Temporal.TaskQueue, cfg.Temporal.MaxConcurrentActivities, acts)
	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue, "namespace", cfg.Temporal.Namespace)

	interrupt := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(interrupt)
	}()
	return w.Run(interrupt)
}
