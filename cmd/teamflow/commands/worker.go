package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/teamflow/internal/orchestrator"
	"github.com/dyluth/teamflow/internal/printer"
	"github.com/spf13/cobra"
)

var workerHealthAddr string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Execute queued runs",
	Long: `Pull queued run chains from Redis and execute them.

Any number of workers may share one Redis; each chain is taken by exactly one.
A health endpoint (/healthz, /metrics) is served on --health-addr.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerHealthAddr, "health-addr", "", "Health listen address (overrides worker.health_addr)")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Worker.HealthAddr
	if workerHealthAddr != "" {
		addr = workerHealthAddr
	}
	health := orchestrator.NewHealthServer(a.client, addr, a.metrics.Handler())
	if err := health.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		health.Shutdown(shutdownCtx)
	}()

	printer.Step("Worker started (concurrency %d, health on %s)", a.cfg.Worker.Concurrency, addr)
	if err := a.newPool().Run(ctx); err != nil {
		return err
	}
	printer.Success("Worker stopped")
	return nil
}
