package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/teamflow/internal/api"
	"github.com/dyluth/teamflow/internal/printer"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr     string
	serveNoWorker bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and an embedded worker pool",
	Long: `Serve the run API over HTTP and execute queued runs in the same process.

Endpoints:
  POST /runs                              create a run
  GET  /runs/{id}                         run status
  POST /runs/{id}/steps/{step}/regenerate re-run a stage and its dependents
  POST /runs/{id}/cancel                  cancel a run
  GET  /runs/{id}/events                  server-sent event stream
  GET  /runs/{id}/export?format=md        export the final document
  GET  /healthz, /metrics

Use --no-worker to serve the API only and run 'teamflow worker' elsewhere.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides api.addr)")
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "Do not execute runs in this process")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, !serveNoWorker)
	if err != nil {
		return err
	}
	defer a.Close()

	apiCfg := a.cfg.APIConfig()
	if serveAddr != "" {
		apiCfg.Addr = serveAddr
	}
	server := api.New(apiCfg, a.service, a.client, a.metrics.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		printer.Step("API listening on %s", apiCfg.Addr)
		return server.Run(gctx)
	})
	if !serveNoWorker {
		pool := a.newPool()
		g.Go(func() error {
			printer.Step("Worker pool started (concurrency %d)", a.cfg.Worker.Concurrency)
			return pool.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return printer.Error("server stopped", fmt.Sprintf("Error: %v", err))
	}
	printer.Success("Shut down cleanly")
	return nil
}
