package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/wikiport/internal/api"
	"github.com/dgallion1/wikiport/internal/convert"
	"github.com/dgallion1/wikiport/internal/pipeline"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion and import HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			log := a.log
			if err := cfg.ValidateServer(); err != nil {
				log.Error("invalid configuration", "error", err)
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			resolver := a.resolver()
			stats := pipeline.NewConvertStats(cfg.StatsWindow)

			// Initialize pipeline.
			orch := pipeline.NewOrchestrator(
				pipeline.OrchestratorConfig{
					WorkerCount:  cfg.WorkerCount,
					MaxQueueSize: cfg.MaxQueueSize,
					JobTTL:       cfg.JobTTL,
				},
				pipeline.WorkerConfig{
					Root:            cfg.Root,
					Lanes:           cfg.Lanes,
					Resolver:        resolver,
					InvalidateCache: cfg.InvalidateCache,
				},
				stats, log)
			orch.Start(ctx)

			// Initialize HTTP server.
			srv := api.NewServer(orch, convert.NewConverter(log, resolver), log, cfg)

			httpServer := &http.Server{
				Addr:         ":" + cfg.Port,
				Handler:      srv,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 120 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			// Graceful shutdown.
			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				select {
				case <-sigCh:
				case <-ctx.Done():
				}
				log.Info("shutting down...")

				orch.Stop()

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				httpServer.Shutdown(shutdownCtx)
			}()

			log.Info("starting wikiport", "port", cfg.Port, "root", cfg.Root)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("server error", "error", err)
				return err
			}
			return nil
		},
	}
}
