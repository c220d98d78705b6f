package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bulkjobs/config"
	"bulkjobs/dispatch"
	"bulkjobs/handlers"
	"bulkjobs/metrics"
	"bulkjobs/services"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bulk HTTP API, metrics listener and in-process workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	var dispatcher handlers.Dispatcher
	var jobWorker *services.JobWorker

	switch a.cfg.Worker.Dispatch {
	case config.DispatchRabbitMQ:
		mq, err := dispatch.NewRabbitMQ(a.cfg.RabbitMQ.URL, a.logger)
		if err != nil {
			return err
		}
		defer mq.Close()
		if err := mq.SetupTopology(); err != nil {
			return err
		}
		dispatcher = mq
	default:
		// The channel acts as the in-memory queue for accepted jobs
		jobWorker = services.NewJobWorker(a.processor, a.cfg.Worker.QueueSize, a.cfg.Worker.Count, a.logger)
		jobWorker.Start()
		defer jobWorker.Stop()
		dispatcher = jobWorker
	}

	bulkHandler := handlers.NewBulkHandler(a.processor, dispatcher, a.cfg.Bulk.SyncItemLimit, a.logger)
	apiServer := &http.Server{
		Addr:              ":" + a.cfg.HTTP.Port,
		Handler:           handlers.NewRouter(bulkHandler, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := metrics.NewServer(a.cfg.HTTP.MetricsAddr, a.registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info().Str("addr", apiServer.Addr).Msg("starting API server")
		return listen(apiServer)
	})
	g.Go(func() error {
		a.logger.Info().Str("addr", metricsServer.Addr).Msg("starting metrics server")
		return listen(metricsServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	err := g.Wait()
	a.logger.Info().Msg("server stopped")
	return err
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
