package main

import (
	"os/signal"
	"syscall"

	"bulkjobs/dispatch"
	"bulkjobs/metrics"
	"bulkjobs/services"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume bulk tasks from RabbitMQ and run them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			mq, err := dispatch.NewRabbitMQ(a.cfg.RabbitMQ.URL, a.logger)
			if err != nil {
				return err
			}
			defer mq.Close()
			if err := mq.SetupTopology(); err != nil {
				return err
			}

			// Tasks are run on the consumer goroutines; the pool is not started.
			runner := services.NewJobWorker(a.processor, 0, a.cfg.Worker.Count, a.logger)
			metricsServer := metrics.NewServer(a.cfg.HTTP.MetricsAddr, a.registry)

			g, gctx := errgroup.WithContext(ctx)
			for i := 0; i < a.cfg.Worker.Count; i++ {
				g.Go(func() error {
					return mq.Consume(gctx, a.cfg.RabbitMQ.Prefetch, runner.Run)
				})
			}
			g.Go(func() error { return listen(metricsServer) })
			g.Go(func() error {
				<-gctx.Done()
				return metricsServer.Close()
			})

			a.logger.Info().Int("consumers", a.cfg.Worker.Count).Msg("worker started, waiting for bulk tasks")
			err = g.Wait()
			a.logger.Info().Msg("worker stopped")
			return err
		},
	}
}
