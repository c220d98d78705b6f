package main

import (
	"context"
	"fmt"

	"bulkjobs/config"
	"bulkjobs/db"
	"bulkjobs/logging"
	"bulkjobs/metrics"
	"bulkjobs/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
)

type rootOptions struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "bulkjobs",
		Short:         "Bulk administrative job processor for the marketplace back office",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to an optional .env file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	cmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newRunCmd(opts),
		newStatusCmd(opts),
	)
	return cmd
}

// app holds the wired components shared by every subcommand
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	client    *mongo.Client
	registry  *prometheus.Registry
	processor *services.Processor
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	resolver, err := db.LoadCollectionResolver(cfg.CollectionsFile)
	if err != nil {
		return nil, err
	}

	client, err := db.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Timeout)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("database", cfg.Mongo.Database).
		Bool("transactions", cfg.Mongo.Transactions).
		Msg("connected to MongoDB")

	database := client.Database(cfg.Mongo.Database)
	jobsCol := db.GetJobsCollection(database, cfg.Mongo.JobsCollection)
	if err := db.EnsureJobIndexes(ctx, jobsCol); err != nil {
		logger.Warn().Err(err).Msg("job indexes not created")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	jobStore := db.NewMongoJobStore(jobsCol)
	processor := services.NewProcessor(
		services.NewJobManager(jobStore, logger),
		db.NewMongoDocumentStore(database, cfg.Mongo.Transactions),
		resolver,
		services.NewValidator(),
		services.NewProgressReporter(jobStore, logger, cfg.Bulk.ProgressInterval, cfg.Bulk.MaxErrors),
		metrics.New(registry),
		logger,
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		registry:  registry,
		processor: processor,
	}, nil
}

func (a *app) Close() {
	if err := db.DisconnectMongoDB(a.client); err != nil {
		a.logger.Warn().Err(err).Msg("failed to disconnect from MongoDB")
	}
}

func requireArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%s expects %d argument(s), got %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}
