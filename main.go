package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/restalytics/etl-engine/pkg/config"
	"github.com/restalytics/etl-engine/pkg/database"
	"github.com/restalytics/etl-engine/pkg/extract"
	"github.com/restalytics/etl-engine/pkg/logging"
	"github.com/restalytics/etl-engine/pkg/models"
	"github.com/restalytics/etl-engine/pkg/repositories"
	"github.com/restalytics/etl-engine/pkg/retry"
	"github.com/restalytics/etl-engine/pkg/services"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	runOnce := flag.Bool("once", false, "run a single sync pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *runOnce); err != nil {
		if err == context.Canceled {
			logger.Info("shutdown complete")
			return
		}
		logger.Fatal("engine failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, runOnce bool) error {
	connStr := cfg.Database.ConnectionString()

	migrationDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return err
	}
	if err := database.RunMigrations(migrationDB, "migrations", logger); err != nil {
		_ = migrationDB.Close()
		return err
	}
	_ = migrationDB.Close()

	retryCfg := &retry.Config{
		MaxRetries:   cfg.ETL.MaxRetries,
		InitialDelay: time.Duration(cfg.ETL.RetryInitialDelayMS) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.ETL.RetryMaxDelayMS) * time.Millisecond,
		Multiplier:   cfg.ETL.RetryBackoffFactor,
		JitterFactor: 0.1,
	}

	db, err := retry.DoWithResult(ctx, retryCfg, func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            connStr,
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to warehouse",
		zap.String("conn", logging.SanitizeConnectionString(connStr)))

	// All non-transactional repository calls run against the pool.
	ctx = database.WithQuerier(ctx, db.Pool)

	buckets := repositories.NewTimeBucketRepository()
	dims := repositories.NewDimensionRepository()
	facts := repositories.NewFactRepository()
	tracker := repositories.NewSyncTrackerRepository()

	generator, err := services.NewDateDimensionGenerator(buckets, cfg.Calendar, cfg.ETL.Interval(), logger)
	if err != nil {
		return err
	}
	coverFrom, coverTo, err := cfg.ETL.CoverageRange(time.Now())
	if err != nil {
		return err
	}
	if err := generator.EnsureCoverage(ctx, coverFrom, coverTo); err != nil {
		return err
	}

	policies := make(map[string]models.ChangePolicy, len(cfg.Dimensions))
	for dim, policy := range cfg.Dimensions {
		policies[dim] = models.ChangePolicy(policy)
	}

	resolver := services.NewSurrogateKeyResolver(dims, logger)
	transformer := services.NewTransformer(cfg.ETL.Interval(), policies)
	loader := services.NewLoader(db, resolver, buckets, facts, logger)

	client := extract.NewClient(cfg.API, logger)
	if err := client.Login(ctx); err != nil {
		return err
	}
	logger.Info("authenticated with ordering platform",
		zap.Int64("restaurant_id", client.RestaurantID()),
		zap.String("restaurant", client.RestaurantName()))

	orchestrator := services.NewOrchestrator(
		client, transformer, loader, tracker,
		client.RestaurantID(), client.RestaurantName(),
		retryCfg, cfg.ETL.BatchSize, logger,
	)

	if runOnce || !cfg.Schedule.Enabled {
		summary, err := orchestrator.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info("sync complete",
			zap.Int("pulled", summary.Pulled),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed))
		return nil
	}

	scheduler, err := services.NewScheduler(orchestrator, cfg.Schedule, logger)
	if err != nil {
		return err
	}
	return scheduler.Start(ctx)
}
