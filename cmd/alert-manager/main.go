package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/harish-x/log-boy/internal/bus"
	"github.com/harish-x/log-boy/internal/config"
	"github.com/harish-x/log-boy/internal/cooldown"
	"github.com/harish-x/log-boy/internal/database"
	"github.com/harish-x/log-boy/internal/deadletter"
	"github.com/harish-x/log-boy/internal/evaluator"
	"github.com/harish-x/log-boy/internal/processor"
	"github.com/harish-x/log-boy/internal/publisher"
	"github.com/harish-x/log-boy/internal/telemetry"
	"github.com/harish-x/log-boy/pkg/metrics"
	"github.com/harish-x/log-boy/pkg/shared"
)

const serviceName = "alert-manager"

var (
	_ processor.MetricsRecorder = (*metrics.Collector)(nil)
	_ cooldown.Metrics          = (*metrics.Collector)(nil)
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires and runs the alert manager, returning the process exit code so
// deferred cleanup completes before main exits.
func run(args []string) int {
	// Parse command-line flags with environment variable fallbacks
	cfg, err := config.Load(args)
	if err != nil {
		return 2
	}

	// Set up structured logging
	level, err := shared.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Status {
		if err := printStatus(ctx, os.Stdout, cfg.RedisAddr, cfg.Fingerprint); err != nil {
			slog.Error("Failed to read status", "error", err)
			return 1
		}
		return 0
	}

	slog.Info("Starting alert manager",
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
		"elasticsearch_addrs", cfg.ElasticsearchAddrs,
		"redis_addr", cfg.RedisAddr,
		"alert_channel", cfg.AlertChannel,
		"cooldown", cfg.Cooldown,
		"workers", cfg.Workers,
		"schedule", cfg.Schedule,
		"once", cfg.Once,
		"kafka_brokers", cfg.KafkaBrokers,
		"dead_letter_topic", cfg.DeadLetterTopic,
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Initialize database connection
	slog.Info("Connecting to PostgreSQL database")
	db, err := database.NewDB(cfg.PostgresDSN)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		slog.Info("Tip: Start Postgres with 'docker compose up -d postgres' or ensure Postgres is running")
		return 1
	}
	defer db.Close()

	// Initialize Elasticsearch client
	slog.Info("Connecting to Elasticsearch", "addrs", cfg.ElasticsearchAddrs)
	esClient, err := telemetry.Connect(ctx, cfg.ElasticsearchAddresses(), cfg.ElasticsearchUsername, cfg.ElasticsearchPassword)
	if err != nil {
		slog.Error("Failed to connect to Elasticsearch", "error", err)
		return 1
	}

	// Initialize Redis client for cooldowns, the alert channel and metrics
	slog.Info("Connecting to Redis", "addr", cfg.RedisAddr)
	redisClient, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		slog.Info("Tip: Start Redis with 'docker compose up -d redis'")
		return 1
	}
	defer redisClient.Close()
	slog.Info("Successfully connected to Redis")

	// Initialize metrics collector
	collector := metrics.NewCollector(serviceName, nil)
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector(serviceName, redisClient)
		collector.Start(ctx)
		defer collector.Stop()
	}

	// Dead letters are always logged; Kafka is added when brokers are configured
	var sink deadletter.Sink = deadletter.LogSink{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		kafkaSink, err := deadletter.NewKafkaSink(brokers, cfg.DeadLetterTopic)
		if err != nil {
			slog.Error("Failed to create dead-letter sink", "error", err)
			return 1
		}
		defer kafkaSink.Close()
		sink = deadletter.Multi{deadletter.LogSink{}, kafkaSink}
	}

	proc := processor.NewProcessorWithMetrics(
		db,
		evaluator.NewEvaluator(telemetry.NewBackend(esClient), cfg.QueryTimeout),
		cooldown.NewFilter(cooldown.NewRedisStore(redisClient), cfg.Cooldown, cfg.CacheTimeout, collector),
		publisher.NewPublisher(bus.NewRedisBus(redisClient), cfg.AlertChannel, cfg.PublishTimeout, sink),
		processor.Options{Workers: cfg.Workers, QueryTimeout: cfg.QueryTimeout},
		collector,
	)

	if cfg.Once {
		report := proc.RunCycle(ctx)
		if report.Err != nil {
			return 1
		}
		slog.Info("Alert manager stopped")
		return 0
	}

	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		),
	)
	if _, err := scheduler.AddFunc(cfg.Schedule, func() { proc.RunCycle(ctx) }); err != nil {
		slog.Error("Failed to schedule alert cycle", "schedule", cfg.Schedule, "error", err)
		return 1
	}
	scheduler.Start()
	slog.Info("Alert cycle scheduled", "schedule", cfg.Schedule)

	<-ctx.Done()
	slog.Info("Waiting for running cycle to finish")
	<-scheduler.Stop().Done()

	slog.Info("Alert manager stopped")
	return 0
}

func printStatus(ctx context.Context, w io.Writer, redisAddr, fingerprint string) error {
	redisClient, err := shared.ConnectRedis(ctx, redisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	return writeStatus(ctx, w, redisClient, fingerprint)
}

// writeStatus prints the last reported metrics and, when fingerprint is set,
// when that alert last fired according to the cooldown store.
func writeStatus(ctx context.Context, w io.Writer, redisClient *redis.Client, fingerprint string) error {
	m, err := metrics.NewReader(redisClient).GetServiceMetrics(ctx, serviceName)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	fmt.Fprintln(w, string(out))

	if fingerprint == "" {
		return nil
	}
	firedAt, ok, err := cooldown.NewRedisStore(redisClient).LastFired(ctx, fingerprint)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(w, "%s: not in cooldown\n", fingerprint)
		return nil
	}
	fmt.Fprintf(w, "%s: last fired at %s\n", fingerprint, firedAt.UTC().Format(time.RFC3339))
	return nil
}
