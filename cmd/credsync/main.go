package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	credentialstore "credsync/internal/credential/store"
	opshandler "credsync/internal/ops/handler"
	"credsync/internal/platform/config"
	"credsync/internal/platform/httpserver"
	"credsync/internal/platform/kafka"
	"credsync/internal/platform/logger"
	platformmetrics "credsync/internal/platform/metrics"
	"credsync/internal/platform/postgres"
	"credsync/internal/platform/redis"
	"credsync/internal/reconcile/adapters"
	"credsync/internal/reconcile/adapters/rest"
	"credsync/internal/reconcile/checkpoint"
	"credsync/internal/reconcile/feed"
	"credsync/internal/reconcile/metrics"
	"credsync/internal/reconcile/processlog"
	"credsync/internal/reconcile/profile"
	"credsync/internal/reconcile/scheduler"
	"credsync/internal/reconcile/service"
	"credsync/pkg/platform/sealer"
	txcontext "credsync/pkg/platform/tx"
)

var version = "dev"

const feedTokenTTL = 5 * time.Minute

// main wires dependencies and keeps the process lifecycle small. The
// reconciliation algorithm lives in internal/reconcile.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("credsync stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("credsync stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	registry := platformmetrics.New(version)
	m := metrics.NewWithRegistry(registry.Registry)

	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.DefaultOptions())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	payloadSealer, err := sealer.NewFromHex(cfg.PayloadSealingKey)
	if err != nil {
		return fmt.Errorf("payload sealing key: %w", err)
	}

	checks := []opshandler.Option{opshandler.WithHealthCheck("postgres", postgres.Health(db))}

	source, err := newFeed(cfg.Feed, log)
	if err != nil {
		return err
	}

	registryAdapters, err := newAdapterRegistry(cfg.Issuers)
	if err != nil {
		return err
	}
	log.Info("issuer adapters registered", "issuers", registryAdapters.Issuers())

	notifier, kafkaClient, err := newNotifier(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		checks = append(checks, opshandler.WithHealthCheck("kafka", kafka.Health(kafkaClient)))
	}

	reconciler, err := newReconciler(cfg.Sync, db, payloadSealer, source, registryAdapters, notifier, m, log)
	if err != nil {
		return err
	}

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(log),
		scheduler.WithMetrics(m),
		scheduler.WithCycleTimeout(cfg.Sync.CycleTimeout),
	}
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		schedOpts = append(schedOpts, scheduler.WithLocker(scheduler.NewRedisLocker(redisClient.Client), cfg.Redis.LockTTL))
		checks = append(checks, opshandler.WithHealthCheck("redis", redisClient.Health))
	}

	sched, err := scheduler.New(reconciler, cfg.Sync.CronSchedule, schedOpts...)
	if err != nil {
		return err
	}

	ops := opshandler.New(sched, processlog.NewPostgres(db), log, append(checks,
		opshandler.WithAdminToken(cfg.Ops.AdminToken),
		opshandler.WithMetricsHandler(registry.Handler()),
	)...)
	srv := httpserver.New(cfg.Ops.Addr, ops.Router())

	if async, ok := notifier.(*profile.AsyncTrigger); ok {
		async.Start(context.WithoutCancel(ctx))
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := async.Close(closeCtx); err != nil {
				log.Warn("profile refresh queue not drained", "error", err)
			}
		}()
	}

	sched.Start()

	serveErr := httpserver.Serve(ctx, srv, cfg.ShutdownTimeout, log)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		log.Warn("scheduler stop timed out", "error", err)
	}
	return serveErr
}

func newFeed(cfg config.Feed, log *slog.Logger) (*feed.Client, error) {
	opts := []feed.Option{feed.WithTimeout(cfg.Timeout), feed.WithLogger(log)}
	switch {
	case cfg.SigningKey != "":
		signer, err := feed.NewHMACSigner([]byte(cfg.SigningKey), cfg.Audience, feedTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("feed signer: %w", err)
		}
		opts = append(opts, feed.WithTokenSource(signer))
	case cfg.APIToken != "":
		opts = append(opts, feed.WithTokenSource(feed.StaticToken(cfg.APIToken)))
	}
	return feed.New(cfg.BaseURL, opts...), nil
}

func newAdapterRegistry(issuers []config.Issuer) (*adapters.Registry, error) {
	list := make([]adapters.Adapter, 0, len(issuers))
	for _, iss := range issuers {
		var opts []rest.Option
		if iss.APIKey != "" {
			opts = append(opts, rest.WithAPIKey(iss.APIKey))
		}
		a, err := rest.New(iss.Name, iss.BaseURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("issuer %s: %w", iss.Name, err)
		}
		list = append(list, a)
	}
	return adapters.NewRegistry(list...)
}

// newNotifier returns the Kafka-backed async trigger when brokers are set and
// the no-op notifier otherwise.
func newNotifier(ctx context.Context, cfg config.Config, m *metrics.Metrics, log *slog.Logger) (profile.Notifier, *kgo.Client, error) {
	if !cfg.KafkaEnabled() {
		log.Info("kafka not configured, profile refreshes disabled")
		return profile.Noop{}, nil, nil
	}
	client, err := kafka.NewClient(ctx, cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.ProfileTopic, 1, 1); err != nil {
		client.Close()
		return nil, nil, err
	}
	trigger := profile.NewAsyncTrigger(
		profile.NewKafkaNotifier(client, cfg.Kafka.ProfileTopic),
		profile.WithQueueSize(cfg.Kafka.QueueSize),
		profile.WithLogger(log),
		profile.WithMetrics(m),
	)
	return trigger, client, nil
}

func newReconciler(
	cfg config.Sync,
	db *sql.DB,
	payloadSealer *sealer.Sealer,
	source service.EventSource,
	resolver service.AdapterResolver,
	notifier profile.Notifier,
	m *metrics.Metrics,
	log *slog.Logger,
) (*service.Reconciler, error) {
	return service.New(
		checkpoint.NewPostgres(db),
		source,
		credentialstore.NewPostgres(db, payloadSealer),
		processlog.NewPostgres(db),
		resolver,
		service.WithConfig(service.Config{
			JobName:           cfg.JobName,
			Lookback:          cfg.Lookback,
			InitialBackfill:   cfg.InitialBackfill,
			Concurrency:       cfg.Concurrency,
			AdapterTimeout:    cfg.AdapterTimeout,
			StrictTransitions: cfg.StrictTransitions,
		}),
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithTxRunner(txcontext.NewSQLRunner(db)),
		service.WithNotifier(notifier),
	)
}
