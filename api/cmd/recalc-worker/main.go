package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"mold-inspection-backend/api/internal/repos"
	"mold-inspection-backend/api/internal/scheduling"
	"mold-inspection-backend/api/internal/tasks"
	"mold-inspection-backend/shared/cachex"
	"mold-inspection-backend/shared/clients/registry"
	"mold-inspection-backend/shared/config"
	"mold-inspection-backend/shared/dbx"
	"mold-inspection-backend/shared/influxx"
	"mold-inspection-backend/shared/lockx"
	"mold-inspection-backend/shared/logx"
	"mold-inspection-backend/shared/metricsx"
	"mold-inspection-backend/shared/mqx"
	"mold-inspection-backend/shared/observability"
)

const (
	sweepLockKey    = "locks:recalc_sweep"
	staleOutboxAge  = 5 * time.Minute
	summaryCronSpec = "0 6 * * *"
)

func main() {
	cfg, problems := config.Load("recalc-worker", 8083)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		problems = append(problems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()

	producer, err := mqx.NewProducer(cfg)
	if err != nil {
		logger.Error(context.Background(), "kafka_init_failed", "kafka producer init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer producer.Close()

	var cacheClient *cachex.Client
	if cfg.RedisAddr != "" {
		cacheClient, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "redis_init_failed", "redis init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}
	if cacheClient != nil {
		defer cacheClient.Close()
	}

	equipmentRepo := repos.NewEquipmentRepo(dbPool)
	checklistsRepo := repos.NewChecklistsRepo(dbPool)
	schedulesRepo := repos.NewSchedulesRepo(dbPool)
	alertsRepo := repos.NewAlertsRepo(dbPool)
	thresholdsRepo := repos.NewThresholdsRepo(dbPool)
	outboxRepo := repos.NewOutboxRepo(dbPool)

	snapshotTTL := time.Duration(cfg.SnapshotCacheSec) * time.Second
	snapshots := scheduling.NewSnapshotProvider(checklistsRepo, cacheClient, snapshotTTL)
	ruleStore := scheduling.NewRuleStore(thresholdsRepo, cacheClient, cfg)
	alertWriter := scheduling.NewAlertWriter(dbPool, alertsRepo, outboxRepo)
	dispatcher := scheduling.NewDispatcher(alertWriter, ruleStore, logger)

	var usageRefresher scheduling.UsageRefresher
	if cfg.RegistryEnabled && cfg.RegistryAPIURL != "" {
		registryClient, err := registry.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "registry_init_failed", "registry client init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		} else {
			usageRefresher = registryClient
		}
	}

	var statusSink scheduling.StatusSink
	if cfg.InfluxURL != "" && cfg.InfluxToken != "" && cfg.InfluxOrg != "" && cfg.InfluxBucket != "" {
		influxClient, err := influxx.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "influx_init_failed", "influx init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		} else {
			defer influxClient.Close()
			statusSink = influxClient
		}
	}

	recalculator := scheduling.NewRecalculator(
		equipmentRepo,
		snapshots,
		schedulesRepo,
		dispatcher,
		ruleStore,
		usageRefresher,
		statusSink,
		logger,
	)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			cfg.AsynqQueue: 1,
		},
	})
	defer server.Shutdown()

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeRecalcSweep, func(ctx context.Context, t *asynq.Task) error {
		if cacheClient == nil {
			return recalculator.SweepAll(ctx)
		}
		lockTTL := time.Duration(cfg.RecalcIntervalSec) * time.Second
		ran, err := lockx.WithLock(ctx, cacheClient.Client(), sweepLockKey, lockTTL, recalculator.SweepAll)
		if err != nil {
			return err
		}
		if !ran {
			logger.Debug(ctx, "recalc_sweep_skipped", "another worker holds the sweep lock")
		}
		return nil
	})
	mux.HandleFunc(tasks.TypeRecalcEquipment, func(ctx context.Context, t *asynq.Task) error {
		var payload tasks.RecalcEquipmentPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return err
		}
		equipmentID, err := uuid.Parse(strings.TrimSpace(payload.EquipmentID))
		if err != nil {
			return err
		}
		return recalculator.SweepOne(ctx, equipmentID)
	})
	mux.HandleFunc(tasks.TypeDailySummary, func(ctx context.Context, t *asynq.Task) error {
		if !cfg.SummaryEnabled {
			return nil
		}
		counts, err := schedulesRepo.CountByStatus(ctx)
		if err != nil {
			return err
		}
		return dispatcher.DispatchDailySummary(ctx, counts["due"], counts["overdue"])
	})
	mux.HandleFunc(tasks.TypeOutboxScan, func(ctx context.Context, t *asynq.Task) error {
		if released, err := outboxRepo.ReleaseStale(ctx, staleOutboxAge); err == nil && released > 0 {
			logger.Warn(ctx, "outbox_released_stale", "released stale outbox claims",
				slog.Int64("count", released),
			)
		}
		events, err := outboxRepo.ClaimPending(ctx, cfg.ServiceName, cfg.OutboxBatchSize)
		if err != nil {
			return err
		}
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		for _, event := range events {
			payload, _ := json.Marshal(tasks.OutboxDispatchPayload{EventID: event.EventID.String()})
			task := asynq.NewTask(tasks.TypeOutboxDispatch, payload, asynq.Queue(cfg.AsynqQueue))
			if _, err := client.Enqueue(task); err != nil {
				logger.Error(ctx, "enqueue_failed", "failed to enqueue outbox dispatch",
					slog.String("error_code", "INTERNAL_ERROR"),
					slog.String("error", err.Error()),
				)
				attempts := event.Attempts + 1
				nextRetry := time.Now().UTC().Add(retryDelay(attempts))
				_ = outboxRepo.MarkFailed(ctx, event.EventID, attempts, &nextRetry, err.Error(), attempts >= cfg.OutboxMaxAttempts)
			}
		}
		return nil
	})
	mux.HandleFunc(tasks.TypeOutboxDispatch, func(ctx context.Context, t *asynq.Task) error {
		ctx, span := otel.Tracer("asynq").Start(ctx, "outbox.dispatch")
		span.SetAttributes(attribute.String("queue", cfg.AsynqQueue))
		defer span.End()
		var payload tasks.OutboxDispatchPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return err
		}
		eventID, err := uuid.Parse(strings.TrimSpace(payload.EventID))
		if err != nil {
			return err
		}
		event, err := outboxRepo.GetByID(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status == repos.OutboxStatusDelivered || event.Status == repos.OutboxStatusDead {
			return nil
		}
		headers := map[string]string{
			"event_id":       event.EventID.String(),
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
			"published_at":   time.Now().UTC().Format(time.RFC3339Nano),
		}
		if err := producer.Publish(ctx, event.Topic, []byte(event.AggregateID.String()), event.Payload, headers); err != nil {
			attempts := event.Attempts + 1
			nextRetry := time.Now().UTC().Add(retryDelay(attempts))
			dead := attempts >= cfg.OutboxMaxAttempts
			_ = outboxRepo.MarkFailed(ctx, event.EventID, attempts, &nextRetry, err.Error(), dead)
			if dead {
				logger.Warn(ctx, "outbox_dead", "outbox event moved to dead-letter",
					slog.String("event_id", event.EventID.String()),
					slog.Int("attempts", attempts),
				)
				return nil
			}
			return err
		}
		if err := outboxRepo.MarkDelivered(ctx, event.EventID); err != nil {
			return err
		}
		return nil
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})
	defer scheduler.Shutdown()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := scheduler.Register("@every "+strconv.Itoa(cfg.OutboxScanSec)+"s", asynq.NewTask(tasks.TypeOutboxScan, nil, asynq.Queue(cfg.AsynqQueue))); err != nil {
		logger.Error(context.Background(), "scheduler_init_failed", "scheduler init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if _, err := scheduler.Register("@every "+strconv.Itoa(cfg.RecalcIntervalSec)+"s", asynq.NewTask(tasks.TypeRecalcSweep, nil, asynq.Queue(cfg.AsynqQueue))); err != nil {
		logger.Error(context.Background(), "scheduler_init_failed", "scheduler init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if cfg.SummaryEnabled {
		if _, err := scheduler.Register(summaryCronSpec, asynq.NewTask(tasks.TypeDailySummary, nil, asynq.Queue(cfg.AsynqQueue))); err != nil {
			logger.Error(context.Background(), "scheduler_init_failed", "scheduler init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}
	if err := scheduler.Start(); err != nil {
		logger.Error(context.Background(), "scheduler_start_failed", "scheduler start failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			info, err := inspector.GetQueueInfo(cfg.AsynqQueue)
			if err != nil {
				continue
			}
			metricsx.SetAsynqQueueDepth(cfg.AsynqQueue, info.Size)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "worker_start", "recalc worker started",
			slog.String("queue", cfg.AsynqQueue),
			slog.Int("concurrency", cfg.AsynqConcurrency),
			slog.Int("recalc_interval_seconds", cfg.RecalcIntervalSec),
		)
		errCh <- server.Run(mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, asynq.ErrServerClosed) {
			logger.Error(context.Background(), "worker_failed", "worker failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	logger.Info(context.Background(), "worker_stop", "recalc worker stopped")
}

func retryDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 5 * time.Second
	}
	delay := time.Duration(attempt*attempt) * 5 * time.Second
	if delay > 5*time.Minute {
		return 5 * time.Minute
	}
	return delay
}
