package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"mold-inspection-backend/api/internal/repos"
	"mold-inspection-backend/api/internal/tasks"
	"mold-inspection-backend/shared/config"
	"mold-inspection-backend/shared/dbx"
	"mold-inspection-backend/shared/events"
	"mold-inspection-backend/shared/influxx"
	"mold-inspection-backend/shared/logx"
	"mold-inspection-backend/shared/metricsx"
	"mold-inspection-backend/shared/mqx"
	"mold-inspection-backend/shared/observability"
)

type usagePayload struct {
	EquipmentID string     `json:"equipment_id"`
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	TargetClass string     `json:"target_class"`
	UsageCount  int64      `json:"usage_count"`
	ReportedAt  *time.Time `json:"reported_at,omitempty"`
}

func main() {
	cfg, problems := config.Load("usage-consumer", 8082)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if cfg.KafkaGroupID == "" {
		problems = append(problems, config.Problem{Field: "KAFKA_CONSUMER_GROUP", Message: "KAFKA_CONSUMER_GROUP is required"})
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

	reader, err := mqx.NewConsumer(cfg, events.TopicEquipmentUsage, cfg.KafkaGroupID)
	if err != nil {
		logger.Error(context.Background(), "kafka_init_failed", "kafka reader init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer reader.Close()

	var influxClient *influxx.Client
	if cfg.InfluxURL != "" && cfg.InfluxToken != "" && cfg.InfluxOrg != "" && cfg.InfluxBucket != "" {
		influxClient, err = influxx.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "influx_init_failed", "influx init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}
	if influxClient != nil {
		defer influxClient.Close()
	}

	equipmentRepo := repos.NewEquipmentRepo(dbPool)
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	})
	defer asynqClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	loopLogger := logger.With(
		slog.String("topic", events.TopicEquipmentUsage),
		slog.String("group", cfg.KafkaGroupID),
	)
	loopLogger.Info(ctx, "consumer_start", "equipment usage consumer started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			loopLogger.Error(ctx, "kafka_fetch_failed", "failed to fetch message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		spanCtx, span := otel.Tracer("mqx").Start(ctx, "kafka.consume")
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", events.TopicEquipmentUsage),
		)
		if err := handleUsageEvent(spanCtx, cfg, equipmentRepo, influxClient, asynqClient, loopLogger, msg.Value); err != nil {
			span.End()
			loopLogger.Error(ctx, "event_handle_failed", "failed to handle event",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			continue
		}
		span.End()
		if err := reader.CommitMessages(ctx, msg); err != nil {
			loopLogger.Error(ctx, "kafka_commit_failed", "failed to commit message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
		}
		stats := reader.Stats()
		metricsx.SetKafkaLag(stats.Topic, cfg.KafkaGroupID, stats.Lag)
	}

	logger.Info(context.Background(), "consumer_stop", "equipment usage consumer stopped")
}

func handleUsageEvent(ctx context.Context, cfg config.Config, equipmentRepo *repos.EquipmentRepo, influxClient *influxx.Client, asynqClient *asynq.Client, logger logx.Logger, raw []byte) error {
	var envelope events.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	var payload usagePayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return err
	}
	equipmentID, err := uuid.Parse(strings.TrimSpace(payload.EquipmentID))
	if err != nil {
		return errors.New("missing or invalid equipment_id")
	}
	if payload.UsageCount < 0 {
		return errors.New("usage_count must be >= 0")
	}
	reportedAt := envelope.OccurredAt
	if payload.ReportedAt != nil {
		reportedAt = *payload.ReportedAt
	}
	if reportedAt.IsZero() {
		reportedAt = time.Now().UTC()
	}

	record, err := equipmentRepo.UpsertUsage(ctx, equipmentID, payload.Code, payload.Name, payload.TargetClass, payload.UsageCount, reportedAt)
	if err != nil {
		return err
	}
	if influxClient != nil {
		if err := influxClient.WriteUsageSample(ctx, equipmentID.String(), record.UsageCount, reportedAt); err != nil {
			metricsx.IncInfluxWriteFailure()
		}
	}

	// A fresh counter may flip a schedule, recalculate just this equipment.
	taskPayload, _ := json.Marshal(tasks.RecalcEquipmentPayload{EquipmentID: equipmentID.String()})
	if _, err := asynqClient.Enqueue(asynq.NewTask(tasks.TypeRecalcEquipment, taskPayload, asynq.Queue(cfg.AsynqQueue))); err != nil {
		logger.Warn(ctx, "enqueue_failed", "failed to enqueue targeted recalculation",
			slog.String("equipment_id", equipmentID.String()),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
