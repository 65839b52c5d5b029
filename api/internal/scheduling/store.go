package scheduling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mold-inspection-backend/api/internal/models"
	"mold-inspection-backend/api/internal/repos"
	"mold-inspection-backend/shared/cachex"
	"mold-inspection-backend/shared/events"
)

// AlertWriter is the production AlertStore: the alert row and its outbox
// event commit in one transaction, so a published alert always exists and an
// absorbed duplicate publishes nothing.
type AlertWriter struct {
	pool   *pgxpool.Pool
	alerts *repos.AlertsRepo
	outbox *repos.OutboxRepo
}

func NewAlertWriter(pool *pgxpool.Pool, alerts *repos.AlertsRepo, outbox *repos.OutboxRepo) *AlertWriter {
	return &AlertWriter{pool: pool, alerts: alerts, outbox: outbox}
}

func (w *AlertWriter) InsertDeduped(ctx context.Context, alert models.AlertRecord) (models.AlertRecord, bool, error) {
	var created models.AlertRecord
	var ok bool
	err := pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		var err error
		created, ok, err = w.alerts.InsertDeduped(ctx, tx, alert)
		if err != nil || !ok || w.outbox == nil {
			return err
		}
		payload, err := json.Marshal(map[string]any{
			"alert_id":     created.AlertID,
			"alert_type":   created.AlertType,
			"severity":     created.Severity,
			"equipment_id": created.EquipmentID,
			"cycle_id":     created.CycleID,
			"message":      created.Message,
			"created_at":   created.CreatedAt,
		})
		if err != nil {
			return err
		}
		_, err = w.outbox.Insert(ctx, tx, models.OutboxEvent{
			AggregateType: "alert_record",
			AggregateID:   created.AlertID,
			Topic:         events.TopicInspectionAlert,
			Payload:       payload,
		})
		return err
	})
	if err != nil {
		return models.AlertRecord{}, false, err
	}
	return created, ok, nil
}

func (w *AlertWriter) ResolveOpen(ctx context.Context, equipmentID uuid.UUID, cycleID uuid.UUID) (int64, error) {
	return w.alerts.ResolveOpen(ctx, w.pool, equipmentID, cycleID)
}

// SnapshotProvider serves the currently deployed checklist for a target
// class through a short redis cache. Deploy invalidates the class key.
type SnapshotProvider struct {
	checklists *repos.ChecklistsRepo
	cache      *cachex.Client
	ttl        time.Duration
}

func NewSnapshotProvider(checklists *repos.ChecklistsRepo, cache *cachex.Client, ttl time.Duration) *SnapshotProvider {
	return &SnapshotProvider{checklists: checklists, cache: cache, ttl: ttl}
}

func deployedCacheKey(targetClass string) string {
	return "deployed:" + targetClass
}

func (p *SnapshotProvider) GetCurrentDeployed(ctx context.Context, targetClass string) (models.ChecklistVersion, error) {
	if p.cache == nil {
		return p.checklists.GetCurrentDeployed(ctx, targetClass)
	}
	var version models.ChecklistVersion
	err := p.cache.GetOrLoad(ctx, deployedCacheKey(targetClass), p.ttl, &version, func(ctx context.Context) (any, error) {
		return p.checklists.GetCurrentDeployed(ctx, targetClass)
	})
	return version, err
}

func (p *SnapshotProvider) Invalidate(ctx context.Context, targetClass string) {
	if p.cache != nil {
		_ = p.cache.Delete(ctx, deployedCacheKey(targetClass))
	}
}
