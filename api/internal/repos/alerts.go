package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mold-inspection-backend/api/internal/models"
)

type AlertsRepo struct {
	pool *pgxpool.Pool
}

func NewAlertsRepo(pool *pgxpool.Pool) *AlertsRepo {
	return &AlertsRepo{pool: pool}
}

const alertColumns = `alert_id, alert_type, severity, equipment_id, cycle_id, schedule_id, cooldown_key, cooldown_bucket, message, resolved, resolved_at, created_at`

// InsertDeduped creates an alert unless one with the same cooldown key
// already exists in the same cooldown bucket. The unique constraint decides
// the race; the loser gets (zero-value, false, nil) and is a successful no-op.
func (r *AlertsRepo) InsertDeduped(ctx context.Context, db DBTX, alert models.AlertRecord) (models.AlertRecord, bool, error) {
	created, err := scanAlert(db.QueryRow(ctx, `
		INSERT INTO alert_records (alert_type, severity, equipment_id, cycle_id, schedule_id, cooldown_key, cooldown_bucket, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cooldown_key, cooldown_bucket) DO NOTHING
		RETURNING `+alertColumns+`
	`, alert.AlertType, alert.Severity, alert.EquipmentID, alert.CycleID, alert.ScheduleID,
		alert.CooldownKey, alert.CooldownBucket, alert.Message))
	if err == nil {
		return created, true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AlertRecord{}, false, nil
	}
	return models.AlertRecord{}, false, err
}

// ResolveOpen marks every unresolved alert for an (equipment, cycle) pair
// resolved and reports how many rows it touched.
func (r *AlertsRepo) ResolveOpen(ctx context.Context, db DBTX, equipmentID uuid.UUID, cycleID uuid.UUID) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE alert_records
		SET resolved = TRUE, resolved_at = now()
		WHERE equipment_id = $1 AND cycle_id = $2 AND NOT resolved
	`, equipmentID, cycleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *AlertsRepo) ResolveByID(ctx context.Context, alertID uuid.UUID) (models.AlertRecord, error) {
	return scanAlert(r.pool.QueryRow(ctx, `
		UPDATE alert_records
		SET resolved = TRUE, resolved_at = now()
		WHERE alert_id = $1 AND NOT resolved
		RETURNING `+alertColumns+`
	`, alertID))
}

func (r *AlertsRepo) GetByID(ctx context.Context, alertID uuid.UUID) (models.AlertRecord, error) {
	return scanAlert(r.pool.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM alert_records
		WHERE alert_id = $1
	`, alertID))
}

func (r *AlertsRepo) List(ctx context.Context, equipmentID *uuid.UUID, severity string, resolved *bool, limit int, offset int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM alert_records
		WHERE ($1::uuid IS NULL OR equipment_id = $1)
		  AND ($2 = '' OR severity = $2)
		  AND ($3::boolean IS NULL OR resolved = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, equipmentID, severity, resolved, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func scanAlert(row pgx.Row) (models.AlertRecord, error) {
	var a models.AlertRecord
	err := row.Scan(
		&a.AlertID, &a.AlertType, &a.Severity, &a.EquipmentID, &a.CycleID, &a.ScheduleID,
		&a.CooldownKey, &a.CooldownBucket, &a.Message, &a.Resolved, &a.ResolvedAt, &a.CreatedAt,
	)
	return a, err
}
