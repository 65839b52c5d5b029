package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"mold-inspection-backend/api/internal/models"
)

// EquipmentRepo holds the local projection of the external equipment
// registry, kept fresh by the usage consumer.
type EquipmentRepo struct {
	pool *pgxpool.Pool
}

func NewEquipmentRepo(pool *pgxpool.Pool) *EquipmentRepo {
	return &EquipmentRepo{pool: pool}
}

const equipmentColumns = `equipment_id, code, name, target_class, active, usage_count, usage_updated_at, created_at`

// UpsertUsage records a usage counter reading. Counters are monotonically
// non-decreasing, so a lower reading (out-of-order delivery) is ignored.
func (r *EquipmentRepo) UpsertUsage(ctx context.Context, equipmentID uuid.UUID, code string, name string, targetClass string, usageCount int64, reportedAt time.Time) (models.Equipment, error) {
	if reportedAt.IsZero() {
		reportedAt = time.Now().UTC()
	}
	var eq models.Equipment
	err := r.pool.QueryRow(ctx, `
		INSERT INTO equipment (equipment_id, code, name, target_class, active, usage_count, usage_updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		ON CONFLICT (equipment_id) DO UPDATE
		SET usage_count = GREATEST(equipment.usage_count, EXCLUDED.usage_count),
			usage_updated_at = CASE
				WHEN EXCLUDED.usage_count > equipment.usage_count THEN EXCLUDED.usage_updated_at
				ELSE equipment.usage_updated_at
			END
		RETURNING `+equipmentColumns+`
	`, equipmentID, code, name, targetClass, usageCount, reportedAt).
		Scan(&eq.EquipmentID, &eq.Code, &eq.Name, &eq.TargetClass, &eq.Active, &eq.UsageCount, &eq.UsageUpdatedAt, &eq.CreatedAt)
	return eq, err
}

func (r *EquipmentRepo) GetByID(ctx context.Context, equipmentID uuid.UUID) (models.Equipment, error) {
	var eq models.Equipment
	err := r.pool.QueryRow(ctx, `
		SELECT `+equipmentColumns+`
		FROM equipment
		WHERE equipment_id = $1
	`, equipmentID).
		Scan(&eq.EquipmentID, &eq.Code, &eq.Name, &eq.TargetClass, &eq.Active, &eq.UsageCount, &eq.UsageUpdatedAt, &eq.CreatedAt)
	return eq, err
}

func (r *EquipmentRepo) ListActive(ctx context.Context, targetClass string) ([]models.Equipment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+equipmentColumns+`
		FROM equipment
		WHERE active AND ($1 = '' OR target_class = $1)
		ORDER BY code
	`, targetClass)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fleet []models.Equipment
	for rows.Next() {
		var eq models.Equipment
		if err := rows.Scan(&eq.EquipmentID, &eq.Code, &eq.Name, &eq.TargetClass, &eq.Active, &eq.UsageCount, &eq.UsageUpdatedAt, &eq.CreatedAt); err != nil {
			return nil, err
		}
		fleet = append(fleet, eq)
	}
	return fleet, rows.Err()
}

func (r *EquipmentRepo) SetActive(ctx context.Context, equipmentID uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE equipment
		SET active = $2
		WHERE equipment_id = $1
	`, equipmentID, active)
	return err
}
