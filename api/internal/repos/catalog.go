package repos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"mold-inspection-backend/api/internal/models"
)

// CatalogRepo owns the static reference data: inspection items and cycle
// definitions.
type CatalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

func (r *CatalogRepo) CreateItem(ctx context.Context, item models.InspectionItem) (models.InspectionItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return models.InspectionItem{}, fmt.Errorf("%w: item name is required", models.ErrValidation)
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO inspection_items (category, name, description, check_method, photo_required)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING item_id, category, name, description, check_method, photo_required, created_at
	`, item.Category, item.Name, item.Description, item.CheckMethod, item.PhotoRequired).
		Scan(&item.ItemID, &item.Category, &item.Name, &item.Description, &item.CheckMethod, &item.PhotoRequired, &item.CreatedAt)
	return item, err
}

func (r *CatalogRepo) GetItem(ctx context.Context, itemID uuid.UUID) (models.InspectionItem, error) {
	var item models.InspectionItem
	err := r.pool.QueryRow(ctx, `
		SELECT item_id, category, name, description, check_method, photo_required, created_at
		FROM inspection_items
		WHERE item_id = $1
	`, itemID).
		Scan(&item.ItemID, &item.Category, &item.Name, &item.Description, &item.CheckMethod, &item.PhotoRequired, &item.CreatedAt)
	return item, err
}

func (r *CatalogRepo) ListItems(ctx context.Context) ([]models.InspectionItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT item_id, category, name, description, check_method, photo_required, created_at
		FROM inspection_items
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.InspectionItem
	for rows.Next() {
		var item models.InspectionItem
		if err := rows.Scan(&item.ItemID, &item.Category, &item.Name, &item.Description, &item.CheckMethod, &item.PhotoRequired, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *CatalogRepo) CreateCycle(ctx context.Context, cycle models.CycleDefinition) (models.CycleDefinition, error) {
	switch cycle.CycleType {
	case models.CycleTypeUsage:
		if cycle.UsageInterval == nil || *cycle.UsageInterval <= 0 {
			return models.CycleDefinition{}, fmt.Errorf("%w: usage cycle requires a positive usage_interval", models.ErrValidation)
		}
	case models.CycleTypeCalendar:
		if cycle.CalendarIntervalDays == nil || *cycle.CalendarIntervalDays <= 0 {
			return models.CycleDefinition{}, fmt.Errorf("%w: calendar cycle requires positive calendar_interval_days", models.ErrValidation)
		}
	default:
		return models.CycleDefinition{}, fmt.Errorf("%w: unknown cycle_type %q", models.ErrValidation, cycle.CycleType)
	}
	if strings.TrimSpace(cycle.Code) == "" {
		return models.CycleDefinition{}, fmt.Errorf("%w: cycle code is required", models.ErrValidation)
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO cycle_definitions (code, label, cycle_type, usage_interval, calendar_interval_days)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING cycle_id, code, label, cycle_type, usage_interval, calendar_interval_days, created_at
	`, cycle.Code, cycle.Label, cycle.CycleType, cycle.UsageInterval, cycle.CalendarIntervalDays).
		Scan(&cycle.CycleID, &cycle.Code, &cycle.Label, &cycle.CycleType, &cycle.UsageInterval, &cycle.CalendarIntervalDays, &cycle.CreatedAt)
	return cycle, err
}

func (r *CatalogRepo) GetCycle(ctx context.Context, cycleID uuid.UUID) (models.CycleDefinition, error) {
	var cycle models.CycleDefinition
	err := r.pool.QueryRow(ctx, `
		SELECT cycle_id, code, label, cycle_type, usage_interval, calendar_interval_days, created_at
		FROM cycle_definitions
		WHERE cycle_id = $1
	`, cycleID).
		Scan(&cycle.CycleID, &cycle.Code, &cycle.Label, &cycle.CycleType, &cycle.UsageInterval, &cycle.CalendarIntervalDays, &cycle.CreatedAt)
	return cycle, err
}

func (r *CatalogRepo) ListCycles(ctx context.Context) ([]models.CycleDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cycle_id, code, label, cycle_type, usage_interval, calendar_interval_days, created_at
		FROM cycle_definitions
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []models.CycleDefinition
	for rows.Next() {
		var cycle models.CycleDefinition
		if err := rows.Scan(&cycle.CycleID, &cycle.Code, &cycle.Label, &cycle.CycleType, &cycle.UsageInterval, &cycle.CalendarIntervalDays, &cycle.CreatedAt); err != nil {
			return nil, err
		}
		cycles = append(cycles, cycle)
	}
	return cycles, rows.Err()
}
