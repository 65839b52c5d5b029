package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mold-inspection-backend/api/internal/models"
)

type SchedulesRepo struct {
	pool *pgxpool.Pool
}

func NewSchedulesRepo(pool *pgxpool.Pool) *SchedulesRepo {
	return &SchedulesRepo{pool: pool}
}

const scheduleColumns = `schedule_id, equipment_id, cycle_id, version_id, last_done_usage, last_done_at, next_due_usage, next_due_date, status, overdue_magnitude, row_version, created_at, updated_at`

// GetOrCreate returns the schedule row for an (equipment, cycle) pair,
// lazily creating it in upcoming state on first sight. The ON CONFLICT
// no-op keeps concurrent sweeps from racing on the insert.
func (r *SchedulesRepo) GetOrCreate(ctx context.Context, equipmentID uuid.UUID, cycleID uuid.UUID, versionID uuid.UUID) (models.InspectionSchedule, error) {
	schedule, err := scanSchedule(r.pool.QueryRow(ctx, `
		INSERT INTO inspection_schedules (equipment_id, cycle_id, version_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (equipment_id, cycle_id) DO NOTHING
		RETURNING `+scheduleColumns+`
	`, equipmentID, cycleID, versionID, models.ScheduleStatusUpcoming))
	if err == nil {
		return schedule, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.InspectionSchedule{}, err
	}
	return scanSchedule(r.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM inspection_schedules
		WHERE equipment_id = $1 AND cycle_id = $2
	`, equipmentID, cycleID))
}

func (r *SchedulesRepo) Get(ctx context.Context, equipmentID uuid.UUID, cycleID uuid.UUID) (models.InspectionSchedule, error) {
	return scanSchedule(r.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM inspection_schedules
		WHERE equipment_id = $1 AND cycle_id = $2
	`, equipmentID, cycleID))
}

func (r *SchedulesRepo) List(ctx context.Context, equipmentID *uuid.UUID, status string, limit int, offset int) ([]models.InspectionSchedule, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM inspection_schedules
		WHERE ($1::uuid IS NULL OR equipment_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4
	`, equipmentID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []models.InspectionSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

// UpdateDerived persists a recomputed status for a schedule row, guarded by
// row_version so a completion landing between read and write wins: the stale
// write affects zero rows and surfaces as ErrStateConflict.
func (r *SchedulesRepo) UpdateDerived(ctx context.Context, schedule models.InspectionSchedule) (models.InspectionSchedule, error) {
	updated, err := scanSchedule(r.pool.QueryRow(ctx, `
		UPDATE inspection_schedules
		SET version_id = $3, next_due_usage = $4, next_due_date = $5,
			status = $6, overdue_magnitude = $7,
			row_version = row_version + 1, updated_at = now()
		WHERE schedule_id = $1 AND row_version = $2
		RETURNING `+scheduleColumns+`
	`, schedule.ScheduleID, schedule.RowVersion, schedule.VersionID,
		schedule.NextDueUsage, schedule.NextDueDate, schedule.Status, schedule.OverdueMagnitude))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.InspectionSchedule{}, fmt.Errorf("%w: schedule %s changed concurrently", models.ErrStateConflict, schedule.ScheduleID)
		}
		return models.InspectionSchedule{}, err
	}
	return updated, nil
}

// RecordCompletion stamps last_done_* and forces the schedule back to
// upcoming. This is the only write allowed to move status backward, so it
// takes the row lock rather than the optimistic path.
func (r *SchedulesRepo) RecordCompletion(ctx context.Context, tx pgx.Tx, equipmentID uuid.UUID, cycleID uuid.UUID, completionUsage *int64, completionDate time.Time, nextDueUsage *int64, nextDueDate *time.Time) (models.InspectionSchedule, error) {
	return scanSchedule(tx.QueryRow(ctx, `
		UPDATE inspection_schedules
		SET last_done_usage = COALESCE($3, last_done_usage),
			last_done_at = $4,
			next_due_usage = $5, next_due_date = $6,
			status = $7, overdue_magnitude = 0,
			row_version = row_version + 1, updated_at = now()
		WHERE equipment_id = $1 AND cycle_id = $2
		RETURNING `+scheduleColumns+`
	`, equipmentID, cycleID, completionUsage, completionDate, nextDueUsage, nextDueDate, models.ScheduleStatusUpcoming))
}

func (r *SchedulesRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM inspection_schedules
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanSchedule(row pgx.Row) (models.InspectionSchedule, error) {
	var s models.InspectionSchedule
	err := row.Scan(
		&s.ScheduleID, &s.EquipmentID, &s.CycleID, &s.VersionID,
		&s.LastDoneUsage, &s.LastDoneAt, &s.NextDueUsage, &s.NextDueDate,
		&s.Status, &s.OverdueMagnitude, &s.RowVersion, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}
