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

type InspectionsRepo struct {
	pool *pgxpool.Pool
}

func NewInspectionsRepo(pool *pgxpool.Pool) *InspectionsRepo {
	return &InspectionsRepo{pool: pool}
}

const runColumns = `run_id, equipment_id, cycle_id, version_id, status, started_by, started_at, completed_by, completed_at, completion_usage`

// StartRun materializes a per-occurrence inspection from a deployed
// snapshot: one row per snapshot item enabled for the cycle. Later edits to
// the checklist never touch these rows.
func (r *InspectionsRepo) StartRun(ctx context.Context, equipmentID uuid.UUID, cycleID uuid.UUID, startedBy string, snapshot models.ChecklistSnapshot) (models.InspectionRun, []models.InspectionRunItem, error) {
	if _, ok := snapshot.CycleByID(cycleID); !ok {
		return models.InspectionRun{}, nil, fmt.Errorf("%w: cycle %s is not part of the deployed checklist", models.ErrValidation, cycleID)
	}
	items := snapshot.ItemsForCycle(cycleID)
	if len(items) == 0 {
		return models.InspectionRun{}, nil, fmt.Errorf("%w: no items enabled for cycle %s", models.ErrValidation, cycleID)
	}

	var run models.InspectionRun
	var runItems []models.InspectionRunItem
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		run, err = scanRun(tx.QueryRow(ctx, `
			INSERT INTO inspection_runs (equipment_id, cycle_id, version_id, status, started_by)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+runColumns+`
		`, equipmentID, cycleID, snapshot.VersionID, models.RunStatusOpen, startedBy))
		if err != nil {
			return err
		}
		for _, item := range items {
			var ri models.InspectionRunItem
			err := tx.QueryRow(ctx, `
				INSERT INTO inspection_run_items (run_id, item_id, category, name, check_method, photo_required)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING run_item_id, run_id, item_id, category, name, check_method, photo_required, result, notes, photo_refs, updated_at
			`, run.RunID, item.ItemID, item.Category, item.Name, item.CheckMethod, item.PhotoRequired).
				Scan(&ri.RunItemID, &ri.RunID, &ri.ItemID, &ri.Category, &ri.Name, &ri.CheckMethod, &ri.PhotoRequired, &ri.Result, &ri.Notes, &ri.PhotoRefs, &ri.UpdatedAt)
			if err != nil {
				return err
			}
			runItems = append(runItems, ri)
		}
		return nil
	})
	if err != nil {
		return models.InspectionRun{}, nil, err
	}
	return run, runItems, nil
}

func (r *InspectionsRepo) GetRun(ctx context.Context, runID uuid.UUID) (models.InspectionRun, error) {
	return scanRun(r.pool.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM inspection_runs
		WHERE run_id = $1
	`, runID))
}

func (r *InspectionsRepo) ListRunItems(ctx context.Context, runID uuid.UUID) ([]models.InspectionRunItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT run_item_id, run_id, item_id, category, name, check_method, photo_required, result, notes, photo_refs, updated_at
		FROM inspection_run_items
		WHERE run_id = $1
		ORDER BY name
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.InspectionRunItem
	for rows.Next() {
		var ri models.InspectionRunItem
		if err := rows.Scan(&ri.RunItemID, &ri.RunID, &ri.ItemID, &ri.Category, &ri.Name, &ri.CheckMethod, &ri.PhotoRequired, &ri.Result, &ri.Notes, &ri.PhotoRefs, &ri.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, ri)
	}
	return items, rows.Err()
}

func (r *InspectionsRepo) UpdateRunItem(ctx context.Context, runItemID uuid.UUID, result *string, notes *string, photoRefs []string) (models.InspectionRunItem, error) {
	var ri models.InspectionRunItem
	err := r.pool.QueryRow(ctx, `
		UPDATE inspection_run_items ri
		SET result = $2, notes = $3, photo_refs = $4, updated_at = now()
		FROM inspection_runs run
		WHERE ri.run_item_id = $1 AND run.run_id = ri.run_id AND run.status = $5
		RETURNING ri.run_item_id, ri.run_id, ri.item_id, ri.category, ri.name, ri.check_method, ri.photo_required, ri.result, ri.notes, ri.photo_refs, ri.updated_at
	`, runItemID, result, notes, photoRefs, models.RunStatusOpen).
		Scan(&ri.RunItemID, &ri.RunID, &ri.ItemID, &ri.Category, &ri.Name, &ri.CheckMethod, &ri.PhotoRequired, &ri.Result, &ri.Notes, &ri.PhotoRefs, &ri.UpdatedAt)
	return ri, err
}

// CompleteRun flips an open run to submitted inside the caller's
// transaction. Zero rows means the run is missing or already submitted.
func (r *InspectionsRepo) CompleteRun(ctx context.Context, tx pgx.Tx, runID uuid.UUID, completedBy string, completionUsage *int64, completedAt time.Time) (models.InspectionRun, error) {
	run, err := scanRun(tx.QueryRow(ctx, `
		UPDATE inspection_runs
		SET status = $2, completed_by = $3, completed_at = $4, completion_usage = $5
		WHERE run_id = $1 AND status = $6
		RETURNING `+runColumns+`
	`, runID, models.RunStatusSubmitted, completedBy, completedAt, completionUsage, models.RunStatusOpen))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.InspectionRun{}, fmt.Errorf("%w: run is not open", models.ErrInvalidState)
		}
		return models.InspectionRun{}, err
	}
	return run, nil
}

func scanRun(row pgx.Row) (models.InspectionRun, error) {
	var run models.InspectionRun
	err := row.Scan(
		&run.RunID, &run.EquipmentID, &run.CycleID, &run.VersionID, &run.Status,
		&run.StartedBy, &run.StartedAt, &run.CompletedBy, &run.CompletedAt, &run.CompletionUsage,
	)
	return run, err
}
