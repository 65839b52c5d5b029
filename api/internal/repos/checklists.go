package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mold-inspection-backend/api/internal/models"
	"mold-inspection-backend/shared/lifecycle"
)

type ChecklistsRepo struct {
	pool *pgxpool.Pool
}

func NewChecklistsRepo(pool *pgxpool.Pool) *ChecklistsRepo {
	return &ChecklistsRepo{pool: pool}
}

type ChecklistItemMapping struct {
	ItemID   uuid.UUID
	Position int
	CycleIDs []uuid.UUID
}

type CreateChecklistInput struct {
	Name        string
	Description string
	TargetClass string
	CreatedBy   string
	Items       []ChecklistItemMapping
}

type UpdateChecklistInput struct {
	Name        *string
	Description *string
	Items       []ChecklistItemMapping
}

const checklistColumns = `version_id, name, description, target_class, status, version, is_current_deployed, snapshot, created_by, approved_by, approved_at, deployed_by, deployed_at, created_at, updated_at`

func (r *ChecklistsRepo) Create(ctx context.Context, in CreateChecklistInput) (models.ChecklistVersion, error) {
	if strings.TrimSpace(in.Name) == "" {
		return models.ChecklistVersion{}, fmt.Errorf("%w: name is required", models.ErrValidation)
	}
	if strings.TrimSpace(in.TargetClass) == "" {
		return models.ChecklistVersion{}, fmt.Errorf("%w: target_class is required", models.ErrValidation)
	}
	if len(in.Items) == 0 {
		return models.ChecklistVersion{}, fmt.Errorf("%w: at least one item is required", models.ErrValidation)
	}

	var version models.ChecklistVersion
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var nextVersion int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(version), 0) + 1
			FROM checklist_versions
			WHERE target_class = $1
		`, in.TargetClass).Scan(&nextVersion); err != nil {
			return err
		}

		var err error
		version, err = scanChecklist(tx.QueryRow(ctx, `
			INSERT INTO checklist_versions (name, description, target_class, status, version, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+checklistColumns+`
		`, in.Name, in.Description, in.TargetClass, lifecycle.StatusDraft, nextVersion, in.CreatedBy))
		if err != nil {
			return err
		}
		return replaceMappings(ctx, tx, version.VersionID, in.Items)
	})
	if err != nil {
		return models.ChecklistVersion{}, err
	}
	return version, nil
}

func (r *ChecklistsRepo) Update(ctx context.Context, versionID uuid.UUID, in UpdateChecklistInput) (models.ChecklistVersion, error) {
	var version models.ChecklistVersion
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		version, err = lockChecklist(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if !lifecycle.Editable(version.Status) {
			return fmt.Errorf("%w: checklist is %s, only drafts are editable", models.ErrInvalidState, version.Status)
		}

		name := version.Name
		if in.Name != nil {
			name = strings.TrimSpace(*in.Name)
			if name == "" {
				return fmt.Errorf("%w: name must not be empty", models.ErrValidation)
			}
		}
		description := version.Description
		if in.Description != nil {
			description = *in.Description
		}

		version, err = scanChecklist(tx.QueryRow(ctx, `
			UPDATE checklist_versions
			SET name = $2, description = $3, updated_at = now()
			WHERE version_id = $1
			RETURNING `+checklistColumns+`
		`, versionID, name, description))
		if err != nil {
			return err
		}
		if in.Items != nil {
			if len(in.Items) == 0 {
				return fmt.Errorf("%w: at least one item is required", models.ErrValidation)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM checklist_version_items WHERE version_id = $1`, versionID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `DELETE FROM checklist_version_cycles WHERE version_id = $1`, versionID); err != nil {
				return err
			}
			return replaceMappings(ctx, tx, versionID, in.Items)
		}
		return nil
	})
	if err != nil {
		return models.ChecklistVersion{}, err
	}
	return version, nil
}

func (r *ChecklistsRepo) SubmitForReview(ctx context.Context, versionID uuid.UUID) (models.ChecklistVersion, error) {
	return r.transition(ctx, versionID, lifecycle.StatusReview, nil, nil)
}

func (r *ChecklistsRepo) Approve(ctx context.Context, versionID uuid.UUID, approver string) (models.ChecklistVersion, error) {
	return r.transition(ctx, versionID, lifecycle.StatusApproved, &approver, nil)
}

func (r *ChecklistsRepo) transition(ctx context.Context, versionID uuid.UUID, toStatus string, approver *string, deployer *string) (models.ChecklistVersion, error) {
	var version models.ChecklistVersion
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		version, err = lockChecklist(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if !lifecycle.CanTransition(version.Status, toStatus) {
			return fmt.Errorf("%w: cannot move checklist from %s to %s", models.ErrInvalidState, version.Status, toStatus)
		}
		version, err = scanChecklist(tx.QueryRow(ctx, `
			UPDATE checklist_versions
			SET status = $2,
				approved_by = COALESCE($3, approved_by),
				approved_at = CASE WHEN $3::text IS NOT NULL THEN now() ELSE approved_at END,
				deployed_by = COALESCE($4, deployed_by),
				deployed_at = CASE WHEN $4::text IS NOT NULL THEN now() ELSE deployed_at END,
				updated_at = now()
			WHERE version_id = $1
			RETURNING `+checklistColumns+`
		`, versionID, toStatus, approver, deployer))
		return err
	})
	if err != nil {
		return models.ChecklistVersion{}, err
	}
	return version, nil
}

// Deploy atomically demotes the previously deployed version of the same
// target class, freezes the snapshot from the live maps, and promotes this
// version. A concurrent deploy that already moved the row out of approved
// surfaces as ErrStateConflict.
func (r *ChecklistsRepo) Deploy(ctx context.Context, versionID uuid.UUID, deployer string, outbox *OutboxRepo) (models.ChecklistVersion, error) {
	var version models.ChecklistVersion
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		version, err = lockChecklist(ctx, tx, versionID)
		if err != nil {
			return err
		}
		switch version.Status {
		case lifecycle.StatusApproved:
		case lifecycle.StatusDeployed:
			return fmt.Errorf("%w: checklist was deployed concurrently", models.ErrStateConflict)
		default:
			return fmt.Errorf("%w: cannot deploy checklist in %s", models.ErrInvalidState, version.Status)
		}

		snapshot, err := buildSnapshot(ctx, tx, version)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE checklist_versions
			SET is_current_deployed = FALSE, updated_at = now()
			WHERE target_class = $1 AND is_current_deployed AND version_id <> $2
		`, version.TargetClass, versionID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE checklist_versions
			SET status = $2, is_current_deployed = TRUE, snapshot = $3,
				deployed_by = $4, deployed_at = now(), updated_at = now()
			WHERE version_id = $1 AND status = $5
		`, versionID, lifecycle.StatusDeployed, raw, deployer, lifecycle.StatusApproved)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: checklist left approved state during deploy", models.ErrStateConflict)
		}

		version, err = getChecklist(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if outbox != nil {
			payload, err := json.Marshal(map[string]any{
				"version_id":   version.VersionID,
				"target_class": version.TargetClass,
				"version":      version.Version,
				"deployed_by":  deployer,
			})
			if err != nil {
				return err
			}
			_, err = outbox.Insert(ctx, tx, models.OutboxEvent{
				AggregateType: "checklist_version",
				AggregateID:   version.VersionID,
				Topic:         "checklist.events",
				Payload:       payload,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.ChecklistVersion{}, err
	}
	return version, nil
}

// Clone copies a version into a fresh draft. The copy gets its own mapping
// rows so later edits to either side cannot leak into the other.
func (r *ChecklistsRepo) Clone(ctx context.Context, versionID uuid.UUID, createdBy string) (models.ChecklistVersion, error) {
	var clone models.ChecklistVersion
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		src, err := getChecklist(ctx, tx, versionID)
		if err != nil {
			return err
		}
		var nextVersion int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(version), 0) + 1
			FROM checklist_versions
			WHERE target_class = $1
		`, src.TargetClass).Scan(&nextVersion); err != nil {
			return err
		}
		clone, err = scanChecklist(tx.QueryRow(ctx, `
			INSERT INTO checklist_versions (name, description, target_class, status, version, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+checklistColumns+`
		`, src.Name+" (copy)", src.Description, src.TargetClass, lifecycle.StatusDraft, nextVersion, createdBy))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO checklist_version_items (version_id, item_id, position)
			SELECT $2, item_id, position
			FROM checklist_version_items
			WHERE version_id = $1
		`, versionID, clone.VersionID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO checklist_version_cycles (version_id, item_id, cycle_id)
			SELECT $2, item_id, cycle_id
			FROM checklist_version_cycles
			WHERE version_id = $1
		`, versionID, clone.VersionID)
		return err
	})
	if err != nil {
		return models.ChecklistVersion{}, err
	}
	return clone, nil
}

func (r *ChecklistsRepo) GetByID(ctx context.Context, versionID uuid.UUID) (models.ChecklistVersion, error) {
	return getChecklist(ctx, r.pool, versionID)
}

func (r *ChecklistsRepo) List(ctx context.Context, targetClass string, status string, limit int, offset int) ([]models.ChecklistVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+checklistColumns+`
		FROM checklist_versions
		WHERE ($1 = '' OR target_class = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY target_class, version DESC
		LIMIT $3 OFFSET $4
	`, targetClass, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []models.ChecklistVersion
	for rows.Next() {
		version, err := scanChecklist(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// GetCurrentDeployed returns the single deployed version for a target class,
// snapshot included. Schedule derivation reads this, never the live maps.
func (r *ChecklistsRepo) GetCurrentDeployed(ctx context.Context, targetClass string) (models.ChecklistVersion, error) {
	return scanChecklist(r.pool.QueryRow(ctx, `
		SELECT `+checklistColumns+`
		FROM checklist_versions
		WHERE target_class = $1 AND is_current_deployed
	`, targetClass))
}

func (r *ChecklistsRepo) ListMappings(ctx context.Context, versionID uuid.UUID) ([]models.ChecklistVersionItem, []models.ChecklistVersionCycle, error) {
	itemRows, err := r.pool.Query(ctx, `
		SELECT version_id, item_id, position
		FROM checklist_version_items
		WHERE version_id = $1
		ORDER BY position
	`, versionID)
	if err != nil {
		return nil, nil, err
	}
	defer itemRows.Close()

	var items []models.ChecklistVersionItem
	for itemRows.Next() {
		var m models.ChecklistVersionItem
		if err := itemRows.Scan(&m.VersionID, &m.ItemID, &m.Position); err != nil {
			return nil, nil, err
		}
		items = append(items, m)
	}
	if err := itemRows.Err(); err != nil {
		return nil, nil, err
	}

	cycleRows, err := r.pool.Query(ctx, `
		SELECT version_id, item_id, cycle_id
		FROM checklist_version_cycles
		WHERE version_id = $1
	`, versionID)
	if err != nil {
		return nil, nil, err
	}
	defer cycleRows.Close()

	var cycles []models.ChecklistVersionCycle
	for cycleRows.Next() {
		var m models.ChecklistVersionCycle
		if err := cycleRows.Scan(&m.VersionID, &m.ItemID, &m.CycleID); err != nil {
			return nil, nil, err
		}
		cycles = append(cycles, m)
	}
	return items, cycles, cycleRows.Err()
}

func lockChecklist(ctx context.Context, tx pgx.Tx, versionID uuid.UUID) (models.ChecklistVersion, error) {
	return scanChecklist(tx.QueryRow(ctx, `
		SELECT `+checklistColumns+`
		FROM checklist_versions
		WHERE version_id = $1
		FOR UPDATE
	`, versionID))
}

func getChecklist(ctx context.Context, db DBTX, versionID uuid.UUID) (models.ChecklistVersion, error) {
	return scanChecklist(db.QueryRow(ctx, `
		SELECT `+checklistColumns+`
		FROM checklist_versions
		WHERE version_id = $1
	`, versionID))
}

func scanChecklist(row pgx.Row) (models.ChecklistVersion, error) {
	var version models.ChecklistVersion
	var raw []byte
	err := row.Scan(
		&version.VersionID, &version.Name, &version.Description, &version.TargetClass,
		&version.Status, &version.Version, &version.IsCurrentDeployed, &raw,
		&version.CreatedBy, &version.ApprovedBy, &version.ApprovedAt,
		&version.DeployedBy, &version.DeployedAt, &version.CreatedAt, &version.UpdatedAt,
	)
	if err != nil {
		return models.ChecklistVersion{}, err
	}
	if len(raw) > 0 {
		var snapshot models.ChecklistSnapshot
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			return models.ChecklistVersion{}, err
		}
		version.Snapshot = &snapshot
	}
	return version, nil
}

func replaceMappings(ctx context.Context, tx pgx.Tx, versionID uuid.UUID, mappings []ChecklistItemMapping) error {
	for i, m := range mappings {
		if len(m.CycleIDs) == 0 {
			return fmt.Errorf("%w: item %s has no cycles enabled", models.ErrValidation, m.ItemID)
		}
		position := m.Position
		if position == 0 {
			position = i + 1
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inspection_items WHERE item_id = $1)`, m.ItemID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: unknown item %s", models.ErrValidation, m.ItemID)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO checklist_version_items (version_id, item_id, position)
			VALUES ($1, $2, $3)
		`, versionID, m.ItemID, position); err != nil {
			return err
		}
		for _, cycleID := range m.CycleIDs {
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cycle_definitions WHERE cycle_id = $1)`, cycleID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: unknown cycle %s", models.ErrValidation, cycleID)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO checklist_version_cycles (version_id, item_id, cycle_id)
				VALUES ($1, $2, $3)
			`, versionID, m.ItemID, cycleID); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildSnapshot(ctx context.Context, tx pgx.Tx, version models.ChecklistVersion) (models.ChecklistSnapshot, error) {
	snapshot := models.ChecklistSnapshot{
		VersionID:   version.VersionID,
		Name:        version.Name,
		TargetClass: version.TargetClass,
		Version:     version.Version,
		TakenAt:     time.Now().UTC(),
	}

	rows, err := tx.Query(ctx, `
		SELECT i.item_id, i.category, i.name, i.description, i.check_method, i.photo_required
		FROM checklist_version_items vi
		JOIN inspection_items i ON i.item_id = vi.item_id
		WHERE vi.version_id = $1
		ORDER BY vi.position
	`, version.VersionID)
	if err != nil {
		return models.ChecklistSnapshot{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.SnapshotItem
		if err := rows.Scan(&item.ItemID, &item.Category, &item.Name, &item.Description, &item.CheckMethod, &item.PhotoRequired); err != nil {
			return models.ChecklistSnapshot{}, err
		}
		snapshot.Items = append(snapshot.Items, item)
	}
	if err := rows.Err(); err != nil {
		return models.ChecklistSnapshot{}, err
	}
	if len(snapshot.Items) == 0 {
		return models.ChecklistSnapshot{}, fmt.Errorf("%w: cannot deploy a checklist with no items", models.ErrValidation)
	}

	cycleRows, err := tx.Query(ctx, `
		SELECT vc.item_id, c.cycle_id, c.code, c.label, c.cycle_type, c.usage_interval, c.calendar_interval_days
		FROM checklist_version_cycles vc
		JOIN cycle_definitions c ON c.cycle_id = vc.cycle_id
		WHERE vc.version_id = $1
	`, version.VersionID)
	if err != nil {
		return models.ChecklistSnapshot{}, err
	}
	defer cycleRows.Close()

	seen := map[uuid.UUID]bool{}
	byItem := map[uuid.UUID][]uuid.UUID{}
	for cycleRows.Next() {
		var itemID uuid.UUID
		var cycle models.SnapshotCycle
		if err := cycleRows.Scan(&itemID, &cycle.CycleID, &cycle.Code, &cycle.Label, &cycle.CycleType, &cycle.UsageInterval, &cycle.CalendarIntervalDays); err != nil {
			return models.ChecklistSnapshot{}, err
		}
		byItem[itemID] = append(byItem[itemID], cycle.CycleID)
		if !seen[cycle.CycleID] {
			seen[cycle.CycleID] = true
			snapshot.Cycles = append(snapshot.Cycles, cycle)
		}
	}
	if err := cycleRows.Err(); err != nil {
		return models.ChecklistSnapshot{}, err
	}
	for i := range snapshot.Items {
		snapshot.Items[i].CycleIDs = byItem[snapshot.Items[i].ItemID]
	}
	return snapshot, nil
}
