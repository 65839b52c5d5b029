package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mold-inspection-backend/api/internal/models"
	"mold-inspection-backend/api/internal/repos"
	"mold-inspection-backend/shared/dbx"
	"mold-inspection-backend/shared/events"
	"mold-inspection-backend/shared/logx"
)

// Service wires inspection runs to the schedule rows: starting a run from
// the deployed snapshot and folding a completed run back into the schedule.
type Service struct {
	pool        *pgxpool.Pool
	equipment   *repos.EquipmentRepo
	inspections *repos.InspectionsRepo
	schedules   *repos.SchedulesRepo
	alerts      *repos.AlertsRepo
	outbox      *repos.OutboxRepo
	snapshots   *SnapshotProvider
	log         logx.Logger
}

func NewService(pool *pgxpool.Pool, equipment *repos.EquipmentRepo, inspections *repos.InspectionsRepo, schedules *repos.SchedulesRepo, alerts *repos.AlertsRepo, outbox *repos.OutboxRepo, snapshots *SnapshotProvider, log logx.Logger) *Service {
	return &Service{
		pool:        pool,
		equipment:   equipment,
		inspections: inspections,
		schedules:   schedules,
		alerts:      alerts,
		outbox:      outbox,
		snapshots:   snapshots,
		log:         log,
	}
}

// StartInspection materializes a run from the deployed snapshot for the
// equipment's target class. In-flight runs are unaffected by later edits or
// redeploys because they copy the snapshot rows at start time.
func (s *Service) StartInspection(ctx context.Context, equipmentID uuid.UUID, cycleID uuid.UUID, startedBy string) (models.InspectionRun, []models.InspectionRunItem, error) {
	eq, err := s.equipment.GetByID(ctx, equipmentID)
	if err != nil {
		return models.InspectionRun{}, nil, err
	}
	version, err := s.snapshots.GetCurrentDeployed(ctx, eq.TargetClass)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.InspectionRun{}, nil, fmt.Errorf("%w: no deployed checklist for target class %s", models.ErrValidation, eq.TargetClass)
		}
		return models.InspectionRun{}, nil, err
	}
	if version.Snapshot == nil {
		return models.InspectionRun{}, nil, fmt.Errorf("%w: deployed checklist %s has no snapshot", models.ErrInvalidState, version.VersionID)
	}
	return s.inspections.StartRun(ctx, equipmentID, cycleID, startedBy, *version.Snapshot)
}

// CompleteInspection submits an open run and, in the same transaction,
// stamps the schedule's last-done markers, recomputes next-due from the
// deployed cycle parameters, forces the status back to upcoming, and resolves
// every open alert for the pair.
func (s *Service) CompleteInspection(ctx context.Context, runID uuid.UUID, completedBy string, completionUsage *int64, completionDate time.Time) (models.InspectionRun, models.InspectionSchedule, error) {
	run, err := s.inspections.GetRun(ctx, runID)
	if err != nil {
		return models.InspectionRun{}, models.InspectionSchedule{}, err
	}
	if completionDate.IsZero() {
		completionDate = time.Now().UTC()
	}

	cycle, err := s.completionCycle(ctx, run)
	if err != nil {
		return models.InspectionRun{}, models.InspectionSchedule{}, err
	}
	nextDueUsage, nextDueDate := NextDueAfterCompletion(cycle, completionUsage, completionDate)

	var schedule models.InspectionSchedule
	err = dbx.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		run, err = s.inspections.CompleteRun(ctx, tx, runID, completedBy, completionUsage, completionDate)
		if err != nil {
			return err
		}
		schedule, err = s.schedules.RecordCompletion(ctx, tx, run.EquipmentID, run.CycleID, completionUsage, completionDate, nextDueUsage, nextDueDate)
		if err != nil {
			return err
		}
		if _, err := s.alerts.ResolveOpen(ctx, tx, run.EquipmentID, run.CycleID); err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]any{
			"schedule_id":  schedule.ScheduleID,
			"equipment_id": schedule.EquipmentID,
			"cycle_id":     schedule.CycleID,
			"status":       schedule.Status,
			"completed_by": completedBy,
		})
		if err != nil {
			return err
		}
		_, err = s.outbox.Insert(ctx, tx, models.OutboxEvent{
			AggregateType: "inspection_schedule",
			AggregateID:   schedule.ScheduleID,
			Topic:         events.TopicScheduleUpdates,
			Payload:       payload,
		})
		return err
	})
	if err != nil {
		return models.InspectionRun{}, models.InspectionSchedule{}, err
	}

	s.log.Info(ctx, "inspection_completed", "inspection run submitted",
		slog.String("run_id", run.RunID.String()),
		slog.String("equipment_id", run.EquipmentID.String()),
		slog.String("cycle_id", run.CycleID.String()))
	return run, schedule, nil
}

// completionCycle prefers the currently deployed version's parameters and
// falls back to the snapshot the run was started from if the class currently
// has nothing deployed.
func (s *Service) completionCycle(ctx context.Context, run models.InspectionRun) (models.SnapshotCycle, error) {
	eq, err := s.equipment.GetByID(ctx, run.EquipmentID)
	if err != nil {
		return models.SnapshotCycle{}, err
	}
	version, err := s.snapshots.GetCurrentDeployed(ctx, eq.TargetClass)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return models.SnapshotCycle{}, err
	}
	if err == nil && version.Snapshot != nil {
		if cycle, ok := version.Snapshot.CycleByID(run.CycleID); ok {
			return cycle, nil
		}
	}
	fallback, err := s.snapshots.checklists.GetByID(ctx, run.VersionID)
	if err != nil {
		return models.SnapshotCycle{}, err
	}
	if fallback.Snapshot != nil {
		if cycle, ok := fallback.Snapshot.CycleByID(run.CycleID); ok {
			return cycle, nil
		}
	}
	return models.SnapshotCycle{}, fmt.Errorf("%w: cycle %s not present in any deployed snapshot", models.ErrValidation, run.CycleID)
}
