package scheduling

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mold-inspection-backend/api/internal/models"
	"mold-inspection-backend/shared/logx"
	"mold-inspection-backend/shared/metricsx"
)

// EquipmentSource lists the fleet the sweep iterates.
type EquipmentSource interface {
	ListActive(ctx context.Context, targetClass string) ([]models.Equipment, error)
	GetByID(ctx context.Context, equipmentID uuid.UUID) (models.Equipment, error)
}

// DeployedSource resolves the checklist version in force for a target class.
type DeployedSource interface {
	GetCurrentDeployed(ctx context.Context, targetClass string) (models.ChecklistVersion, error)
}

// ScheduleStore persists derived schedule state.
type ScheduleStore interface {
	GetOrCreate(ctx context.Context, equipmentID uuid.UUID, cycleID uuid.UUID, versionID uuid.UUID) (models.InspectionSchedule, error)
	UpdateDerived(ctx context.Context, schedule models.InspectionSchedule) (models.InspectionSchedule, error)
}

// UsageRefresher pulls a fresh usage counter from the equipment registry.
type UsageRefresher interface {
	GetCurrentUsage(ctx context.Context, equipmentID uuid.UUID) (int64, error)
}

// StatusSink receives the evaluated status time series. Writes are
// best-effort; a failed point never fails the sweep.
type StatusSink interface {
	WriteScheduleStatus(ctx context.Context, equipmentID string, cycleCode string, status string, magnitude float64, ts time.Time) error
}

// Recalculator re-derives schedule state across the fleet and feeds the
// dispatcher on transitions. Pairs are processed independently: one bad pair
// is logged and skipped, never aborting the sweep.
type Recalculator struct {
	equipment  EquipmentSource
	deployed   DeployedSource
	schedules  ScheduleStore
	dispatcher *Dispatcher
	rules      RuleSource
	registry   UsageRefresher
	sink       StatusSink
	log        logx.Logger
	now        func() time.Time
}

func NewRecalculator(equipment EquipmentSource, deployed DeployedSource, schedules ScheduleStore, dispatcher *Dispatcher, rules RuleSource, registry UsageRefresher, sink StatusSink, log logx.Logger) *Recalculator {
	return &Recalculator{
		equipment:  equipment,
		deployed:   deployed,
		schedules:  schedules,
		dispatcher: dispatcher,
		rules:      rules,
		registry:   registry,
		sink:       sink,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SweepAll recalculates every active (equipment, cycle) pair. Running it
// twice back-to-back changes nothing the second time: statuses are already
// current, so no persists and no dispatch calls happen.
func (r *Recalculator) SweepAll(ctx context.Context) error {
	start := r.now()
	fleet, err := r.equipment.ListActive(ctx, "")
	if err != nil {
		return err
	}
	thresholds, err := r.rules.Thresholds(ctx)
	if err != nil {
		return err
	}

	deployedByClass := map[string]*models.ChecklistVersion{}
	evaluated := 0
	for _, eq := range fleet {
		version, ok := deployedByClass[eq.TargetClass]
		if !ok {
			version = r.lookupDeployed(ctx, eq.TargetClass)
			deployedByClass[eq.TargetClass] = version
		}
		if version == nil || version.Snapshot == nil {
			continue
		}
		evaluated += r.sweepEquipment(ctx, eq, *version.Snapshot, thresholds)
	}

	metricsx.IncSchedulesEvaluated(evaluated)
	metricsx.ObserveRecalcSweep(r.now().Sub(start))
	r.log.Info(ctx, "recalc_sweep_done", "recalculation sweep finished",
		slog.Int("equipment", len(fleet)),
		slog.Int("pairs_evaluated", evaluated),
		slog.Int64("duration_ms", r.now().Sub(start).Milliseconds()))
	return nil
}

// SweepOne recalculates a single piece of equipment, used by the targeted
// recalc enqueued on usage ingest and the manual endpoint.
func (r *Recalculator) SweepOne(ctx context.Context, equipmentID uuid.UUID) error {
	eq, err := r.equipment.GetByID(ctx, equipmentID)
	if err != nil {
		return err
	}
	if !eq.Active {
		return nil
	}
	thresholds, err := r.rules.Thresholds(ctx)
	if err != nil {
		return err
	}
	version := r.lookupDeployed(ctx, eq.TargetClass)
	if version == nil || version.Snapshot == nil {
		return nil
	}
	evaluated := r.sweepEquipment(ctx, eq, *version.Snapshot, thresholds)
	metricsx.IncSchedulesEvaluated(evaluated)
	return nil
}

func (r *Recalculator) lookupDeployed(ctx context.Context, targetClass string) *models.ChecklistVersion {
	version, err := r.deployed.GetCurrentDeployed(ctx, targetClass)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.log.Warn(ctx, "deployed_lookup_failed", "could not resolve deployed checklist",
				slog.String("target_class", targetClass), slog.Any("error", err))
		}
		return nil
	}
	return &version
}

func (r *Recalculator) sweepEquipment(ctx context.Context, eq models.Equipment, snapshot models.ChecklistSnapshot, thresholds Thresholds) int {
	if r.registry != nil {
		if usage, err := r.registry.GetCurrentUsage(ctx, eq.EquipmentID); err == nil && usage > eq.UsageCount {
			eq.UsageCount = usage
		}
	}

	evaluated := 0
	for _, cycle := range snapshot.Cycles {
		if err := r.processPair(ctx, eq, cycle, snapshot.VersionID, thresholds); err != nil {
			r.log.Error(ctx, "recalc_pair_failed", "pair recalculation failed",
				slog.String("equipment_id", eq.EquipmentID.String()),
				slog.String("cycle_id", cycle.CycleID.String()),
				slog.Any("error", err))
			continue
		}
		evaluated++
	}
	return evaluated
}

func (r *Recalculator) processPair(ctx context.Context, eq models.Equipment, cycle models.SnapshotCycle, versionID uuid.UUID, thresholds Thresholds) error {
	schedule, err := r.schedules.GetOrCreate(ctx, eq.EquipmentID, cycle.CycleID, versionID)
	if err != nil {
		return err
	}

	eval := EvaluateCycle(cycle, eq, schedule, r.now(), thresholds)
	if !needsPersist(schedule, eval, versionID) {
		return nil
	}

	statusChanged := schedule.Status != eval.Status
	schedule.VersionID = versionID
	schedule.Status = eval.Status
	schedule.OverdueMagnitude = eval.OverdueMagnitude
	schedule.NextDueUsage = eval.NextDueUsage
	schedule.NextDueDate = eval.NextDueDate

	updated, err := r.schedules.UpdateDerived(ctx, schedule)
	if err != nil {
		// A completion slipped in between read and write; it wins.
		if errors.Is(err, models.ErrStateConflict) {
			r.log.Debug(ctx, "recalc_row_conflict", "schedule changed concurrently, skipping",
				slog.String("schedule_id", schedule.ScheduleID.String()))
			return nil
		}
		return err
	}

	if r.sink != nil {
		if err := r.sink.WriteScheduleStatus(ctx, eq.EquipmentID.String(), cycle.Code, updated.Status, updated.OverdueMagnitude, r.now()); err != nil {
			metricsx.IncInfluxWriteFailure()
			r.log.Debug(ctx, "influx_write_failed", "schedule status point dropped", slog.Any("error", err))
		}
	}

	if statusChanged {
		metricsx.IncScheduleTransition(updated.Status)
		if updated.Status == models.ScheduleStatusDue || updated.Status == models.ScheduleStatusOverdue {
			return r.dispatcher.DispatchTransition(ctx, updated)
		}
	}
	return nil
}

// needsPersist limits writes to real changes: a status flip, freshly derived
// next-due markers, or a version rollover after a new deploy.
func needsPersist(schedule models.InspectionSchedule, eval Evaluation, versionID uuid.UUID) bool {
	if schedule.Status != eval.Status {
		return true
	}
	if schedule.VersionID != versionID {
		return true
	}
	if !int64PtrEqual(schedule.NextDueUsage, eval.NextDueUsage) {
		return true
	}
	if !timePtrEqual(schedule.NextDueDate, eval.NextDueDate) {
		return true
	}
	return false
}

func int64PtrEqual(a *int64, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
