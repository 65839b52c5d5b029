package scheduling

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"mold-inspection-backend/api/internal/models"
	"mold-inspection-backend/shared/logx"
	"mold-inspection-backend/shared/metricsx"
)

// AlertStore persists alert records. InsertDeduped reports created=false when
// the store's uniqueness constraint absorbed a duplicate.
type AlertStore interface {
	InsertDeduped(ctx context.Context, alert models.AlertRecord) (models.AlertRecord, bool, error)
	ResolveOpen(ctx context.Context, equipmentID uuid.UUID, cycleID uuid.UUID) (int64, error)
}

// Dispatcher turns schedule-state transitions into deduplicated, severity
// ranked alert records.
type Dispatcher struct {
	store AlertStore
	rules RuleSource
	log   logx.Logger
	now   func() time.Time
}

func NewDispatcher(store AlertStore, rules RuleSource, log logx.Logger) *Dispatcher {
	return &Dispatcher{store: store, rules: rules, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// CooldownKey identifies an alert condition for dedup purposes.
func CooldownKey(equipmentID uuid.UUID, cycleID uuid.UUID, status string) string {
	return fmt.Sprintf("%s:%s:%s", equipmentID, cycleID, status)
}

// CooldownBucket aligns a timestamp to the cooldown window so the store's
// (key, bucket) uniqueness expresses "at most one per window".
func CooldownBucket(at time.Time, window time.Duration) int64 {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return at.Unix() / int64(window/time.Second)
}

var severityForStatus = map[string]string{
	models.ScheduleStatusDue:     models.SeverityMedium,
	models.ScheduleStatusOverdue: models.SeverityHigh,
}

// DispatchTransition raises the alert(s) for a schedule that just moved into
// due or overdue. An overdue magnitude past the escalation threshold raises a
// second, separately keyed urgent alert on top of the high one.
func (d *Dispatcher) DispatchTransition(ctx context.Context, schedule models.InspectionSchedule) error {
	severity, ok := severityForStatus[schedule.Status]
	if !ok {
		return nil
	}
	thresholds, err := d.rules.Thresholds(ctx)
	if err != nil {
		return err
	}

	now := d.now()
	equipmentID := schedule.EquipmentID
	cycleID := schedule.CycleID
	scheduleID := schedule.ScheduleID

	base := models.AlertRecord{
		AlertType:      models.AlertTypeSchedule,
		Severity:       severity,
		EquipmentID:    &equipmentID,
		CycleID:        &cycleID,
		ScheduleID:     &scheduleID,
		CooldownKey:    CooldownKey(equipmentID, cycleID, schedule.Status),
		CooldownBucket: CooldownBucket(now, thresholds.CooldownWindow),
		Message:        fmt.Sprintf("inspection %s for equipment %s", schedule.Status, equipmentID),
	}
	if err := d.insert(ctx, base); err != nil {
		return err
	}

	if schedule.Status == models.ScheduleStatusOverdue && schedule.OverdueMagnitude > thresholds.EscalationThreshold {
		escalation := base
		escalation.AlertType = models.AlertTypeEscalation
		escalation.Severity = models.SeverityUrgent
		escalation.CooldownKey = base.CooldownKey + ":escalation"
		escalation.Message = fmt.Sprintf("inspection overdue by %.1f%% on equipment %s", schedule.OverdueMagnitude*100, equipmentID)
		if err := d.insert(ctx, escalation); err != nil {
			return err
		}
	}
	return nil
}

// Resolve closes every open alert for the pair; called on completion.
func (d *Dispatcher) Resolve(ctx context.Context, equipmentID uuid.UUID, cycleID uuid.UUID) error {
	n, err := d.store.ResolveOpen(ctx, equipmentID, cycleID)
	if err != nil {
		return err
	}
	if n > 0 {
		d.log.Info(ctx, "alerts_resolved", "resolved open alerts",
			slog.String("equipment_id", equipmentID.String()),
			slog.String("cycle_id", cycleID.String()),
			slog.Int64("count", n))
	}
	return nil
}

// DispatchDailySummary emits one fleet-wide aggregate alert per day, gated by
// the same cooldown mechanism as condition alerts.
func (d *Dispatcher) DispatchDailySummary(ctx context.Context, dueCount int, overdueCount int) error {
	if dueCount == 0 && overdueCount == 0 {
		return nil
	}
	alert := models.AlertRecord{
		AlertType:      models.AlertTypeSummary,
		Severity:       models.SeverityMedium,
		CooldownKey:    "fleet:daily_summary",
		CooldownBucket: CooldownBucket(d.now(), 24*time.Hour),
		Message:        fmt.Sprintf("%d due, %d overdue fleet-wide", dueCount, overdueCount),
	}
	return d.insert(ctx, alert)
}

func (d *Dispatcher) insert(ctx context.Context, alert models.AlertRecord) error {
	created, ok, err := d.store.InsertDeduped(ctx, alert)
	if err != nil {
		return err
	}
	if !ok {
		metricsx.IncAlertSuppressed()
		d.log.Debug(ctx, "alert_suppressed", "duplicate alert absorbed by cooldown",
			slog.String("cooldown_key", alert.CooldownKey),
			slog.Int64("cooldown_bucket", alert.CooldownBucket))
		return nil
	}
	metricsx.IncAlertEmitted(created.Severity)
	d.log.Info(ctx, "alert_emitted", "alert created",
		slog.String("alert_id", created.AlertID.String()),
		slog.String("alert_type", created.AlertType),
		slog.String("severity", created.Severity),
		slog.String("cooldown_key", created.CooldownKey))
	return nil
}
