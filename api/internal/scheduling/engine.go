package scheduling

import (
	"time"

	"mold-inspection-backend/api/internal/models"
)

// Thresholds are the runtime-tunable knobs consumed by the engine and the
// dispatcher. They come from the threshold rule store, never from constants.
type Thresholds struct {
	DueThreshold        float64
	EscalationThreshold float64
	CooldownWindow      time.Duration
}

// Evaluation is the derived state for one (equipment, cycle) pair. Status is
// a pure function of the inputs; nothing else feeds it.
type Evaluation struct {
	Status           string
	OverdueMagnitude float64
	NextDueUsage     *int64
	NextDueDate      *time.Time
}

// EvaluateUsage derives the status of a usage-based cycle from the current
// counter. Magnitude is the fraction past due, e.g. 0.025 for 2.5% over.
func EvaluateUsage(currentUsage int64, lastDoneUsage int64, usageInterval int64, dueThreshold float64) Evaluation {
	nextDue := lastDoneUsage + usageInterval
	eval := Evaluation{Status: models.ScheduleStatusUpcoming, NextDueUsage: &nextDue}
	if nextDue <= 0 {
		return eval
	}
	switch {
	case currentUsage >= nextDue:
		eval.Status = models.ScheduleStatusOverdue
		eval.OverdueMagnitude = float64(currentUsage-nextDue) / float64(nextDue)
	case float64(currentUsage) >= float64(nextDue)*dueThreshold:
		eval.Status = models.ScheduleStatusDue
	}
	return eval
}

// EvaluateCalendar derives the status of a calendar-based cycle. Due exactly
// on the due date, overdue strictly after it; magnitude is whole days late.
func EvaluateCalendar(today time.Time, lastDoneAt time.Time, intervalDays int) Evaluation {
	nextDue := truncateDay(lastDoneAt).AddDate(0, 0, intervalDays)
	day := truncateDay(today)
	eval := Evaluation{Status: models.ScheduleStatusUpcoming, NextDueDate: &nextDue}
	switch {
	case day.After(nextDue):
		eval.Status = models.ScheduleStatusOverdue
		eval.OverdueMagnitude = float64(daysBetween(nextDue, day))
	case day.Equal(nextDue):
		eval.Status = models.ScheduleStatusDue
	}
	return eval
}

// EvaluateCycle dispatches on the snapshot cycle's type. The baseline stands
// in for last-done on pairs that have never been completed: zero usage for
// usage cycles, the schedule's creation day for calendar ones.
func EvaluateCycle(cycle models.SnapshotCycle, equipment models.Equipment, schedule models.InspectionSchedule, now time.Time, thresholds Thresholds) Evaluation {
	switch cycle.CycleType {
	case models.CycleTypeUsage:
		var lastDone int64
		if schedule.LastDoneUsage != nil {
			lastDone = *schedule.LastDoneUsage
		}
		var interval int64
		if cycle.UsageInterval != nil {
			interval = *cycle.UsageInterval
		}
		return EvaluateUsage(equipment.UsageCount, lastDone, interval, thresholds.DueThreshold)
	case models.CycleTypeCalendar:
		baseline := schedule.CreatedAt
		if schedule.LastDoneAt != nil {
			baseline = *schedule.LastDoneAt
		}
		days := 0
		if cycle.CalendarIntervalDays != nil {
			days = *cycle.CalendarIntervalDays
		}
		return EvaluateCalendar(now, baseline, days)
	}
	return Evaluation{Status: models.ScheduleStatusUpcoming}
}

// NextDueAfterCompletion recomputes the next-due markers from the cycle
// parameters in force when an inspection is completed.
func NextDueAfterCompletion(cycle models.SnapshotCycle, completionUsage *int64, completionDate time.Time) (*int64, *time.Time) {
	switch cycle.CycleType {
	case models.CycleTypeUsage:
		if cycle.UsageInterval == nil || completionUsage == nil {
			return nil, nil
		}
		next := *completionUsage + *cycle.UsageInterval
		return &next, nil
	case models.CycleTypeCalendar:
		if cycle.CalendarIntervalDays == nil {
			return nil, nil
		}
		next := truncateDay(completionDate).AddDate(0, 0, *cycle.CalendarIntervalDays)
		return nil, &next
	}
	return nil, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from time.Time, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
