package scheduling

import (
	"math"
	"testing"
	"time"

	"mold-inspection-backend/api/internal/models"
)

func TestEvaluateUsage(t *testing.T) {
	cases := []struct {
		name          string
		current       int64
		lastDone      int64
		interval      int64
		dueThreshold  float64
		wantStatus    string
		wantMagnitude float64
	}{
		{"well before due", 17000, 0, 20000, 0.9, models.ScheduleStatusUpcoming, 0},
		{"inside due window", 19500, 0, 20000, 0.9, models.ScheduleStatusDue, 0},
		{"exactly at threshold", 18000, 0, 20000, 0.9, models.ScheduleStatusDue, 0},
		{"exactly at due point", 20000, 0, 20000, 0.9, models.ScheduleStatusOverdue, 0},
		{"past due", 20500, 0, 20000, 0.9, models.ScheduleStatusOverdue, 0.025},
		{"after completion", 20500, 20000, 20000, 0.9, models.ScheduleStatusUpcoming, 0},
		{"second interval overdue", 41000, 20000, 20000, 0.9, models.ScheduleStatusOverdue, 0.025},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eval := EvaluateUsage(tc.current, tc.lastDone, tc.interval, tc.dueThreshold)
			if eval.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", eval.Status, tc.wantStatus)
			}
			if math.Abs(eval.OverdueMagnitude-tc.wantMagnitude) > 1e-9 {
				t.Fatalf("magnitude = %v, want %v", eval.OverdueMagnitude, tc.wantMagnitude)
			}
			if eval.NextDueUsage == nil || *eval.NextDueUsage != tc.lastDone+tc.interval {
				t.Fatalf("next due usage = %v", eval.NextDueUsage)
			}
		})
	}
}

func TestEvaluateCalendar(t *testing.T) {
	lastDone := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
	cases := []struct {
		name          string
		today         time.Time
		intervalDays  int
		wantStatus    string
		wantMagnitude float64
	}{
		{"before due", time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), 7, models.ScheduleStatusUpcoming, 0},
		{"on due date", time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC), 7, models.ScheduleStatusDue, 0},
		{"one day late", time.Date(2026, 3, 9, 0, 30, 0, 0, time.UTC), 7, models.ScheduleStatusOverdue, 1},
		{"ten days late", time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC), 7, models.ScheduleStatusOverdue, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eval := EvaluateCalendar(tc.today, lastDone, tc.intervalDays)
			if eval.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", eval.Status, tc.wantStatus)
			}
			if eval.OverdueMagnitude != tc.wantMagnitude {
				t.Fatalf("magnitude = %v, want %v", eval.OverdueMagnitude, tc.wantMagnitude)
			}
		})
	}
}

func TestEvaluateCalendarIgnoresTimeOfDay(t *testing.T) {
	lastDone := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	eval := EvaluateCalendar(time.Date(2026, 3, 8, 0, 1, 0, 0, time.UTC), lastDone, 7)
	if eval.Status != models.ScheduleStatusDue {
		t.Fatalf("status = %s, want due", eval.Status)
	}
}

func TestNextDueAfterCompletion(t *testing.T) {
	interval := int64(20000)
	usage := int64(20500)
	usageCycle := models.SnapshotCycle{CycleType: models.CycleTypeUsage, UsageInterval: &interval}
	nextUsage, nextDate := NextDueAfterCompletion(usageCycle, &usage, time.Now())
	if nextUsage == nil || *nextUsage != 40500 {
		t.Fatalf("next usage = %v", nextUsage)
	}
	if nextDate != nil {
		t.Fatalf("usage cycle should not set a due date")
	}

	days := 30
	calCycle := models.SnapshotCycle{CycleType: models.CycleTypeCalendar, CalendarIntervalDays: &days}
	completed := time.Date(2026, 4, 10, 16, 0, 0, 0, time.UTC)
	nextUsage, nextDate = NextDueAfterCompletion(calCycle, nil, completed)
	if nextUsage != nil {
		t.Fatalf("calendar cycle should not set a due usage")
	}
	want := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	if nextDate == nil || !nextDate.Equal(want) {
		t.Fatalf("next date = %v, want %v", nextDate, want)
	}
}

func TestStatusIsPureFunctionOfInputs(t *testing.T) {
	// Same inputs must reproduce the same status, regardless of call order.
	for i := 0; i < 3; i++ {
		eval := EvaluateUsage(20500, 0, 20000, 0.9)
		if eval.Status != models.ScheduleStatusOverdue || eval.OverdueMagnitude != 0.025 {
			t.Fatalf("run %d: status=%s magnitude=%v", i, eval.Status, eval.OverdueMagnitude)
		}
	}
}
