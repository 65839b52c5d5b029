package scheduling

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"mold-inspection-backend/api/internal/models"
	"mold-inspection-backend/shared/logx"
)

type fakeAlertStore struct {
	seen     map[string]bool
	inserted []models.AlertRecord
	resolved int
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{seen: map[string]bool{}}
}

func (s *fakeAlertStore) InsertDeduped(_ context.Context, alert models.AlertRecord) (models.AlertRecord, bool, error) {
	key := fmt.Sprintf("%s#%d", alert.CooldownKey, alert.CooldownBucket)
	if s.seen[key] {
		return models.AlertRecord{}, false, nil
	}
	s.seen[key] = true
	alert.AlertID = uuid.New()
	alert.CreatedAt = time.Now().UTC()
	s.inserted = append(s.inserted, alert)
	return alert, true, nil
}

func (s *fakeAlertStore) ResolveOpen(context.Context, uuid.UUID, uuid.UUID) (int64, error) {
	s.resolved++
	return 1, nil
}

func testThresholds() Thresholds {
	return Thresholds{DueThreshold: 0.9, EscalationThreshold: 0.10, CooldownWindow: 24 * time.Hour}
}

func testDispatcher(store *fakeAlertStore) *Dispatcher {
	d := NewDispatcher(store, StaticRules{Values: testThresholds()}, logx.New("test", "test", "", "error"))
	fixed := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }
	return d
}

func dueSchedule(status string, magnitude float64) models.InspectionSchedule {
	return models.InspectionSchedule{
		ScheduleID:       uuid.New(),
		EquipmentID:      uuid.New(),
		CycleID:          uuid.New(),
		Status:           status,
		OverdueMagnitude: magnitude,
	}
}

func TestDispatchSeverityMapping(t *testing.T) {
	store := newFakeAlertStore()
	d := testDispatcher(store)

	if err := d.DispatchTransition(context.Background(), dueSchedule(models.ScheduleStatusDue, 0)); err != nil {
		t.Fatalf("dispatch due: %v", err)
	}
	if err := d.DispatchTransition(context.Background(), dueSchedule(models.ScheduleStatusOverdue, 0.025)); err != nil {
		t.Fatalf("dispatch overdue: %v", err)
	}

	if len(store.inserted) != 2 {
		t.Fatalf("inserted %d alerts, want 2", len(store.inserted))
	}
	if store.inserted[0].Severity != models.SeverityMedium {
		t.Fatalf("due severity = %s", store.inserted[0].Severity)
	}
	if store.inserted[1].Severity != models.SeverityHigh {
		t.Fatalf("overdue severity = %s", store.inserted[1].Severity)
	}
}

func TestDispatchNoEscalationBelowThreshold(t *testing.T) {
	store := newFakeAlertStore()
	d := testDispatcher(store)

	// 2.5% over on a 20k cycle: high alert only, no urgent escalation.
	if err := d.DispatchTransition(context.Background(), dueSchedule(models.ScheduleStatusOverdue, 0.025)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d alerts, want 1", len(store.inserted))
	}
}

func TestDispatchEscalation(t *testing.T) {
	store := newFakeAlertStore()
	d := testDispatcher(store)

	if err := d.DispatchTransition(context.Background(), dueSchedule(models.ScheduleStatusOverdue, 0.15)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("inserted %d alerts, want 2", len(store.inserted))
	}
	esc := store.inserted[1]
	if esc.Severity != models.SeverityUrgent || esc.AlertType != models.AlertTypeEscalation {
		t.Fatalf("escalation = %s/%s", esc.AlertType, esc.Severity)
	}
	if esc.CooldownKey == store.inserted[0].CooldownKey {
		t.Fatalf("escalation must be separately keyed")
	}
}

func TestDispatchCooldownDedup(t *testing.T) {
	store := newFakeAlertStore()
	d := testDispatcher(store)
	schedule := dueSchedule(models.ScheduleStatusDue, 0)

	if err := d.DispatchTransition(context.Background(), schedule); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := d.DispatchTransition(context.Background(), schedule); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d alerts, want 1 after dedup", len(store.inserted))
	}
}

func TestCooldownBucketRollsOver(t *testing.T) {
	window := 24 * time.Hour
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	if CooldownBucket(at, window) == CooldownBucket(at.Add(25*time.Hour), window) {
		t.Fatalf("bucket should change after the window passes")
	}
	if CooldownBucket(at, window) != CooldownBucket(at.Add(time.Hour), window) {
		t.Fatalf("bucket should be stable within the window")
	}
}

func TestDailySummaryGating(t *testing.T) {
	store := newFakeAlertStore()
	d := testDispatcher(store)

	if err := d.DispatchDailySummary(context.Background(), 3, 2); err != nil {
		t.Fatalf("first summary: %v", err)
	}
	if err := d.DispatchDailySummary(context.Background(), 4, 2); err != nil {
		t.Fatalf("second summary: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d summaries, want 1 per day", len(store.inserted))
	}
	if err := d.DispatchDailySummary(context.Background(), 0, 0); err != nil {
		t.Fatalf("empty summary: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("quiet fleet must not emit a summary")
	}
}

func TestResolveLogsOnlyWhenRowsTouched(t *testing.T) {
	store := newFakeAlertStore()
	d := testDispatcher(store)
	if err := d.Resolve(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if store.resolved != 1 {
		t.Fatalf("resolved calls = %d", store.resolved)
	}
}
