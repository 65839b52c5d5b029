package scheduling

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mold-inspection-backend/api/internal/models"
	"mold-inspection-backend/shared/logx"
)

type fakeEquipment struct {
	fleet []models.Equipment
}

func (f *fakeEquipment) ListActive(_ context.Context, targetClass string) ([]models.Equipment, error) {
	var out []models.Equipment
	for _, eq := range f.fleet {
		if eq.Active && (targetClass == "" || eq.TargetClass == targetClass) {
			out = append(out, eq)
		}
	}
	return out, nil
}

func (f *fakeEquipment) GetByID(_ context.Context, equipmentID uuid.UUID) (models.Equipment, error) {
	for _, eq := range f.fleet {
		if eq.EquipmentID == equipmentID {
			return eq, nil
		}
	}
	return models.Equipment{}, pgx.ErrNoRows
}

type fakeDeployed struct {
	byClass map[string]models.ChecklistVersion
}

func (f *fakeDeployed) GetCurrentDeployed(_ context.Context, targetClass string) (models.ChecklistVersion, error) {
	v, ok := f.byClass[targetClass]
	if !ok {
		return models.ChecklistVersion{}, pgx.ErrNoRows
	}
	return v, nil
}

type fakeScheduleStore struct {
	rows        map[string]models.InspectionSchedule
	persists    int
	failCycle   uuid.UUID
	conflictAll bool
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{rows: map[string]models.InspectionSchedule{}}
}

func pairKey(equipmentID uuid.UUID, cycleID uuid.UUID) string {
	return fmt.Sprintf("%s/%s", equipmentID, cycleID)
}

func (f *fakeScheduleStore) GetOrCreate(_ context.Context, equipmentID uuid.UUID, cycleID uuid.UUID, versionID uuid.UUID) (models.InspectionSchedule, error) {
	if cycleID == f.failCycle {
		return models.InspectionSchedule{}, errors.New("storage down")
	}
	key := pairKey(equipmentID, cycleID)
	if row, ok := f.rows[key]; ok {
		return row, nil
	}
	row := models.InspectionSchedule{
		ScheduleID:  uuid.New(),
		EquipmentID: equipmentID,
		CycleID:     cycleID,
		VersionID:   versionID,
		Status:      models.ScheduleStatusUpcoming,
		RowVersion:  1,
		CreatedAt:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	f.rows[key] = row
	return row, nil
}

func (f *fakeScheduleStore) UpdateDerived(_ context.Context, schedule models.InspectionSchedule) (models.InspectionSchedule, error) {
	if f.conflictAll {
		return models.InspectionSchedule{}, fmt.Errorf("%w: row moved", models.ErrStateConflict)
	}
	f.persists++
	schedule.RowVersion++
	f.rows[pairKey(schedule.EquipmentID, schedule.CycleID)] = schedule
	return schedule, nil
}

func testFleetFixture(usage int64) (*fakeEquipment, *fakeDeployed, models.SnapshotCycle) {
	interval := int64(20000)
	cycle := models.SnapshotCycle{
		CycleID:       uuid.New(),
		Code:          "per-20k",
		CycleType:     models.CycleTypeUsage,
		UsageInterval: &interval,
	}
	versionID := uuid.New()
	snapshot := &models.ChecklistSnapshot{
		VersionID: versionID,
		Cycles:    []models.SnapshotCycle{cycle},
		Items:     []models.SnapshotItem{{ItemID: uuid.New(), Name: "wear check", CycleIDs: []uuid.UUID{cycle.CycleID}}},
	}
	equipment := &fakeEquipment{fleet: []models.Equipment{{
		EquipmentID: uuid.New(),
		Code:        "MOLD-001",
		TargetClass: "injection-mold",
		Active:      true,
		UsageCount:  usage,
	}}}
	deployed := &fakeDeployed{byClass: map[string]models.ChecklistVersion{
		"injection-mold": {VersionID: versionID, TargetClass: "injection-mold", Snapshot: snapshot},
	}}
	return equipment, deployed, cycle
}

func testRecalculator(equipment *fakeEquipment, deployed *fakeDeployed, schedules *fakeScheduleStore, store *fakeAlertStore) *Recalculator {
	log := logx.New("test", "test", "", "error")
	d := NewDispatcher(store, StaticRules{Values: testThresholds()}, log)
	fixed := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }
	r := NewRecalculator(equipment, deployed, schedules, d, StaticRules{Values: testThresholds()}, nil, nil, log)
	r.now = func() time.Time { return fixed }
	return r
}

func TestSweepLazyCreationAndDispatch(t *testing.T) {
	equipment, deployed, cycle := testFleetFixture(20500)
	schedules := newFakeScheduleStore()
	alerts := newFakeAlertStore()
	r := testRecalculator(equipment, deployed, schedules, alerts)

	if err := r.SweepAll(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	row, ok := schedules.rows[pairKey(equipment.fleet[0].EquipmentID, cycle.CycleID)]
	if !ok {
		t.Fatalf("schedule row was not lazily created")
	}
	if row.Status != models.ScheduleStatusOverdue {
		t.Fatalf("status = %s, want overdue", row.Status)
	}
	if row.NextDueUsage == nil || *row.NextDueUsage != 20000 {
		t.Fatalf("next due usage = %v", row.NextDueUsage)
	}
	if len(alerts.inserted) != 1 {
		t.Fatalf("alerts = %d, want 1 (2.5%% overdue, no escalation)", len(alerts.inserted))
	}
	if alerts.inserted[0].Severity != models.SeverityHigh {
		t.Fatalf("severity = %s", alerts.inserted[0].Severity)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	equipment, deployed, _ := testFleetFixture(20500)
	schedules := newFakeScheduleStore()
	alerts := newFakeAlertStore()
	r := testRecalculator(equipment, deployed, schedules, alerts)

	if err := r.SweepAll(context.Background()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	persistsAfterFirst := schedules.persists
	rowsAfterFirst := fmt.Sprint(schedules.rows)

	if err := r.SweepAll(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if schedules.persists != persistsAfterFirst {
		t.Fatalf("second sweep persisted %d extra rows", schedules.persists-persistsAfterFirst)
	}
	if fmt.Sprint(schedules.rows) != rowsAfterFirst {
		t.Fatalf("second sweep changed schedule rows")
	}
	if len(alerts.inserted) != 1 {
		t.Fatalf("second sweep created extra alerts: %d", len(alerts.inserted))
	}
}

func TestSweepPerPairErrorIsolation(t *testing.T) {
	equipment, deployed, _ := testFleetFixture(20500)
	days := 7
	badCycle := models.SnapshotCycle{CycleID: uuid.New(), Code: "weekly", CycleType: models.CycleTypeCalendar, CalendarIntervalDays: &days}
	version := deployed.byClass["injection-mold"]
	version.Snapshot.Cycles = append(version.Snapshot.Cycles, badCycle)

	schedules := newFakeScheduleStore()
	schedules.failCycle = badCycle.CycleID
	alerts := newFakeAlertStore()
	r := testRecalculator(equipment, deployed, schedules, alerts)

	if err := r.SweepAll(context.Background()); err != nil {
		t.Fatalf("sweep must not abort on a bad pair: %v", err)
	}
	if len(alerts.inserted) != 1 {
		t.Fatalf("healthy pair was not processed: alerts = %d", len(alerts.inserted))
	}
}

func TestSweepCompletionWinsOnConflict(t *testing.T) {
	equipment, deployed, _ := testFleetFixture(20500)
	schedules := newFakeScheduleStore()
	schedules.conflictAll = true
	alerts := newFakeAlertStore()
	r := testRecalculator(equipment, deployed, schedules, alerts)

	if err := r.SweepAll(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(alerts.inserted) != 0 {
		t.Fatalf("conflicting pair must not dispatch alerts")
	}
}

func TestSweepSkipsClassWithoutDeployment(t *testing.T) {
	equipment, deployed, _ := testFleetFixture(20500)
	delete(deployed.byClass, "injection-mold")
	schedules := newFakeScheduleStore()
	alerts := newFakeAlertStore()
	r := testRecalculator(equipment, deployed, schedules, alerts)

	if err := r.SweepAll(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(schedules.rows) != 0 || len(alerts.inserted) != 0 {
		t.Fatalf("undeployed class must be skipped entirely")
	}
}

func TestSweepOneTargetsSingleEquipment(t *testing.T) {
	equipment, deployed, cycle := testFleetFixture(19500)
	schedules := newFakeScheduleStore()
	alerts := newFakeAlertStore()
	r := testRecalculator(equipment, deployed, schedules, alerts)

	if err := r.SweepOne(context.Background(), equipment.fleet[0].EquipmentID); err != nil {
		t.Fatalf("sweep one: %v", err)
	}
	row := schedules.rows[pairKey(equipment.fleet[0].EquipmentID, cycle.CycleID)]
	if row.Status != models.ScheduleStatusDue {
		t.Fatalf("status = %s, want due at 19500/20000", row.Status)
	}
	if len(alerts.inserted) != 1 || alerts.inserted[0].Severity != models.SeverityMedium {
		t.Fatalf("expected one medium alert, got %v", alerts.inserted)
	}
}
