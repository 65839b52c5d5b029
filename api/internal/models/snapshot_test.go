package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestSnapshotCloneIsIndependent(t *testing.T) {
	interval := int64(20000)
	cycleID := uuid.New()
	src := ChecklistSnapshot{
		Version: 3,
		Items: []SnapshotItem{
			{ItemID: uuid.New(), Name: "nozzle wear", CycleIDs: []uuid.UUID{cycleID}},
		},
		Cycles: []SnapshotCycle{
			{CycleID: cycleID, Code: "per-20k", CycleType: CycleTypeUsage, UsageInterval: &interval},
		},
	}

	dup := src.Clone()
	dup.Items[0].Name = "changed"
	dup.Items[0].CycleIDs[0] = uuid.New()
	*dup.Cycles[0].UsageInterval = 999

	if src.Items[0].Name != "nozzle wear" {
		t.Fatalf("clone mutated source item name: %q", src.Items[0].Name)
	}
	if src.Items[0].CycleIDs[0] != cycleID {
		t.Fatalf("clone mutated source cycle ids")
	}
	if *src.Cycles[0].UsageInterval != 20000 {
		t.Fatalf("clone mutated source interval: %d", *src.Cycles[0].UsageInterval)
	}
}

func TestItemsForCycle(t *testing.T) {
	daily := uuid.New()
	per20k := uuid.New()
	snap := ChecklistSnapshot{
		Items: []SnapshotItem{
			{Name: "visual check", CycleIDs: []uuid.UUID{daily, per20k}},
			{Name: "teardown", CycleIDs: []uuid.UUID{per20k}},
		},
	}
	if got := snap.ItemsForCycle(daily); len(got) != 1 || got[0].Name != "visual check" {
		t.Fatalf("daily items = %v", got)
	}
	if got := snap.ItemsForCycle(per20k); len(got) != 2 {
		t.Fatalf("per-20k items = %v", got)
	}
	if got := snap.ItemsForCycle(uuid.New()); got != nil {
		t.Fatalf("unknown cycle items = %v", got)
	}
}
