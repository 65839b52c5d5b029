package models

import (
	"time"

	"github.com/google/uuid"
)

// ChecklistSnapshot is the frozen copy of a checklist taken at deploy time.
// It carries everything the schedule engine and startInspection need, so
// neither ever reads the live draft tables.
type ChecklistSnapshot struct {
	VersionID   uuid.UUID       `json:"version_id"`
	Name        string          `json:"name"`
	TargetClass string          `json:"target_class"`
	Version     int             `json:"version"`
	TakenAt     time.Time       `json:"taken_at"`
	Items       []SnapshotItem  `json:"items"`
	Cycles      []SnapshotCycle `json:"cycles"`
}

type SnapshotItem struct {
	ItemID        uuid.UUID   `json:"item_id"`
	Category      string      `json:"category"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	CheckMethod   string      `json:"check_method"`
	PhotoRequired bool        `json:"photo_required"`
	CycleIDs      []uuid.UUID `json:"cycle_ids"`
}

type SnapshotCycle struct {
	CycleID              uuid.UUID `json:"cycle_id"`
	Code                 string    `json:"code"`
	Label                string    `json:"label"`
	CycleType            string    `json:"cycle_type"`
	UsageInterval        *int64    `json:"usage_interval,omitempty"`
	CalendarIntervalDays *int      `json:"calendar_interval_days,omitempty"`
}

// Clone returns a deep copy so a held snapshot cannot be mutated through
// shared slices or pointers.
func (s ChecklistSnapshot) Clone() ChecklistSnapshot {
	out := s
	out.Items = make([]SnapshotItem, len(s.Items))
	for i, item := range s.Items {
		out.Items[i] = item
		out.Items[i].CycleIDs = append([]uuid.UUID(nil), item.CycleIDs...)
	}
	out.Cycles = make([]SnapshotCycle, len(s.Cycles))
	for i, cycle := range s.Cycles {
		out.Cycles[i] = cycle
		if cycle.UsageInterval != nil {
			v := *cycle.UsageInterval
			out.Cycles[i].UsageInterval = &v
		}
		if cycle.CalendarIntervalDays != nil {
			v := *cycle.CalendarIntervalDays
			out.Cycles[i].CalendarIntervalDays = &v
		}
	}
	return out
}

// CycleByID looks a cycle up in the snapshot.
func (s ChecklistSnapshot) CycleByID(cycleID uuid.UUID) (SnapshotCycle, bool) {
	for _, c := range s.Cycles {
		if c.CycleID == cycleID {
			return c, true
		}
	}
	return SnapshotCycle{}, false
}

// ItemsForCycle returns the snapshot items enabled for a cycle, in order.
func (s ChecklistSnapshot) ItemsForCycle(cycleID uuid.UUID) []SnapshotItem {
	var out []SnapshotItem
	for _, item := range s.Items {
		for _, id := range item.CycleIDs {
			if id == cycleID {
				out = append(out, item)
				break
			}
		}
	}
	return out
}
