package main

import (
	"time"

	"github.com/google/uuid"

	"mold-inspection-backend/api/internal/models"
)

type checklistView struct {
	VersionID         uuid.UUID                 `json:"version_id"`
	Name              string                    `json:"name"`
	Description       string                    `json:"description,omitempty"`
	TargetClass       string                    `json:"target_class"`
	Status            string                    `json:"status"`
	Version           int                       `json:"version"`
	IsCurrentDeployed bool                      `json:"is_current_deployed"`
	Snapshot          *models.ChecklistSnapshot `json:"snapshot,omitempty"`
	CreatedBy         string                    `json:"created_by"`
	ApprovedBy        *string                   `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time                `json:"approved_at,omitempty"`
	DeployedBy        *string                   `json:"deployed_by,omitempty"`
	DeployedAt        *time.Time                `json:"deployed_at,omitempty"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

func toChecklistView(v models.ChecklistVersion) checklistView {
	return checklistView{
		VersionID:         v.VersionID,
		Name:              v.Name,
		Description:       v.Description,
		TargetClass:       v.TargetClass,
		Status:            v.Status,
		Version:           v.Version,
		IsCurrentDeployed: v.IsCurrentDeployed,
		Snapshot:          v.Snapshot,
		CreatedBy:         v.CreatedBy,
		ApprovedBy:        v.ApprovedBy,
		ApprovedAt:        v.ApprovedAt,
		DeployedBy:        v.DeployedBy,
		DeployedAt:        v.DeployedAt,
		CreatedAt:         v.CreatedAt,
		UpdatedAt:         v.UpdatedAt,
	}
}

func toChecklistViews(vs []models.ChecklistVersion) []checklistView {
	out := make([]checklistView, 0, len(vs))
	for _, v := range vs {
		out = append(out, toChecklistView(v))
	}
	return out
}

type itemView struct {
	ItemID        uuid.UUID `json:"item_id"`
	Category      string    `json:"category"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	CheckMethod   string    `json:"check_method,omitempty"`
	PhotoRequired bool      `json:"photo_required"`
	CreatedAt     time.Time `json:"created_at"`
}

func toItemView(i models.InspectionItem) itemView {
	return itemView{
		ItemID:        i.ItemID,
		Category:      i.Category,
		Name:          i.Name,
		Description:   i.Description,
		CheckMethod:   i.CheckMethod,
		PhotoRequired: i.PhotoRequired,
		CreatedAt:     i.CreatedAt,
	}
}

type cycleView struct {
	CycleID              uuid.UUID `json:"cycle_id"`
	Code                 string    `json:"code"`
	Label                string    `json:"label"`
	CycleType            string    `json:"cycle_type"`
	UsageInterval        *int64    `json:"usage_interval,omitempty"`
	CalendarIntervalDays *int      `json:"calendar_interval_days,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

func toCycleView(c models.CycleDefinition) cycleView {
	return cycleView{
		CycleID:              c.CycleID,
		Code:                 c.Code,
		Label:                c.Label,
		CycleType:            c.CycleType,
		UsageInterval:        c.UsageInterval,
		CalendarIntervalDays: c.CalendarIntervalDays,
		CreatedAt:            c.CreatedAt,
	}
}

type equipmentView struct {
	EquipmentID    uuid.UUID `json:"equipment_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	TargetClass    string    `json:"target_class"`
	Active         bool      `json:"active"`
	UsageCount     int64     `json:"usage_count"`
	UsageUpdatedAt time.Time `json:"usage_updated_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func toEquipmentView(e models.Equipment) equipmentView {
	return equipmentView{
		EquipmentID:    e.EquipmentID,
		Code:           e.Code,
		Name:           e.Name,
		TargetClass:    e.TargetClass,
		Active:         e.Active,
		UsageCount:     e.UsageCount,
		UsageUpdatedAt: e.UsageUpdatedAt,
		CreatedAt:      e.CreatedAt,
	}
}

type scheduleView struct {
	ScheduleID       uuid.UUID  `json:"schedule_id"`
	EquipmentID      uuid.UUID  `json:"equipment_id"`
	CycleID          uuid.UUID  `json:"cycle_id"`
	VersionID        uuid.UUID  `json:"version_id"`
	LastDoneUsage    *int64     `json:"last_done_usage,omitempty"`
	LastDoneAt       *time.Time `json:"last_done_at,omitempty"`
	NextDueUsage     *int64     `json:"next_due_usage,omitempty"`
	NextDueDate      *time.Time `json:"next_due_date,omitempty"`
	Status           string     `json:"status"`
	OverdueMagnitude float64    `json:"overdue_magnitude"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toScheduleView(s models.InspectionSchedule) scheduleView {
	return scheduleView{
		ScheduleID:       s.ScheduleID,
		EquipmentID:      s.EquipmentID,
		CycleID:          s.CycleID,
		VersionID:        s.VersionID,
		LastDoneUsage:    s.LastDoneUsage,
		LastDoneAt:       s.LastDoneAt,
		NextDueUsage:     s.NextDueUsage,
		NextDueDate:      s.NextDueDate,
		Status:           s.Status,
		OverdueMagnitude: s.OverdueMagnitude,
		UpdatedAt:        s.UpdatedAt,
	}
}

type alertView struct {
	AlertID     uuid.UUID  `json:"alert_id"`
	AlertType   string     `json:"alert_type"`
	Severity    string     `json:"severity"`
	EquipmentID *uuid.UUID `json:"equipment_id,omitempty"`
	CycleID     *uuid.UUID `json:"cycle_id,omitempty"`
	ScheduleID  *uuid.UUID `json:"schedule_id,omitempty"`
	Message     string     `json:"message"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toAlertView(a models.AlertRecord) alertView {
	return alertView{
		AlertID:     a.AlertID,
		AlertType:   a.AlertType,
		Severity:    a.Severity,
		EquipmentID: a.EquipmentID,
		CycleID:     a.CycleID,
		ScheduleID:  a.ScheduleID,
		Message:     a.Message,
		Resolved:    a.Resolved,
		ResolvedAt:  a.ResolvedAt,
		CreatedAt:   a.CreatedAt,
	}
}

type ruleView struct {
	RuleKey     string    `json:"rule_key"`
	Value       float64   `json:"value"`
	MinValue    float64   `json:"min_value"`
	MaxValue    float64   `json:"max_value"`
	Description string    `json:"description,omitempty"`
	UpdatedBy   *string   `json:"updated_by,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toRuleView(rule models.ThresholdRule) ruleView {
	return ruleView{
		RuleKey:     rule.RuleKey,
		Value:       rule.Value,
		MinValue:    rule.MinValue,
		MaxValue:    rule.MaxValue,
		Description: rule.Description,
		UpdatedBy:   rule.UpdatedBy,
		UpdatedAt:   rule.UpdatedAt,
	}
}

type runView struct {
	RunID           uuid.UUID  `json:"run_id"`
	EquipmentID     uuid.UUID  `json:"equipment_id"`
	CycleID         uuid.UUID  `json:"cycle_id"`
	VersionID       uuid.UUID  `json:"version_id"`
	Status          string     `json:"status"`
	StartedBy       string     `json:"started_by"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedBy     *string    `json:"completed_by,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CompletionUsage *int64     `json:"completion_usage,omitempty"`
}

func toRunView(run models.InspectionRun) runView {
	return runView{
		RunID:           run.RunID,
		EquipmentID:     run.EquipmentID,
		CycleID:         run.CycleID,
		VersionID:       run.VersionID,
		Status:          run.Status,
		StartedBy:       run.StartedBy,
		StartedAt:       run.StartedAt,
		CompletedBy:     run.CompletedBy,
		CompletedAt:     run.CompletedAt,
		CompletionUsage: run.CompletionUsage,
	}
}

type runItemView struct {
	RunItemID     uuid.UUID `json:"run_item_id"`
	ItemID        uuid.UUID `json:"item_id"`
	Category      string    `json:"category"`
	Name          string    `json:"name"`
	CheckMethod   string    `json:"check_method,omitempty"`
	PhotoRequired bool      `json:"photo_required"`
	Result        *string   `json:"result,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	PhotoRefs     []string  `json:"photo_refs,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toRunItemView(item models.InspectionRunItem) runItemView {
	return runItemView{
		RunItemID:     item.RunItemID,
		ItemID:        item.ItemID,
		Category:      item.Category,
		Name:          item.Name,
		CheckMethod:   item.CheckMethod,
		PhotoRequired: item.PhotoRequired,
		Result:        item.Result,
		Notes:         item.Notes,
		PhotoRefs:     item.PhotoRefs,
		UpdatedAt:     item.UpdatedAt,
	}
}

func toRunItemViews(items []models.InspectionRunItem) []runItemView {
	out := make([]runItemView, 0, len(items))
	for _, item := range items {
		out = append(out, toRunItemView(item))
	}
	return out
}
