package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CycleTypeUsage    = "usage"
	CycleTypeCalendar = "calendar"
)

const (
	ScheduleStatusUpcoming = "upcoming"
	ScheduleStatusDue      = "due"
	ScheduleStatusOverdue  = "overdue"
)

const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
	SeverityUrgent = "urgent"
)

const (
	AlertTypeSchedule   = "schedule"
	AlertTypeEscalation = "escalation"
	AlertTypeSummary    = "daily_summary"
)

const (
	RunStatusOpen      = "open"
	RunStatusSubmitted = "submitted"
)

const (
	RuleDueThreshold        = "due_threshold"
	RuleEscalationThreshold = "escalation_threshold"
	RuleAlertCooldownSec    = "alert_cooldown_seconds"
)

type InspectionItem struct {
	ItemID        uuid.UUID
	Category      string
	Name          string
	Description   string
	CheckMethod   string
	PhotoRequired bool
	CreatedAt     time.Time
}

type CycleDefinition struct {
	CycleID              uuid.UUID
	Code                 string
	Label                string
	CycleType            string
	UsageInterval        *int64
	CalendarIntervalDays *int
	CreatedAt            time.Time
}

type ChecklistVersion struct {
	VersionID         uuid.UUID
	Name              string
	Description       string
	TargetClass       string
	Status            string
	Version           int
	IsCurrentDeployed bool
	Snapshot          *ChecklistSnapshot
	CreatedBy         string
	ApprovedBy        *string
	ApprovedAt        *time.Time
	DeployedBy        *string
	DeployedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ChecklistVersionItem struct {
	VersionID uuid.UUID
	ItemID    uuid.UUID
	Position  int
}

type ChecklistVersionCycle struct {
	VersionID uuid.UUID
	ItemID    uuid.UUID
	CycleID   uuid.UUID
}

type Equipment struct {
	EquipmentID    uuid.UUID
	Code           string
	Name           string
	TargetClass    string
	Active         bool
	UsageCount     int64
	UsageUpdatedAt time.Time
	CreatedAt      time.Time
}

type InspectionSchedule struct {
	ScheduleID       uuid.UUID
	EquipmentID      uuid.UUID
	CycleID          uuid.UUID
	VersionID        uuid.UUID
	LastDoneUsage    *int64
	LastDoneAt       *time.Time
	NextDueUsage     *int64
	NextDueDate      *time.Time
	Status           string
	OverdueMagnitude float64
	RowVersion       int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type AlertRecord struct {
	AlertID        uuid.UUID
	AlertType      string
	Severity       string
	EquipmentID    *uuid.UUID
	CycleID        *uuid.UUID
	ScheduleID     *uuid.UUID
	CooldownKey    string
	CooldownBucket int64
	Message        string
	Resolved       bool
	ResolvedAt     *time.Time
	CreatedAt      time.Time
}

type ThresholdRule struct {
	RuleKey     string
	Value       float64
	MinValue    float64
	MaxValue    float64
	Description string
	UpdatedBy   *string
	UpdatedAt   time.Time
}

type InspectionRun struct {
	RunID           uuid.UUID
	EquipmentID     uuid.UUID
	CycleID         uuid.UUID
	VersionID       uuid.UUID
	Status          string
	StartedBy       string
	StartedAt       time.Time
	CompletedBy     *string
	CompletedAt     *time.Time
	CompletionUsage *int64
}

type InspectionRunItem struct {
	RunItemID     uuid.UUID
	RunID         uuid.UUID
	ItemID        uuid.UUID
	Category      string
	Name          string
	CheckMethod   string
	PhotoRequired bool
	Result        *string
	Notes         *string
	PhotoRefs     []string
	UpdatedAt     time.Time
}

type OutboxEvent struct {
	EventID       uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	Topic         string
	Payload       []byte
	Status        string
	Attempts      int
	NextRetryAt   *time.Time
	LockedAt      *time.Time
	LockedBy      *string
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
}

type AuditLog struct {
	AuditID      uuid.UUID
	OccurredAt   time.Time
	ActorSubject string
	ActorName    string
	Action       string
	ResourceType *string
	ResourceID   *string
	RequestID    string
	Method       string
	Path         string
	StatusCode   int
	DurationMS   int64
	ClientIP     string
	UserAgent    string
	Details      []byte
}
