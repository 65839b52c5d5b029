// Package tasks holds the asynq task type names and payloads shared by
// the API (enqueue side) and the workers (handler side).
package tasks

const (
	TypeRecalcSweep     = "recalc.sweep"
	TypeRecalcEquipment = "recalc.equipment"
	TypeDailySummary    = "summary.daily"
	TypeOutboxScan      = "outbox.scan"
	TypeOutboxDispatch  = "outbox.dispatch"
)

type RecalcEquipmentPayload struct {
	EquipmentID string `json:"equipment_id"`
}

type OutboxDispatchPayload struct {
	EventID string `json:"event_id"`
}
