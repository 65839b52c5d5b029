package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"mold-inspection-backend/api/internal/tasks"
	"mold-inspection-backend/shared/httpx"
)

type recalcRequest struct {
	EquipmentID string `json:"equipment_id,omitempty"`
}

// triggerRecalc enqueues a sweep on the worker queue instead of running it
// inline, so a slow fleet never ties up an API request.
func (s *apiServer) triggerRecalc(w http.ResponseWriter, r *http.Request) {
	var req recalcRequest
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	taskType := tasks.TypeRecalcSweep
	var payload []byte
	if raw := strings.TrimSpace(req.EquipmentID); raw != "" {
		equipmentID, err := uuid.Parse(raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid equipment_id", nil)
			return
		}
		taskType = tasks.TypeRecalcEquipment
		payload, _ = json.Marshal(tasks.RecalcEquipmentPayload{EquipmentID: equipmentID.String()})
	}

	client := asynq.NewClient(s.asynqOpt)
	defer client.Close()
	info, err := client.Enqueue(asynq.NewTask(taskType, payload, asynq.Queue(s.cfg.AsynqQueue)))
	if err != nil {
		s.logger.Error(r.Context(), "enqueue_failed", "failed to enqueue recalculation",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to enqueue recalculation", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]any{
		"task_id": info.ID,
		"type":    taskType,
		"queue":   info.Queue,
	})
}
