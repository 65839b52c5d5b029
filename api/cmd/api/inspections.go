package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"mold-inspection-backend/shared/httpx"
)

type startInspectionRequest struct {
	EquipmentID uuid.UUID `json:"equipment_id"`
	CycleID     uuid.UUID `json:"cycle_id"`
}

type completeInspectionRequest struct {
	CompletionUsage *int64     `json:"completion_usage,omitempty"`
	CompletionDate  *time.Time `json:"completion_date,omitempty"`
}

type updateRunItemRequest struct {
	Result    *string  `json:"result,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
	PhotoRefs []string `json:"photo_refs,omitempty"`
}

func (s *apiServer) startInspection(w http.ResponseWriter, r *http.Request) {
	var req startInspectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EquipmentID == uuid.Nil || req.CycleID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "equipment_id and cycle_id are required", nil)
		return
	}
	run, items, err := s.service.StartInspection(r.Context(), req.EquipmentID, req.CycleID, actor(r))
	if err != nil {
		s.writeDomainError(w, r, err, "inspection")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"run":   toRunView(run),
		"items": toRunItemViews(items),
	})
}

func (s *apiServer) getInspection(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	run, err := s.inspRepo.GetRun(r.Context(), runID)
	if err != nil {
		s.writeDomainError(w, r, err, "inspection run")
		return
	}
	items, err := s.inspRepo.ListRunItems(r.Context(), runID)
	if err != nil {
		s.writeDomainError(w, r, err, "inspection run")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"run":   toRunView(run),
		"items": toRunItemViews(items),
	})
}

func (s *apiServer) updateRunItem(w http.ResponseWriter, r *http.Request) {
	if _, ok := pathUUID(w, r, "id"); !ok {
		return
	}
	runItemID, ok := pathUUID(w, r, "itemId")
	if !ok {
		return
	}
	var req updateRunItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := s.inspRepo.UpdateRunItem(r.Context(), runItemID, req.Result, req.Notes, req.PhotoRefs)
	if err != nil {
		s.writeDomainError(w, r, err, "run item")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRunItemView(item))
}

func (s *apiServer) completeInspection(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req completeInspectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var completionDate time.Time
	if req.CompletionDate != nil {
		completionDate = *req.CompletionDate
	}
	run, schedule, err := s.service.CompleteInspection(r.Context(), runID, actor(r), req.CompletionUsage, completionDate)
	if err != nil {
		s.writeDomainError(w, r, err, "inspection run")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"run":      toRunView(run),
		"schedule": toScheduleView(schedule),
	})
}
