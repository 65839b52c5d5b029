package main

import (
	"net/http"
	"strings"

	"mold-inspection-backend/shared/httpx"
)

func (s *apiServer) listSchedules(w http.ResponseWriter, r *http.Request) {
	equipmentID := queryUUID(r, "equipment_id")
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", 100, 500)
	offset := queryInt(r, "offset", 0, 0)
	schedules, err := s.schedules.List(r.Context(), equipmentID, status, limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err, "schedule")
		return
	}
	views := make([]scheduleView, 0, len(schedules))
	for _, schedule := range schedules {
		views = append(views, toScheduleView(schedule))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"schedules": views})
}

func (s *apiServer) scheduleSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := s.schedules.CountByStatus(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err, "schedule")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func (s *apiServer) listEquipment(w http.ResponseWriter, r *http.Request) {
	targetClass := strings.TrimSpace(r.URL.Query().Get("target_class"))
	equipment, err := s.equipment.ListActive(r.Context(), targetClass)
	if err != nil {
		s.writeDomainError(w, r, err, "equipment")
		return
	}
	views := make([]equipmentView, 0, len(equipment))
	for _, e := range equipment {
		views = append(views, toEquipmentView(e))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"equipment": views})
}

func (s *apiServer) getEquipment(w http.ResponseWriter, r *http.Request) {
	equipmentID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	record, err := s.equipment.GetByID(r.Context(), equipmentID)
	if err != nil {
		s.writeDomainError(w, r, err, "equipment")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toEquipmentView(record))
}

type setEquipmentActiveRequest struct {
	Active bool `json:"active"`
}

func (s *apiServer) setEquipmentActive(w http.ResponseWriter, r *http.Request) {
	equipmentID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req setEquipmentActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.equipment.SetActive(r.Context(), equipmentID, req.Active); err != nil {
		s.writeDomainError(w, r, err, "equipment")
		return
	}
	record, err := s.equipment.GetByID(r.Context(), equipmentID)
	if err != nil {
		s.writeDomainError(w, r, err, "equipment")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toEquipmentView(record))
}
