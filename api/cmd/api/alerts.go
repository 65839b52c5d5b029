package main

import (
	"net/http"
	"strings"

	"mold-inspection-backend/shared/httpx"
)

func (s *apiServer) listAlerts(w http.ResponseWriter, r *http.Request) {
	equipmentID := queryUUID(r, "equipment_id")
	severity := strings.TrimSpace(r.URL.Query().Get("severity"))
	resolved := queryBool(r, "resolved")
	limit := queryInt(r, "limit", 100, 500)
	offset := queryInt(r, "offset", 0, 0)
	alerts, err := s.alerts.List(r.Context(), equipmentID, severity, resolved, limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err, "alert")
		return
	}
	views := make([]alertView, 0, len(alerts))
	for _, alert := range alerts {
		views = append(views, toAlertView(alert))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"alerts": views})
}

func (s *apiServer) getAlert(w http.ResponseWriter, r *http.Request) {
	alertID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	alert, err := s.alerts.GetByID(r.Context(), alertID)
	if err != nil {
		s.writeDomainError(w, r, err, "alert")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAlertView(alert))
}

func (s *apiServer) resolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	alert, err := s.alerts.ResolveByID(r.Context(), alertID)
	if err != nil {
		s.writeDomainError(w, r, err, "alert")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAlertView(alert))
}
