package main

import (
	"net/http"
	"strings"

	"mold-inspection-backend/api/internal/models"
	"mold-inspection-backend/shared/httpx"
)

type createItemRequest struct {
	Category      string `json:"category"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	CheckMethod   string `json:"check_method"`
	PhotoRequired bool   `json:"photo_required"`
}

type createCycleRequest struct {
	Code                 string `json:"code"`
	Label                string `json:"label"`
	CycleType            string `json:"cycle_type"`
	UsageInterval        *int64 `json:"usage_interval,omitempty"`
	CalendarIntervalDays *int   `json:"calendar_interval_days,omitempty"`
}

func (s *apiServer) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "name is required", nil)
		return
	}
	item, err := s.catalog.CreateItem(r.Context(), models.InspectionItem{
		Category:      strings.TrimSpace(req.Category),
		Name:          strings.TrimSpace(req.Name),
		Description:   strings.TrimSpace(req.Description),
		CheckMethod:   strings.TrimSpace(req.CheckMethod),
		PhotoRequired: req.PhotoRequired,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "item")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toItemView(item))
}

func (s *apiServer) getItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	item, err := s.catalog.GetItem(r.Context(), itemID)
	if err != nil {
		s.writeDomainError(w, r, err, "item")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toItemView(item))
}

func (s *apiServer) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.ListItems(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err, "item")
		return
	}
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, toItemView(item))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": views})
}

func (s *apiServer) createCycle(w http.ResponseWriter, r *http.Request) {
	var req createCycleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cycle, err := s.catalog.CreateCycle(r.Context(), models.CycleDefinition{
		Code:                 strings.TrimSpace(req.Code),
		Label:                strings.TrimSpace(req.Label),
		CycleType:            strings.TrimSpace(req.CycleType),
		UsageInterval:        req.UsageInterval,
		CalendarIntervalDays: req.CalendarIntervalDays,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "cycle")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toCycleView(cycle))
}

func (s *apiServer) getCycle(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	cycle, err := s.catalog.GetCycle(r.Context(), cycleID)
	if err != nil {
		s.writeDomainError(w, r, err, "cycle")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCycleView(cycle))
}

func (s *apiServer) listCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := s.catalog.ListCycles(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err, "cycle")
		return
	}
	views := make([]cycleView, 0, len(cycles))
	for _, cycle := range cycles {
		views = append(views, toCycleView(cycle))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"cycles": views})
}
