package main

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"mold-inspection-backend/api/internal/repos"
	"mold-inspection-backend/shared/httpx"
)

type checklistItemRequest struct {
	ItemID   uuid.UUID   `json:"item_id"`
	Position int         `json:"position"`
	CycleIDs []uuid.UUID `json:"cycle_ids"`
}

type createChecklistRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	TargetClass string                 `json:"target_class"`
	Items       []checklistItemRequest `json:"items"`
}

type updateChecklistRequest struct {
	Name        *string                 `json:"name,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Items       *[]checklistItemRequest `json:"items,omitempty"`
}

func toMappings(items []checklistItemRequest) []repos.ChecklistItemMapping {
	out := make([]repos.ChecklistItemMapping, 0, len(items))
	for _, item := range items {
		out = append(out, repos.ChecklistItemMapping{
			ItemID:   item.ItemID,
			Position: item.Position,
			CycleIDs: item.CycleIDs,
		})
	}
	return out
}

func (s *apiServer) createChecklist(w http.ResponseWriter, r *http.Request) {
	var req createChecklistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.TargetClass) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "name and target_class are required", nil)
		return
	}
	version, err := s.checklists.Create(r.Context(), repos.CreateChecklistInput{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		TargetClass: strings.TrimSpace(req.TargetClass),
		CreatedBy:   actor(r),
		Items:       toMappings(req.Items),
	})
	if err != nil {
		s.writeDomainError(w, r, err, "checklist")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toChecklistView(version))
}

func (s *apiServer) updateChecklist(w http.ResponseWriter, r *http.Request) {
	versionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateChecklistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := repos.UpdateChecklistInput{
		Name:        req.Name,
		Description: req.Description,
	}
	if req.Items != nil {
		in.Items = toMappings(*req.Items)
	}
	version, err := s.checklists.Update(r.Context(), versionID, in)
	if err != nil {
		s.writeDomainError(w, r, err, "checklist")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toChecklistView(version))
}

func (s *apiServer) submitChecklist(w http.ResponseWriter, r *http.Request) {
	versionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	version, err := s.checklists.SubmitForReview(r.Context(), versionID)
	if err != nil {
		s.writeDomainError(w, r, err, "checklist")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toChecklistView(version))
}

func (s *apiServer) approveChecklist(w http.ResponseWriter, r *http.Request) {
	versionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	version, err := s.checklists.Approve(r.Context(), versionID, actor(r))
	if err != nil {
		s.writeDomainError(w, r, err, "checklist")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toChecklistView(version))
}

func (s *apiServer) deployChecklist(w http.ResponseWriter, r *http.Request) {
	versionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	version, err := s.checklists.Deploy(r.Context(), versionID, actor(r), s.outbox)
	if err != nil {
		s.writeDomainError(w, r, err, "checklist")
		return
	}
	// The cached deployed snapshot for this class is now stale.
	s.snapshots.Invalidate(r.Context(), version.TargetClass)
	httpx.WriteJSON(w, http.StatusOK, toChecklistView(version))
}

func (s *apiServer) cloneChecklist(w http.ResponseWriter, r *http.Request) {
	versionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	version, err := s.checklists.Clone(r.Context(), versionID, actor(r))
	if err != nil {
		s.writeDomainError(w, r, err, "checklist")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toChecklistView(version))
}

func (s *apiServer) getChecklist(w http.ResponseWriter, r *http.Request) {
	versionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	version, err := s.checklists.GetByID(r.Context(), versionID)
	if err != nil {
		s.writeDomainError(w, r, err, "checklist")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toChecklistView(version))
}

func (s *apiServer) listChecklists(w http.ResponseWriter, r *http.Request) {
	targetClass := strings.TrimSpace(r.URL.Query().Get("target_class"))
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", 50, 200)
	offset := queryInt(r, "offset", 0, 0)
	versions, err := s.checklists.List(r.Context(), targetClass, status, limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err, "checklist")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"checklists": toChecklistViews(versions)})
}

func (s *apiServer) getDeployedChecklist(w http.ResponseWriter, r *http.Request) {
	targetClass := strings.TrimSpace(r.URL.Query().Get("target_class"))
	if targetClass == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "target_class is required", nil)
		return
	}
	version, err := s.snapshots.GetCurrentDeployed(r.Context(), targetClass)
	if err != nil {
		s.writeDomainError(w, r, err, "deployed checklist")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toChecklistView(version))
}

func (s *apiServer) listChecklistMappings(w http.ResponseWriter, r *http.Request) {
	versionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	items, cycles, err := s.checklists.ListMappings(r.Context(), versionID)
	if err != nil {
		s.writeDomainError(w, r, err, "checklist")
		return
	}
	type mappingItem struct {
		ItemID   uuid.UUID   `json:"item_id"`
		Position int         `json:"position"`
		CycleIDs []uuid.UUID `json:"cycle_ids"`
	}
	byItem := make(map[uuid.UUID][]uuid.UUID, len(items))
	for _, c := range cycles {
		byItem[c.ItemID] = append(byItem[c.ItemID], c.CycleID)
	}
	out := make([]mappingItem, 0, len(items))
	for _, item := range items {
		out = append(out, mappingItem{
			ItemID:   item.ItemID,
			Position: item.Position,
			CycleIDs: byItem[item.ItemID],
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}
