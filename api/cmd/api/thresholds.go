package main

import (
	"net/http"
	"strings"

	"mold-inspection-backend/shared/httpx"
)

type setRuleRequest struct {
	Value float64 `json:"value"`
}

func (s *apiServer) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.thresholds.ListRules(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err, "threshold rule")
		return
	}
	views := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, toRuleView(rule))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rules": views})
}

func (s *apiServer) getRule(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))
	rule, err := s.thresholds.GetRule(r.Context(), key)
	if err != nil {
		s.writeDomainError(w, r, err, "threshold rule")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRuleView(rule))
}

func (s *apiServer) setRule(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))
	var req setRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rule, err := s.thresholds.SetRule(r.Context(), key, req.Value, actor(r))
	if err != nil {
		s.writeDomainError(w, r, err, "threshold rule")
		return
	}
	// Cached thresholds pick up the new value on next load.
	s.rules.Invalidate(r.Context())
	httpx.WriteJSON(w, http.StatusOK, toRuleView(rule))
}
