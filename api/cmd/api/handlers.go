package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"

	"mold-inspection-backend/api/internal/models"
	"mold-inspection-backend/api/internal/repos"
	"mold-inspection-backend/api/internal/scheduling"
	"mold-inspection-backend/shared/authx"
	"mold-inspection-backend/shared/config"
	"mold-inspection-backend/shared/httpx"
	"mold-inspection-backend/shared/logx"
)

const maxBodyBytes = 1 << 20

type apiServer struct {
	cfg        config.Config
	logger     logx.Logger
	catalog    *repos.CatalogRepo
	checklists *repos.ChecklistsRepo
	schedules  *repos.SchedulesRepo
	alerts     *repos.AlertsRepo
	thresholds *repos.ThresholdsRepo
	equipment  *repos.EquipmentRepo
	outbox     *repos.OutboxRepo
	snapshots  *scheduling.SnapshotProvider
	rules      *scheduling.RuleStore
	service    *scheduling.Service
	inspRepo   *repos.InspectionsRepo
	asynqOpt   asynq.RedisClientOpt
}

// writeDomainError maps the repo sentinels onto HTTP statuses. Anything
// unexpected becomes a 500 without leaking internals.
func (s *apiServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error, resource string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
	case errors.Is(err, models.ErrInvalidState):
		httpx.WriteError(w, r, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, models.ErrStateConflict):
		httpx.WriteError(w, r, http.StatusConflict, "STATE_CONFLICT", err.Error(), nil)
	case errors.Is(err, pgx.ErrNoRows):
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", resource+" not found", nil)
	default:
		s.logger.Error(r.Context(), "handler_failed", "request failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid json body", nil)
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.PathValue(name)))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

func queryUUID(r *http.Request, name string) *uuid.UUID {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func queryBool(r *http.Request, name string) *bool {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

// actor returns the authenticated subject for attribution fields.
func actor(r *http.Request) string {
	auth, ok := authx.FromContext(r.Context())
	if !ok || auth.Subject == "" {
		return "anonymous"
	}
	return auth.Subject
}
