package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"mold-inspection-backend/api/internal/models"
	"mold-inspection-backend/api/internal/repos"
	"mold-inspection-backend/shared/cachex"
	"mold-inspection-backend/shared/config"
)

// RuleSource supplies the current threshold values.
type RuleSource interface {
	Thresholds(ctx context.Context) (Thresholds, error)
}

// StaticRules is a fixed RuleSource, used in tests and as a fallback.
type StaticRules struct {
	Values Thresholds
}

func (s StaticRules) Thresholds(context.Context) (Thresholds, error) {
	return s.Values, nil
}

// RuleStore reads thresholds from the editable rule store, caching briefly in
// redis. Missing rules fall back to the configured defaults so a fresh
// database still evaluates sensibly.
type RuleStore struct {
	repo     *repos.ThresholdsRepo
	cache    *cachex.Client
	cacheTTL time.Duration
	fallback Thresholds
}

func NewRuleStore(repo *repos.ThresholdsRepo, cache *cachex.Client, cfg config.Config) *RuleStore {
	return &RuleStore{
		repo:     repo,
		cache:    cache,
		cacheTTL: time.Duration(cfg.SnapshotCacheSec) * time.Second,
		fallback: Thresholds{
			DueThreshold:        cfg.DueThreshold,
			EscalationThreshold: cfg.EscalationThreshold,
			CooldownWindow:      time.Duration(cfg.AlertCooldownSec) * time.Second,
		},
	}
}

type cachedThresholds struct {
	DueThreshold        float64 `json:"due_threshold"`
	EscalationThreshold float64 `json:"escalation_threshold"`
	CooldownSeconds     float64 `json:"cooldown_seconds"`
}

func (s *RuleStore) Thresholds(ctx context.Context) (Thresholds, error) {
	load := func(ctx context.Context) (any, error) {
		out := cachedThresholds{
			DueThreshold:        s.fallback.DueThreshold,
			EscalationThreshold: s.fallback.EscalationThreshold,
			CooldownSeconds:     s.fallback.CooldownWindow.Seconds(),
		}
		if v, err := s.ruleValue(ctx, models.RuleDueThreshold); err != nil {
			return nil, err
		} else if v != nil {
			out.DueThreshold = *v
		}
		if v, err := s.ruleValue(ctx, models.RuleEscalationThreshold); err != nil {
			return nil, err
		} else if v != nil {
			out.EscalationThreshold = *v
		}
		if v, err := s.ruleValue(ctx, models.RuleAlertCooldownSec); err != nil {
			return nil, err
		} else if v != nil {
			out.CooldownSeconds = *v
		}
		return out, nil
	}

	var cached cachedThresholds
	var err error
	if s.cache != nil {
		err = s.cache.GetOrLoad(ctx, "rules:thresholds", s.cacheTTL, &cached, load)
	} else {
		var v any
		v, err = load(ctx)
		if err == nil {
			cached = v.(cachedThresholds)
		}
	}
	if err != nil {
		return Thresholds{}, err
	}
	return Thresholds{
		DueThreshold:        cached.DueThreshold,
		EscalationThreshold: cached.EscalationThreshold,
		CooldownWindow:      time.Duration(cached.CooldownSeconds * float64(time.Second)),
	}, nil
}

func (s *RuleStore) ruleValue(ctx context.Context, key string) (*float64, error) {
	rule, err := s.repo.GetRule(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rule.Value, nil
}

// Invalidate drops the cached thresholds after a rule edit.
func (s *RuleStore) Invalidate(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "rules:thresholds")
	}
}
