package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mold-inspection-backend/shared/config"
	"mold-inspection-backend/shared/metricsx"
)

// Client talks to the external equipment registry, the system of record
// for mold master data and cumulative usage counters.
type Client struct {
	baseURL  string
	token    string
	timeout  time.Duration
	retryMax int
	http     *http.Client
	breaker  *circuitBreaker
}

type EquipmentRecord struct {
	EquipmentID uuid.UUID `json:"equipment_id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	TargetClass string    `json:"target_class"`
	Active      bool      `json:"active"`
	UsageCount  int64     `json:"usage_count"`
}

type usageResponse struct {
	EquipmentID uuid.UUID `json:"equipment_id"`
	UsageCount  int64     `json:"usage_count"`
}

type listResponse struct {
	Equipment []EquipmentRecord `json:"equipment"`
}

func New(cfg config.Config) (*Client, error) {
	if cfg.RegistryAPIURL == "" {
		return nil, errors.New("REGISTRY_API_URL is required")
	}
	timeout := time.Duration(cfg.RegistryTimeoutMS) * time.Millisecond
	return &Client{
		baseURL:  strings.TrimRight(cfg.RegistryAPIURL, "/"),
		token:    cfg.RegistryAPIToken,
		timeout:  timeout,
		retryMax: cfg.RegistryRetryMax,
		http:     &http.Client{Timeout: timeout},
		breaker:  newCircuitBreaker(5, 30*time.Second),
	}, nil
}

func (c *Client) GetCurrentUsage(ctx context.Context, equipmentID uuid.UUID) (int64, error) {
	var out usageResponse
	path := "/api/v1/equipment/" + equipmentID.String() + "/usage"
	if err := c.getJSON(ctx, path, &out); err != nil {
		return 0, err
	}
	return out.UsageCount, nil
}

func (c *Client) ListActiveEquipment(ctx context.Context, targetClass string) ([]EquipmentRecord, error) {
	var out listResponse
	path := "/api/v1/equipment?active=true"
	if targetClass != "" {
		path += "&target_class=" + url.QueryEscape(targetClass)
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Equipment, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	if c == nil || c.http == nil {
		return errors.New("registry client not initialized")
	}
	if c.breaker.Open() {
		return errors.New("registry circuit open")
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = errors.New("registry service error")
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			metricsx.IncRegistryFailure()
			return errors.New("registry request failed")
		}
		err = json.NewDecoder(resp.Body).Decode(dest)
		_ = resp.Body.Close()
		if err != nil {
			c.breaker.Fail()
			metricsx.IncRegistryFailure()
			return err
		}
		c.breaker.Success()
		metricsx.IncRegistrySuccess()
		metricsx.ObserveRegistryLatency(time.Since(start))
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("registry request failed")
	}
	metricsx.IncRegistryFailure()
	return lastErr
}

type circuitBreaker struct {
	mu            sync.Mutex
	failures      int
	openUntil     time.Time
	threshold     int
	resetDuration time.Duration
}

func newCircuitBreaker(threshold int, reset time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetDuration: reset}
}

func (b *circuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return false
	}
	if time.Now().After(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return false
	}
	return true
}

func (b *circuitBreaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = time.Now().Add(b.resetDuration)
	}
}

func (b *circuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}
