package config

import "testing"

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestParseAnyCSV(t *testing.T) {
	raw := []any{"x", " ", "y"}
	got := parseAnyCSV(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0] != "x" || got[1] != "y" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestLoadRejectsOutOfRangeThresholds(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("DUE_THRESHOLD", "1.5")
	t.Setenv("ESCALATION_THRESHOLD", "-0.2")
	t.Setenv("ALERT_COOLDOWN_SECONDS", "0")

	cfg, problems := Load("test-service", 8080)

	if cfg.DueThreshold != 0.9 {
		t.Fatalf("expected due threshold fallback 0.9, got %v", cfg.DueThreshold)
	}
	if cfg.EscalationThreshold != 0.10 {
		t.Fatalf("expected escalation fallback 0.10, got %v", cfg.EscalationThreshold)
	}
	if cfg.AlertCooldownSec != 86400 {
		t.Fatalf("expected cooldown fallback 86400, got %v", cfg.AlertCooldownSec)
	}

	fields := map[string]bool{}
	for _, p := range problems {
		fields[p.Field] = true
	}
	for _, want := range []string{"DUE_THRESHOLD", "ESCALATION_THRESHOLD", "ALERT_COOLDOWN_SECONDS"} {
		if !fields[want] {
			t.Fatalf("expected problem for %s, got %#v", want, problems)
		}
	}
}

func TestLoadThresholdDefaults(t *testing.T) {
	t.Setenv("ENV", "test")

	cfg, _ := Load("test-service", 8080)

	if cfg.DueThreshold != 0.9 || cfg.EscalationThreshold != 0.10 {
		t.Fatalf("unexpected threshold defaults: due=%v escalation=%v", cfg.DueThreshold, cfg.EscalationThreshold)
	}
	if cfg.RecalcIntervalSec != 300 || cfg.RecalcBatchSize != 100 {
		t.Fatalf("unexpected recalc defaults: interval=%d batch=%d", cfg.RecalcIntervalSec, cfg.RecalcBatchSize)
	}
}
