package routing

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRoutes(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.json")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write routes file: %v", err)
	}
	return path
}

func TestResolverResolveCluster(t *testing.T) {
	path := writeRoutes(t, `{
  "default_cluster": "cluster-a",
  "clusters": {
    "cluster-a": {"brokers": ["localhost:9092"]},
    "cluster-b": {"brokers": ["localhost:9093"]}
  },
  "routes": [
    {"site": "plant-east", "line": "line-3", "cluster": "cluster-b"}
  ]
}`)
	resolver, err := Load(path)
	if err != nil {
		t.Fatalf("load routes: %v", err)
	}
	if got, ok := resolver.ResolveCluster("plant-east", "line-3"); !ok || got != "cluster-b" {
		t.Fatalf("expected cluster-b, got %q (ok=%v)", got, ok)
	}
	if got, ok := resolver.ResolveCluster("plant-west", "line-1"); !ok || got != "cluster-a" {
		t.Fatalf("expected default cluster-a, got %q (ok=%v)", got, ok)
	}
}

func TestResolverResolveTopic(t *testing.T) {
	path := writeRoutes(t, `{
  "default_topic": "equipment.usage",
  "topic_map": {"usage.reported": "equipment.usage"},
  "clusters": {
    "cluster-a": {"brokers": ["localhost:9092"]}
  }
}`)
	resolver, err := Load(path)
	if err != nil {
		t.Fatalf("load routes: %v", err)
	}
	if got := resolver.ResolveTopic("usage.reported", ""); got != "equipment.usage" {
		t.Fatalf("expected mapped topic, got %q", got)
	}
	if got := resolver.ResolveTopic("unknown.type", "explicit.topic"); got != "explicit.topic" {
		t.Fatalf("requested topic should win, got %q", got)
	}
	if got := resolver.ResolveTopic("unknown.type", ""); got != "equipment.usage" {
		t.Fatalf("expected default topic, got %q", got)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"no clusters", `{"routes": []}`},
		{"unknown cluster", `{"clusters": {"a": {"brokers": ["x:9092"]}}, "routes": [{"site": "s", "line": "l", "cluster": "missing"}]}`},
		{"missing line", `{"clusters": {"a": {"brokers": ["x:9092"]}}, "routes": [{"site": "s", "cluster": "a"}]}`},
		{"duplicate route", `{"clusters": {"a": {"brokers": ["x:9092"]}}, "routes": [{"site": "s", "line": "l", "cluster": "a"}, {"site": "S", "line": "L", "cluster": "a"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeRoutes(t, tc.data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
