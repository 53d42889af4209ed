package loadtest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesYAMLAndAppliesEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `
logger:
  active: false
simulation:
  duration: 1m
peers:
  - 127.0.0.1:10000
csv:
  enabled: false
query:
  rate: 2
  timeout: 2s
  parallelism:
    min: 1
    max: 3
`)

	t.Setenv("LOADTEST_PEERS", "127.0.0.1:10000,127.0.0.1:10002")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Peers) != 2 || cfg.Peers[1] != "127.0.0.1:10002" {
		t.Fatalf("expected env override to win, got %v", cfg.Peers)
	}
	if cfg.Simulation.Duration != time.Minute {
		t.Fatalf("unexpected duration: %v", cfg.Simulation.Duration)
	}
}

func TestValidateAccumulatesEveryViolation(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors on a zero-value config")
	}
	msg := err.Error()
	for _, want := range []string{"simulation.duration", "peers must list", "query.rate"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error message to mention %q, got: %s", want, msg)
		}
	}
}

func TestValidatePassesOnWellFormedConfig(t *testing.T) {
	cfg := &Config{
		Simulation: SimulationConfig{Duration: time.Minute},
		Peers:      []string{"127.0.0.1:10000"},
		Query: QueryConfig{
			Rate:        1,
			Parallelism: ParallelismConfig{MinWorkers: 1, MaxWorkers: 2},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
