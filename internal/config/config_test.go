package config

import "testing"

func TestApplyEnvOverridesDelegatesToConfigloader(t *testing.T) {
	t.Setenv("HOST", "10.0.0.9")
	t.Setenv("PORT", "20000")
	t.Setenv("CHORD_PORT", "20001")
	t.Setenv("REPLICATION_FACTOR", "5")
	t.Setenv("BOOTSTRAP_PEERS", "10.0.0.1:10001,10.0.0.2:10001")
	t.Setenv("LOGGER_ACTIVE", "false")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Node.Host != "10.0.0.9" {
		t.Fatalf("expected overridden host, got %q", cfg.Node.Host)
	}
	if cfg.Node.Port != 20000 {
		t.Fatalf("expected overridden port, got %d", cfg.Node.Port)
	}
	if cfg.Node.ChordPort != 20001 {
		t.Fatalf("expected overridden chord port, got %d", cfg.Node.ChordPort)
	}
	if cfg.DHT.FaultTolerance.ReplicationFactor != 5 {
		t.Fatalf("expected overridden replication factor, got %d", cfg.DHT.FaultTolerance.ReplicationFactor)
	}
	if len(cfg.DHT.Bootstrap.Peers) != 2 {
		t.Fatalf("expected 2 bootstrap peers, got %v", cfg.DHT.Bootstrap.Peers)
	}
	if cfg.Logger.Active {
		t.Fatal("expected logger.active overridden to false")
	}
}

func TestApplyEnvOverridesLeavesDefaultsWhenUnset(t *testing.T) {
	cfg := Default()
	want := *cfg
	cfg.ApplyEnvOverrides()
	if cfg.Node.Host != want.Node.Host || cfg.Node.Port != want.Node.Port {
		t.Fatal("expected no change when no env vars are set")
	}
}

func TestLoadConfigMissingPathReturnsDefault(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/does-not-exist.yaml")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Node.Port != Default().Node.Port {
		t.Fatal("expected defaults when config file is absent")
	}
}
