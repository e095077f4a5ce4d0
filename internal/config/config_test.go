package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr() != "127.0.0.1:37778" {
		t.Errorf("ListenAddr = %q, want 127.0.0.1:37778", cfg.ListenAddr())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Errorf("Port = %d, want default", cfg.Server.Port)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attention.yaml")
	content := `
server:
  port: 9000
scaling:
  decay: 0.05
  landmark: 12
  merge_window: 30s
  weights:
    edit: 2
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("Bind = %q, want default kept", cfg.Server.Bind)
	}
	if cfg.Scaling.Decay == nil || *cfg.Scaling.Decay != 0.05 {
		t.Errorf("Decay = %v, want 0.05", cfg.Scaling.Decay)
	}
	if cfg.Scaling.Weights["edit"] != 2 {
		t.Errorf("edit weight = %v, want 2", cfg.Scaling.Weights["edit"])
	}
	if cfg.Scaling.MergeWindow != "30s" {
		t.Errorf("MergeWindow = %q, want 30s", cfg.Scaling.MergeWindow)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadRejectsBadDecay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attention.yaml")
	os.WriteFile(path, []byte("scaling:\n  decay: 2\n"), 0o644)

	if _, err := Load(path); err == nil {
		t.Error("expected error for decay > 1, got nil")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ATTENTION_DB", "/tmp/x.db")
	t.Setenv("ATTENTION_LOG_LEVEL", "warn")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Database.Path != "/tmp/x.db" {
		t.Errorf("Database.Path = %q, want /tmp/x.db", cfg.Database.Path)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}
