package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.Addr != ":8420" {
		t.Errorf("Addr = %q, want :8420", cfg.Server.Addr)
	}
	if cfg.Dispatch.Command != "openclaw" {
		t.Errorf("Command = %q, want openclaw", cfg.Dispatch.Command)
	}
	if cfg.Dispatch.Timeout.Std() != 10*time.Minute {
		t.Errorf("Timeout = %s, want 10m", cfg.Dispatch.Timeout.Std())
	}
	if len(cfg.Agents) != 4 {
		t.Fatalf("default roster = %d agents, want 4", len(cfg.Agents))
	}
	if cfg.Agents[0].ID != "claw" {
		t.Errorf("first agent = %q, want claw", cfg.Agents[0].ID)
	}
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hq.yaml")
	data := `
server:
  addr: ":9000"
dispatch:
  timeout: "90s"
db_path: "custom.db"
agents:
  - id: solo
    role: Everything
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Addr = %q, want override", cfg.Server.Addr)
	}
	if cfg.Dispatch.Timeout.Std() != 90*time.Second {
		t.Errorf("Timeout = %s, want 90s", cfg.Dispatch.Timeout.Std())
	}
	if cfg.DBPath != "custom.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	// Command untouched by the file keeps its default.
	if cfg.Dispatch.Command != "openclaw" {
		t.Errorf("Command = %q, want default retained", cfg.Dispatch.Command)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].ID != "solo" {
		t.Errorf("Agents = %+v, want file roster to replace default", cfg.Agents)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hq.yaml")
	if err := os.WriteFile(path, []byte("dispatch:\n  timeout: \"soon\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
