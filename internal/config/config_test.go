package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.AuthMode != "dev" || cfg.TickSeconds != 60 {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Tick() != 60*time.Second {
		t.Fatalf("tick: %v", cfg.Tick())
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "port: \"9090\"\ntickSeconds: 15\ndeliveryRps: 2.5\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("WEBHOOK_TICK_SECONDS", "5")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.DeliveryRPS != 2.5 {
		t.Fatalf("yaml values: %+v", cfg)
	}
	// env wins over the file
	if cfg.TickSeconds != 5 || cfg.MaxAttempts != 3 {
		t.Fatalf("env override: %+v", cfg)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: [oops"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("bad yaml accepted")
	}
}
