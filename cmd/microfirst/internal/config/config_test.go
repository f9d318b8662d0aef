package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Server != def.Server || cfg.Display.Width != def.Display.Width {
		t.Fatalf("Load returned %+v, want defaults", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := []byte("server: \"10.0.0.2:8080\"\naudio:\n  max_record_ms: 5000\n")
	if err := os.WriteFile(path, doc, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server != "10.0.0.2:8080" {
		t.Errorf("Server = %q", cfg.Server)
	}
	if cfg.Audio.MaxRecord() != 5*time.Second {
		t.Errorf("MaxRecord = %v, want 5s", cfg.Audio.MaxRecord())
	}
	// Untouched keys keep their defaults.
	if cfg.Display.Height != 320 {
		t.Errorf("Height = %d, want default 320", cfg.Display.Height)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.ClipsDir = "/sdcard/expressions"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ClipsDir != cfg.ClipsDir {
		t.Fatalf("ClipsDir = %q, want %q", got.ClipsDir, cfg.ClipsDir)
	}
}
