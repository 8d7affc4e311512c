package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default(t.TempDir())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}
	if cfg.Audit.InitialInterval != 50*time.Millisecond || cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Fatalf("durations not decoded: %+v", cfg.Audit)
	}
	if !strings.HasSuffix(cfg.Blob.Root, ".cisline/blobs") {
		t.Fatalf("unexpected blob root %s", cfg.Blob.Root)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yml := "server:\n  addr: 0.0.0.0:9999\nlog:\n  level: debug\n"
	if err := os.WriteFile(filepath.Join(dir, "cisline.yml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CISLINE_LOG_FORMAT", "json")
	t.Setenv("CISLINE_JWT_SECRET", "s3cret")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9999" || cfg.Log.Level != "debug" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Log.Format != "json" || cfg.Server.JWTSecret != "s3cret" {
		t.Fatalf("env values lost: %+v", cfg)
	}
	if cfg.Audit.MaxTries != 5 {
		t.Fatalf("defaults lost: %+v", cfg.Audit)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Fatalf("unexpected addr %s", cfg.Server.Addr)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"driver":     "blob:\n  driver: ftp\n",
		"s3 bucket":  "blob:\n  driver: s3\n",
		"log level":  "log:\n  level: loud\n",
		"webhook":    "webhooks:\n  - id: a\n    url: not-a-url\n",
		"dup hook":   "webhooks:\n  - id: a\n    url: http://x.io\n  - id: a\n    url: http://y.io\n",
		"importance": "webhooks:\n  - id: a\n    url: http://x.io\n    min_importance: URGENT\n",
		"ratio":      "telemetry:\n  sample_ratio: 2\n",
	}
	for name, yml := range cases {
		if _, err := FromYAML([]byte(yml)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
