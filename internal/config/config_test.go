package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
log:
  mode: dev
redis:
  addr: localhost:6379
  ttl: 10m
auth:
  jwt_secret: from-file
session:
  backup_interval: 45s
reconnect:
  max_attempts: 3
submit:
  max_attempts: 4
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Log.Mode != "dev" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Auth.JWTSecret != "from-file" {
		t.Fatalf("expected secret from file, got %q", cfg.Auth.JWTSecret)
	}
	if got := Duration(cfg.Session.BackupInterval, 30*time.Second); got != 45*time.Second {
		t.Fatalf("expected 45s backup interval, got %s", got)
	}
	if cfg.Reconnect.MaxAttempts != 3 || cfg.Submit.MaxAttempts != 4 {
		t.Fatalf("unexpected retry settings %+v %+v", cfg.Reconnect, cfg.Submit)
	}
}

func TestLoadSecretFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  jwt_secret: from-file\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("expected env override, got %q", cfg.Auth.JWTSecret)
	}
}

func TestDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Minute},
		{"bogus", time.Minute},
		{"90s", 90 * time.Second},
		{"24h", 24 * time.Hour},
	}
	for _, tc := range cases {
		if got := Duration(tc.raw, time.Minute); got != tc.want {
			t.Fatalf("Duration(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}
