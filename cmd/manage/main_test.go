package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/manage-core/internal/infrastructure/config"
)

const testSecret = "test-secret-for-development-only-0123456789"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestRun_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		config  func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "missing file",
			config:  func(*testing.T) string { return "/nonexistent/path/config.yaml" },
			wantErr: "loading config",
		},
		{
			name:    "malformed yaml",
			config:  func(t *testing.T) string { return writeConfig(t, "database: [unclosed") },
			wantErr: "parsing config file",
		},
		{
			name: "no jwt secret",
			config: func(t *testing.T) string {
				return writeConfig(t, "database:\n  path: \""+filepath.Join(t.TempDir(), "manage.db")+"\"\n")
			},
			wantErr: "security.jwt.secret is required",
		},
		{
			name: "unknown timezone",
			config: func(t *testing.T) string {
				return writeConfig(t, "scheduler:\n  timezone: Mars/Olympus\nsecurity:\n  jwt:\n    secret: "+testSecret+"\n")
			},
			wantErr: "scheduler.timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MANAGE_CONFIG", tt.config(t))
			t.Setenv("MANAGE_JWT_SECRET", "")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := run(ctx)
			if err == nil {
				t.Fatal("run() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("run() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestRun_DatabaseUnopenable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("writing blocker: %v", err)
	}

	t.Setenv("MANAGE_CONFIG", writeConfig(t, "security:\n  jwt:\n    secret: "+testSecret+"\n"))
	t.Setenv("MANAGE_DATABASE_PATH", filepath.Join(blocker, "manage.db"))

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "opening database") {
		t.Errorf("run() error = %v, want an opening database error", err)
	}
}

func TestHubConfig(t *testing.T) {
	tests := []struct {
		name      string
		rate      float64
		wantBurst int
	}{
		{"disabled", 0, 1},
		{"fractional", 0.5, 1},
		{"default", 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				WebSocket: config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 10},
				Security:  config.SecurityConfig{BrowserRateLimit: tt.rate},
			}
			got := hubConfig(cfg)
			if got.MaxMessageSize != 4096 || got.PingInterval != 30*time.Second || got.PongTimeout != 10*time.Second {
				t.Errorf("hubConfig() = %+v", got)
			}
			if got.RateLimit != tt.rate || got.RateBurst != tt.wantBurst {
				t.Errorf("rate = %v burst = %d, want %v and %d", got.RateLimit, got.RateBurst, tt.rate, tt.wantBurst)
			}
		})
	}
}
