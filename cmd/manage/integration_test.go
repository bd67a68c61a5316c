//go:build integration

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"
)

// Needs a broker on 127.0.0.1:1883.
func TestRun_StartupAndShutdown(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MANAGE_CONFIG", writeConfig(t, fmt.Sprintf(`
database:
  path: %q
mqtt:
  broker:
    host: 127.0.0.1
    port: 1883
    client_id: manage-integration
api:
  host: 127.0.0.1
  port: 18080
logging:
  level: error
security:
  jwt:
    secret: %s
`, filepath.Join(dir, "manage.db"), testSecret)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://127.0.0.1:18080/api/v1/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("health status = %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("API never came up: %v (run: %v)", err, <-done)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
