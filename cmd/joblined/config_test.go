package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "joblined.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	c, err := loadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Listen != ":8080" {
		t.Fatalf("listen = %q, want :8080", c.Listen)
	}
	if c.Store.Backend != "memory" {
		t.Fatalf("backend = %q, want memory", c.Store.Backend)
	}
	if c.ShutdownTimeout.std() != 30*time.Second {
		t.Fatalf("shutdown timeout = %v, want 30s", c.ShutdownTimeout.std())
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
store:
  backend: redis
  redis_uri: redis://cache:6379/2
reconcile:
  active_poll_interval: 5s
  idle_poll_interval: 1m
  notification_history: 50
shutdown_timeout: 10s
`)

	c, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Listen != ":9090" {
		t.Fatalf("listen = %q", c.Listen)
	}
	if c.Store.Backend != "redis" {
		t.Fatalf("backend = %q", c.Store.Backend)
	}
	if c.Store.RedisURI != "redis://cache:6379/2" {
		t.Fatalf("redis uri = %q", c.Store.RedisURI)
	}
	if c.Reconcile.ActivePollInterval.std() != 5*time.Second {
		t.Fatalf("active poll = %v", c.Reconcile.ActivePollInterval.std())
	}
	if c.Reconcile.IdlePollInterval.std() != time.Minute {
		t.Fatalf("idle poll = %v", c.Reconcile.IdlePollInterval.std())
	}
	if c.Reconcile.NotificationHistory != 50 {
		t.Fatalf("history = %d", c.Reconcile.NotificationHistory)
	}
	if c.ShutdownTimeout.std() != 10*time.Second {
		t.Fatalf("shutdown timeout = %v", c.ShutdownTimeout.std())
	}
	// Unset values keep their defaults.
	if c.Store.MongoDB != "jobline" {
		t.Fatalf("mongo db = %q, want default", c.Store.MongoDB)
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: cassandra\n")
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "shutdown_timeout: soon\n")
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected error for bad duration")
	}
}
