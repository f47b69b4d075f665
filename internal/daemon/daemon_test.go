package daemon_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"docflow/internal/config"
	"docflow/internal/daemon"
	"docflow/internal/engine"
	"docflow/internal/testsupport"
	"docflow/internal/workflow"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	snap, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	eng := engine.New(snap, engine.Options{Persistence: store})
	mgr := workflow.NewManager(cfg, eng, store, nil, workflow.WithIntervals(time.Hour, time.Hour))
	d, err := daemon.New(cfg, eng, store, mgr, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newDaemon(t, testsupport.NewConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.APIBind == "" {
		t.Fatal("expected api server to be listening")
	}
	if len(status.DefaultSteps) != 5 {
		t.Fatalf("expected default steps in status, got %v", status.DefaultSteps)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	req, err := http.NewRequest(http.MethodGet, "http://"+status.APIBind+"/api/status", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.SetBasicAuth("admin", "test-admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from live api, got %d", resp.StatusCode)
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.APIAddr() != "" {
		t.Fatal("expected api listener to be released")
	}
}

func TestSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)
	ctx := context.Background()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected the lock to reject a second daemon")
	}
	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
	if second.APIAddr() != "" {
		t.Fatal("api should stay disabled without a bind address")
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	d := newDaemon(t, testsupport.NewConfig(t))
	sent, message, err := d.TestNotification(context.Background())
	if err != nil || sent {
		t.Fatalf("expected skipped notification, got sent=%v err=%v", sent, err)
	}
	if message != "ntfy topic not configured" {
		t.Fatalf("unexpected message %q", message)
	}
}
