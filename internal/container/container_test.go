package container

import (
	"strings"
	"testing"

	"github.com/cronboard/cronboard/internal/client/clienttest"
	"github.com/cronboard/cronboard/internal/config"
	"github.com/cronboard/cronboard/internal/schema"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	_, srv := clienttest.NewServer(t)
	cfg := config.DefaultConfig()
	cfg.Backend.APIURL = srv.URL
	return &cfg
}

func TestNew_ResolvesEverything(t *testing.T) {
	c, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.Client() == nil || c.Synchronizer() == nil || c.Health() == nil ||
		c.Triggers() == nil || c.Notifier() == nil || c.Dashboard() == nil {
		t.Fatal("expected every service to be resolved")
	}
	if got := c.Notifier().Names(); len(got) != 1 || got[0] != "log" {
		t.Errorf("expected only the log notifier, got %v", got)
	}
}

func TestNew_InvalidNotifierSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify.Slack.Enabled = true // no token
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if got := c.Notifier().Names(); len(got) != 1 {
		t.Errorf("misconfigured slack notifier should be skipped, got %v", got)
	}
}

func TestNew_NotifyStatusesFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify.Statuses = []string{"failed"}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if !c.Notifier().Wants(schema.StatusFailed) || c.Notifier().Wants(schema.StatusRunning) {
		t.Error("dispatcher should follow configured statuses")
	}
}

func TestNewClient_PointsAtBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend.TimeoutSeconds = 1
	cl := NewClient(cfg)
	if !strings.HasPrefix(cl.BaseURL(), "http://127.0.0.1") {
		t.Fatalf("unexpected base url %q", cl.BaseURL())
	}
}
