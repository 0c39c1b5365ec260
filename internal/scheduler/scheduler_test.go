package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// ─── Start ─────────────────────────────────────────────────────────────────

func TestStart_RunsImmediately(t *testing.T) {
	s := New(context.Background())
	defer s.StopAll()

	fired := make(chan struct{}, 1)
	s.Start("k", time.Hour, func(context.Context) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected immediate first tick")
	}
}

func TestStart_DuplicateKey(t *testing.T) {
	s := New(context.Background())
	defer s.StopAll()
	if !s.Start("k", time.Hour, func(context.Context) {}) {
		t.Fatal("first Start should succeed")
	}
	if s.Start("k", time.Hour, func(context.Context) {}) {
		t.Fatal("second Start with same key should fail")
	}
	if !s.Running("k") {
		t.Error("expected k to be running")
	}
}

func TestStart_TicksRepeatedly(t *testing.T) {
	s := New(context.Background())
	defer s.StopAll()
	var n atomic.Int32
	s.Start("k", 10*time.Millisecond, func(context.Context) { n.Add(1) })
	deadline := time.Now().Add(2 * time.Second)
	for n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", n.Load())
	}
}

func TestSlowTickDoesNotBlockNext(t *testing.T) {
	s := New(context.Background())
	defer s.StopAll()
	var n atomic.Int32
	s.Start("k", 10*time.Millisecond, func(ctx context.Context) {
		n.Add(1)
		<-ctx.Done()
	})
	deadline := time.Now().Add(2 * time.Second)
	for n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n.Load() < 3 {
		t.Fatalf("ticks should overlap while earlier ones block, got %d", n.Load())
	}
}

// ─── Stop ──────────────────────────────────────────────────────────────────

func TestStop_WaitsForInflight(t *testing.T) {
	s := New(context.Background())
	var active atomic.Int32
	started := make(chan struct{})
	s.Start("k", time.Hour, func(ctx context.Context) {
		active.Add(1)
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
	})
	<-started
	s.Stop("k")
	if active.Load() != 0 {
		t.Fatal("Stop returned while a tick was still running")
	}
	if s.Running("k") {
		t.Error("expected k to be stopped")
	}
	// restart under the same key is allowed
	if !s.Start("k", time.Hour, func(context.Context) {}) {
		t.Error("expected restart to succeed")
	}
	s.StopAll()
}

func TestStop_UnknownKey(t *testing.T) {
	s := New(context.Background())
	s.Stop("missing")
}

func TestParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx)
	got := make(chan struct{})
	s.Start("k", time.Hour, func(ctx context.Context) {
		<-ctx.Done()
		close(got)
	})
	cancel()
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("parent cancellation should reach the tick")
	}
	s.StopAll()
}

func TestParentCancel_FreesKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx)
	s.Start("k", time.Hour, func(context.Context) {})
	cancel()

	deadline := time.Now().Add(time.Second)
	for s.Running("k") {
		if time.Now().After(deadline) {
			t.Fatal("key still reported running after parent cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if keys := s.Keys(); len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
	if !s.Start("k", time.Hour, func(context.Context) {}) {
		t.Error("Start should accept a key freed by parent cancellation")
	}
	s.StopAll()
}

func TestKeys(t *testing.T) {
	s := New(context.Background())
	defer s.StopAll()
	s.Start("b", time.Hour, func(context.Context) {})
	s.Start("a", time.Hour, func(context.Context) {})
	keys := s.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("unexpected keys %v", keys)
	}
}
