package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newTestService creates a Service backed by a temp file.
func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "triggers.json")
	return NewService(path), path
}

// startService starts the service in the background and returns a stop func
// that waits for Start to return.
func startService(t *testing.T, s *Service) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Start(ctx)
	}()
	// Give Start() a moment to arm timers.
	time.Sleep(20 * time.Millisecond)
	return func() {
		cancel()
		wg.Wait()
	}
}

// ─── Add ───────────────────────────────────────────────────────────────────

func TestAdd_Every(t *testing.T) {
	s, _ := newTestService(t)
	tr, err := s.Add(AddRequest{GroupID: "g1", Kind: KindEvery, Every: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.ID == "" || len(tr.ID) != 8 {
		t.Fatalf("expected 8-char id, got %q", tr.ID)
	}
	if tr.Name != "execute g1" {
		t.Errorf("expected default name, got %q", tr.Name)
	}
	list := s.List(false)
	if len(list) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(list))
	}
	if list[0].Schedule.EveryMs == nil || *list[0].Schedule.EveryMs != 5000 {
		t.Errorf("unexpected everyMs: %v", list[0].Schedule.EveryMs)
	}
}

func TestAdd_Cron(t *testing.T) {
	s, _ := newTestService(t)
	tr, err := s.Add(AddRequest{Name: "nightly", GroupID: "g1", Kind: KindCron, Expr: "0 3 * * *", TZ: "UTC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.State.NextRunAtMs == nil || *tr.State.NextRunAtMs <= time.Now().UnixMilli() {
		t.Error("expected a future next run")
	}
	if got := tr.Schedule.String(); got != "0 3 * * * (UTC)" {
		t.Errorf("schedule string = %q", got)
	}
}

func TestAdd_Validation(t *testing.T) {
	s, _ := newTestService(t)
	cases := []AddRequest{
		{Kind: KindEvery, Every: time.Second},
		{GroupID: "g", Kind: "weekly"},
		{GroupID: "g", Kind: KindEvery},
		{GroupID: "g", Kind: KindCron, Expr: "not a cron"},
		{GroupID: "g", Kind: KindCron, Expr: "* * * * *", TZ: "Mars/Olympus"},
		{GroupID: "g", Kind: KindAt},
	}
	for _, req := range cases {
		if _, err := s.Add(req); err == nil {
			t.Errorf("Add(%+v): expected error", req)
		}
	}
	if n := len(s.List(true)); n != 0 {
		t.Errorf("expected nothing stored, got %d", n)
	}
}

// ─── Remove / Enable ───────────────────────────────────────────────────────

func TestRemove(t *testing.T) {
	s, _ := newTestService(t)
	tr, _ := s.Add(AddRequest{GroupID: "g", Kind: KindEvery, Every: time.Second})
	if !s.Remove(tr.ID) {
		t.Fatal("expected Remove to return true")
	}
	if s.Remove(tr.ID) {
		t.Fatal("expected second Remove to return false")
	}
	if len(s.List(true)) != 0 {
		t.Error("expected empty list after remove")
	}
}

func TestEnable_Toggle(t *testing.T) {
	s, _ := newTestService(t)
	tr, _ := s.Add(AddRequest{GroupID: "g", Kind: KindEvery, Every: time.Second})

	got, ok := s.Enable(tr.ID, false)
	if !ok || got.Enabled || got.State.NextRunAtMs != nil {
		t.Fatalf("expected disabled trigger without next run, got %+v", got)
	}
	if len(s.List(false)) != 0 || len(s.List(true)) != 1 {
		t.Error("disabled trigger should only show with includeDisabled")
	}

	got, ok = s.Enable(tr.ID, true)
	if !ok || !got.Enabled || got.State.NextRunAtMs == nil {
		t.Fatalf("expected re-enabled trigger, got %+v", got)
	}
	if _, ok := s.Enable("ghost", true); ok {
		t.Error("expected ok=false for unknown id")
	}
}

func TestList_SortedByNextRun(t *testing.T) {
	s, _ := newTestService(t)
	_, _ = s.Add(AddRequest{Name: "slow", GroupID: "g", Kind: KindEvery, Every: time.Minute})
	_, _ = s.Add(AddRequest{Name: "fast", GroupID: "g", Kind: KindEvery, Every: time.Second})
	list := s.List(false)
	if len(list) != 2 || list[0].Name != "fast" {
		t.Errorf("expected fast first, got %+v", list)
	}
}

// ─── Persistence ───────────────────────────────────────────────────────────

func TestPersistence_RoundTrip(t *testing.T) {
	s, path := newTestService(t)
	tr, _ := s.Add(AddRequest{GroupID: "g1", Kind: KindEvery, Every: 5 * time.Second})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read triggers.json: %v", err)
	}
	var store triggerStore
	if err := json.Unmarshal(data, &store); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if store.Version != 1 || len(store.Triggers) != 1 || store.Triggers[0].ID != tr.ID {
		t.Fatalf("unexpected persisted store: %+v", store)
	}

	reloaded := NewService(path)
	if got := reloaded.List(false); len(got) != 1 || got[0].GroupID != "g1" {
		t.Errorf("expected trigger to survive reload, got %+v", got)
	}
}

func TestPersistence_LoadExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers.json")
	existing := `{"version":1,"triggers":[{"id":"aabbccdd","name":"loaded","groupId":"g9","enabled":true,
		"schedule":{"kind":"every","everyMs":3000},"state":{},"createdAtMs":1000,"updatedAtMs":1000}]}`
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}
	list := NewService(path).List(false)
	if len(list) != 1 || list[0].Name != "loaded" || list[0].GroupID != "g9" {
		t.Fatalf("unexpected triggers: %+v", list)
	}
}

// ─── computeNextRun ────────────────────────────────────────────────────────

func TestComputeNextRun(t *testing.T) {
	everyMs := int64(5000)
	now := int64(1_000_000)
	if got := computeNextRun(Schedule{Kind: KindEvery, EveryMs: &everyMs}, now); got == nil || *got != now+everyMs {
		t.Errorf("every: got %v", got)
	}

	past := time.Now().Add(-time.Hour).UnixMilli()
	if got := computeNextRun(Schedule{Kind: KindAt, AtMs: &past}, time.Now().UnixMilli()); got != nil {
		t.Errorf("past at: expected nil, got %d", *got)
	}

	expr, tz := "0 12 * * *", "UTC"
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC).UnixMilli()
	got := computeNextRun(Schedule{Kind: KindCron, Expr: &expr, TZ: &tz}, base)
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	if got == nil || *got != want {
		t.Errorf("cron: got %v, want %d", got, want)
	}

	bad := "nope"
	if got := computeNextRun(Schedule{Kind: KindCron, Expr: &bad}, base); got != nil {
		t.Error("invalid cron: expected nil")
	}
}

// ─── Firing ────────────────────────────────────────────────────────────────

func TestRun_RecordsOutcome(t *testing.T) {
	s, _ := newTestService(t)
	var groups []string
	s.SetOnFire(func(_ context.Context, tr Trigger) error {
		groups = append(groups, tr.GroupID)
		if len(groups) == 2 {
			return errors.New("backend returned 500")
		}
		return nil
	})
	tr, _ := s.Add(AddRequest{GroupID: "g1", Kind: KindEvery, Every: time.Hour})

	got, ok := s.Run(context.Background(), tr.ID, false)
	if !ok {
		t.Fatal("Run returned false")
	}
	if got.State.LastStatus == nil || *got.State.LastStatus != StatusOK || got.State.LastRunAtMs == nil {
		t.Errorf("unexpected state after success: %+v", got.State)
	}

	got, _ = s.Run(context.Background(), tr.ID, false)
	if got.State.LastStatus == nil || *got.State.LastStatus != StatusError {
		t.Errorf("expected error status, got %+v", got.State)
	}
	if got.State.LastError == nil || *got.State.LastError != "backend returned 500" {
		t.Errorf("unexpected last error: %v", got.State.LastError)
	}
	if len(groups) != 2 || groups[0] != "g1" {
		t.Errorf("unexpected fired groups %v", groups)
	}
}

func TestRun_DisabledWithoutForce(t *testing.T) {
	s, _ := newTestService(t)
	tr, _ := s.Add(AddRequest{GroupID: "g", Kind: KindEvery, Every: time.Hour})
	s.Enable(tr.ID, false)
	if _, ok := s.Run(context.Background(), tr.ID, false); ok {
		t.Error("expected Run to refuse a disabled trigger")
	}
	if _, ok := s.Run(context.Background(), tr.ID, true); !ok {
		t.Error("expected forced Run to succeed")
	}
	if _, ok := s.Run(context.Background(), "ghost", true); ok {
		t.Error("expected Run to return false for unknown id")
	}
}

func TestRun_AtDeleteAfterRun(t *testing.T) {
	s, _ := newTestService(t)
	tr, _ := s.Add(AddRequest{GroupID: "g", Kind: KindAt, At: time.Now().Add(time.Hour), DeleteAfterRun: true})
	s.Run(context.Background(), tr.ID, true)
	if n := len(s.List(true)); n != 0 {
		t.Errorf("expected trigger deleted after run, got %d", n)
	}
}

func TestEvery_FiresAfterInterval(t *testing.T) {
	s, _ := newTestService(t)
	var count atomic.Int32
	s.SetOnFire(func(context.Context, Trigger) error {
		count.Add(1)
		return nil
	})
	_, _ = s.Add(AddRequest{GroupID: "g", Kind: KindEvery, Every: 50 * time.Millisecond})
	stop := startService(t, s)
	time.Sleep(180 * time.Millisecond)
	stop()
	if n := count.Load(); n < 2 {
		t.Errorf("expected at least 2 executions, got %d", n)
	}
}

func TestAddWhileRunning_IsArmed(t *testing.T) {
	s, _ := newTestService(t)
	fired := make(chan string, 1)
	s.SetOnFire(func(_ context.Context, tr Trigger) error {
		select {
		case fired <- tr.GroupID:
		default:
		}
		return nil
	})
	stop := startService(t, s)
	defer stop()

	_, _ = s.Add(AddRequest{GroupID: "late", Kind: KindAt, At: time.Now().Add(30 * time.Millisecond)})
	select {
	case gid := <-fired:
		if gid != "late" {
			t.Errorf("fired for %q", gid)
		}
	case <-time.After(time.Second):
		t.Fatal("trigger added after Start never fired")
	}
}

func TestAddDuringStart_NoRace(t *testing.T) {
	s, _ := newTestService(t)
	s.SetOnFire(func(context.Context, Trigger) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Start(ctx)
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Add(AddRequest{GroupID: "g", Kind: KindEvery, Every: time.Hour})
		}()
	}
	wg.Wait()
	cancel()
	<-done

	if got := len(s.List(true)); got != 8 {
		t.Errorf("got %d triggers, want 8", got)
	}
}
