// Package trigger runs scheduled group executions.
//
// Triggers are persisted as JSON:
//
//	{ "version": 1, "triggers": [ { "id":"…", "name":"…", "groupId":"…", "enabled":true,
//	    "schedule":{"kind":"cron","expr":"0 3 * * *","tz":"UTC"},
//	    "state":{"nextRunAtMs":…,"lastRunAtMs":…,"lastStatus":"ok"},
//	    "createdAtMs":…, "updatedAtMs":…, "deleteAfterRun":false } ] }
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"
)

// Schedule kinds.
const (
	KindEvery = "every"
	KindCron  = "cron"
	KindAt    = "at"
)

// Last-run outcomes.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// --------------------------------------------------------------------------
// Data types
// --------------------------------------------------------------------------

type Schedule struct {
	Kind    string  `json:"kind"`              // "every" | "cron" | "at"
	AtMs    *int64  `json:"atMs,omitempty"`    // one-time
	EveryMs *int64  `json:"everyMs,omitempty"` // interval
	Expr    *string `json:"expr,omitempty"`    // cron expression
	TZ      *string `json:"tz,omitempty"`      // IANA timezone
}

// String renders the schedule for listings.
func (s Schedule) String() string {
	switch s.Kind {
	case KindEvery:
		if s.EveryMs != nil {
			return "every " + (time.Duration(*s.EveryMs) * time.Millisecond).String()
		}
	case KindCron:
		if s.Expr != nil {
			if s.TZ != nil && *s.TZ != "" {
				return *s.Expr + " (" + *s.TZ + ")"
			}
			return *s.Expr
		}
	case KindAt:
		if s.AtMs != nil {
			return "at " + time.UnixMilli(*s.AtMs).UTC().Format(time.RFC3339)
		}
	}
	return s.Kind
}

type State struct {
	NextRunAtMs *int64  `json:"nextRunAtMs,omitempty"`
	LastRunAtMs *int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  *string `json:"lastStatus,omitempty"`
	LastError   *string `json:"lastError,omitempty"`
}

// Trigger executes every job of GroupID on its schedule.
type Trigger struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	GroupID        string   `json:"groupId"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	State          State    `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	UpdatedAtMs    int64    `json:"updatedAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

type triggerStore struct {
	Version  int       `json:"version"`
	Triggers []Trigger `json:"triggers"`
}

// AddRequest describes a new trigger. Exactly one of Every, Expr or At is
// used, selected by Kind.
type AddRequest struct {
	Name           string
	GroupID        string
	Kind           string
	Every          time.Duration
	Expr           string
	TZ             string
	At             time.Time
	DeleteAfterRun bool
}

// --------------------------------------------------------------------------
// Service
// --------------------------------------------------------------------------

// OnFireFunc is called when a trigger fires.
type OnFireFunc func(ctx context.Context, t Trigger) error

// Service manages scheduled triggers.
type Service struct {
	storePath string
	onFire    OnFireFunc

	mu     sync.Mutex
	store  triggerStore
	loaded bool
	runCtx context.Context // set while Start is running

	// Active timers / cron entries keyed by trigger ID.
	timers    map[string]*time.Timer
	robfig    *robfigcron.Cron
	robfigIDs map[string]robfigcron.EntryID
}

// NewService creates a trigger service backed by storePath
// (e.g. ~/.cronboard/triggers.json).
func NewService(storePath string) *Service {
	return &Service{
		storePath: storePath,
		timers:    make(map[string]*time.Timer),
		robfig:    robfigcron.New(),
		robfigIDs: make(map[string]robfigcron.EntryID),
	}
}

// SetOnFire registers the callback executed when a trigger fires.
// Must be set before Start().
func (s *Service) SetOnFire(fn OnFireFunc) { s.onFire = fn }

// Start loads triggers from disk, recomputes next-run times and arms all
// timers. Blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		slog.Warn("trigger: load failed, starting empty", "err", err)
	}
	s.recomputeNextRunsLocked()
	s.saveLocked()
	s.runCtx = ctx
	s.armAllLocked(ctx)
	count := len(s.store.Triggers)
	s.mu.Unlock()

	s.robfig.Start()
	slog.Info("trigger: started", "triggers", count)

	<-ctx.Done()

	<-s.robfig.Stop().Done()
	s.mu.Lock()
	s.runCtx = nil
	for id := range s.timers {
		s.cancelTimerLocked(id)
	}
	s.mu.Unlock()
	return ctx.Err()
}

// Add validates and stores a new trigger. If the service is running the
// trigger is armed immediately.
func (s *Service) Add(req AddRequest) (Trigger, error) {
	if strings.TrimSpace(req.GroupID) == "" {
		return Trigger{}, fmt.Errorf("trigger: group id is required")
	}
	sched := Schedule{Kind: req.Kind}
	switch req.Kind {
	case KindEvery:
		if req.Every <= 0 {
			return Trigger{}, fmt.Errorf("trigger: interval must be positive")
		}
		ms := req.Every.Milliseconds()
		sched.EveryMs = &ms
	case KindCron:
		if _, err := parseCron(req.Expr); err != nil {
			return Trigger{}, fmt.Errorf("trigger: invalid cron expression %q: %w", req.Expr, err)
		}
		expr := req.Expr
		sched.Expr = &expr
		if req.TZ != "" {
			if _, err := time.LoadLocation(req.TZ); err != nil {
				return Trigger{}, fmt.Errorf("trigger: unknown timezone %q: %w", req.TZ, err)
			}
			tz := req.TZ
			sched.TZ = &tz
		}
	case KindAt:
		if req.At.IsZero() {
			return Trigger{}, fmt.Errorf("trigger: time is required")
		}
		at := req.At.UnixMilli()
		sched.AtMs = &at
	default:
		return Trigger{}, fmt.Errorf("trigger: unknown schedule kind %q", req.Kind)
	}

	name := req.Name
	if name == "" {
		name = "execute " + req.GroupID
	}
	now := nowMs()
	t := Trigger{
		ID:             shortID(),
		Name:           name,
		GroupID:        req.GroupID,
		Enabled:        true,
		Schedule:       sched,
		State:          State{NextRunAtMs: computeNextRun(sched, now)},
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		DeleteAfterRun: req.DeleteAfterRun,
	}

	s.mu.Lock()
	_ = s.loadLocked()
	s.store.Triggers = append(s.store.Triggers, t)
	s.saveLocked()
	if s.runCtx != nil {
		s.armLocked(s.runCtx, t)
	}
	s.mu.Unlock()

	slog.Info("trigger: added", "name", name, "id", t.ID, "group", req.GroupID, "kind", req.Kind)
	return t, nil
}

// List returns triggers sorted by next run; includeDisabled controls visibility.
func (s *Service) List(includeDisabled bool) []Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()
	var out []Trigger
	for _, t := range s.store.Triggers {
		if includeDisabled || t.Enabled {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, k int) bool {
		a := int64(^uint64(0) >> 1)
		b := int64(^uint64(0) >> 1)
		if out[i].State.NextRunAtMs != nil {
			a = *out[i].State.NextRunAtMs
		}
		if out[k].State.NextRunAtMs != nil {
			b = *out[k].State.NextRunAtMs
		}
		return a < b
	})
	return out
}

// Remove deletes a trigger by ID and returns true if found.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()
	before := len(s.store.Triggers)
	filtered := s.store.Triggers[:0]
	for _, t := range s.store.Triggers {
		if t.ID != id {
			filtered = append(filtered, t)
		}
	}
	s.store.Triggers = filtered
	if len(filtered) < before {
		s.cancelTimerLocked(id)
		s.saveLocked()
		return true
	}
	return false
}

// Enable enables or disables a trigger.
func (s *Service) Enable(id string, enabled bool) (Trigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()
	for i := range s.store.Triggers {
		if s.store.Triggers[i].ID != id {
			continue
		}
		s.store.Triggers[i].Enabled = enabled
		s.store.Triggers[i].UpdatedAtMs = nowMs()
		if enabled {
			s.store.Triggers[i].State.NextRunAtMs = computeNextRun(s.store.Triggers[i].Schedule, nowMs())
			if s.runCtx != nil {
				s.armLocked(s.runCtx, s.store.Triggers[i])
			}
		} else {
			s.store.Triggers[i].State.NextRunAtMs = nil
			s.cancelTimerLocked(id)
		}
		s.saveLocked()
		return s.store.Triggers[i], true
	}
	return Trigger{}, false
}

// Run fires a trigger now (force=true ignores the disabled flag). It returns
// the trigger as stored after the run and false if it was not run.
func (s *Service) Run(ctx context.Context, id string, force bool) (Trigger, bool) {
	s.mu.Lock()
	_ = s.loadLocked()
	var found *Trigger
	for i := range s.store.Triggers {
		if s.store.Triggers[i].ID == id {
			found = &s.store.Triggers[i]
			break
		}
	}
	if found == nil || (!force && !found.Enabled) {
		s.mu.Unlock()
		return Trigger{}, false
	}
	t := *found
	s.mu.Unlock()

	s.fire(ctx, t)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.store.Triggers {
		if cur.ID == id {
			return cur, true
		}
	}
	return t, true
}

// --------------------------------------------------------------------------
// Internal scheduling logic
// --------------------------------------------------------------------------

func (s *Service) recomputeNextRunsLocked() {
	now := nowMs()
	for i := range s.store.Triggers {
		if s.store.Triggers[i].Enabled {
			s.store.Triggers[i].State.NextRunAtMs = computeNextRun(s.store.Triggers[i].Schedule, now)
		}
	}
}

func (s *Service) armAllLocked(ctx context.Context) {
	for _, t := range s.store.Triggers {
		if t.Enabled {
			s.armLocked(ctx, t)
		}
	}
}

func (s *Service) armLocked(ctx context.Context, t Trigger) {
	s.cancelTimerLocked(t.ID)

	switch t.Schedule.Kind {
	case KindEvery:
		if t.Schedule.EveryMs == nil || *t.Schedule.EveryMs <= 0 {
			return
		}
		d := time.Duration(*t.Schedule.EveryMs) * time.Millisecond
		s.timers[t.ID] = time.AfterFunc(d, func() {
			s.fire(ctx, t)
			// Re-arm from the stored copy in case it changed.
			s.mu.Lock()
			defer s.mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			for _, cur := range s.store.Triggers {
				if cur.ID == t.ID && cur.Enabled {
					s.armLocked(ctx, cur)
					break
				}
			}
		})

	case KindAt:
		if t.Schedule.AtMs == nil {
			return
		}
		delay := time.Until(time.UnixMilli(*t.Schedule.AtMs))
		if delay < 0 {
			return
		}
		s.timers[t.ID] = time.AfterFunc(delay, func() { s.fire(ctx, t) })

	case KindCron:
		if t.Schedule.Expr == nil {
			return
		}
		sched, err := parseCron(*t.Schedule.Expr)
		if err != nil {
			slog.Warn("trigger: invalid cron expression", "id", t.ID, "expr", *t.Schedule.Expr, "err", err)
			return
		}
		tc := t
		s.robfigIDs[t.ID] = s.robfig.Schedule(
			withLocation(sched, location(t.Schedule.TZ)),
			robfigcron.FuncJob(func() { s.fire(ctx, tc) }),
		)
	}
}

func (s *Service) cancelTimerLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	if eid, ok := s.robfigIDs[id]; ok {
		s.robfig.Remove(eid)
		delete(s.robfigIDs, id)
	}
}

func (s *Service) fire(ctx context.Context, t Trigger) {
	startMs := nowMs()
	slog.Info("trigger: fired", "name", t.Name, "id", t.ID, "group", t.GroupID)

	lastStatus := StatusOK
	var lastErr *string
	if s.onFire != nil {
		if err := s.onFire(ctx, t); err != nil {
			lastStatus = StatusError
			e := err.Error()
			lastErr = &e
			slog.Error("trigger: execution failed", "name", t.Name, "group", t.GroupID, "err", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.store.Triggers {
		if s.store.Triggers[i].ID != t.ID {
			continue
		}
		now := nowMs()
		s.store.Triggers[i].State.LastRunAtMs = &startMs
		s.store.Triggers[i].State.LastStatus = &lastStatus
		s.store.Triggers[i].State.LastError = lastErr
		s.store.Triggers[i].UpdatedAtMs = now

		if t.Schedule.Kind == KindAt {
			if t.DeleteAfterRun {
				filtered := s.store.Triggers[:0]
				for _, cur := range s.store.Triggers {
					if cur.ID != t.ID {
						filtered = append(filtered, cur)
					}
				}
				s.store.Triggers = filtered
				s.cancelTimerLocked(t.ID)
			} else {
				s.store.Triggers[i].Enabled = false
				s.store.Triggers[i].State.NextRunAtMs = nil
			}
		} else {
			s.store.Triggers[i].State.NextRunAtMs = computeNextRun(t.Schedule, now)
		}
		break
	}
	s.saveLocked()
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

func (s *Service) loadLocked() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.storePath)
	if os.IsNotExist(err) {
		s.store = triggerStore{Version: 1}
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	var st triggerStore
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	s.store = st
	s.loaded = true
	return nil
}

func (s *Service) saveLocked() {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		slog.Warn("trigger: mkdir failed", "err", err)
		return
	}
	if s.store.Version == 0 {
		s.store.Version = 1
	}
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		slog.Warn("trigger: marshal failed", "err", err)
		return
	}
	if err := os.WriteFile(s.storePath, data, 0o644); err != nil {
		slog.Warn("trigger: write failed", "err", err)
	}
}

// --------------------------------------------------------------------------
// Utility
// --------------------------------------------------------------------------

func nowMs() int64 { return time.Now().UnixMilli() }

func shortID() string { return uuid.NewString()[:8] }

var cronParser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

func parseCron(expr string) (robfigcron.Schedule, error) {
	return cronParser.Parse(expr)
}

func location(tz *string) *time.Location {
	if tz != nil && *tz != "" {
		if l, err := time.LoadLocation(*tz); err == nil {
			return l
		}
	}
	return time.Local
}

func computeNextRun(sched Schedule, nowMs int64) *int64 {
	switch sched.Kind {
	case KindAt:
		if sched.AtMs != nil && *sched.AtMs > nowMs {
			v := *sched.AtMs
			return &v
		}
	case KindEvery:
		if sched.EveryMs != nil && *sched.EveryMs > 0 {
			v := nowMs + *sched.EveryMs
			return &v
		}
	case KindCron:
		if sched.Expr != nil {
			parsed, err := parseCron(*sched.Expr)
			if err == nil {
				v := parsed.Next(time.UnixMilli(nowMs).In(location(sched.TZ))).UnixMilli()
				return &v
			}
		}
	}
	return nil
}

// locSchedule evaluates a schedule in a fixed location.
type locSchedule struct {
	inner robfigcron.Schedule
	loc   *time.Location
}

func (l locSchedule) Next(t time.Time) time.Time {
	return l.inner.Next(t.In(l.loc))
}

func withLocation(s robfigcron.Schedule, loc *time.Location) robfigcron.Schedule {
	return locSchedule{inner: s, loc: loc}
}
