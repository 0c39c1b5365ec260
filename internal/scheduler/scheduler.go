// Package scheduler runs keyed, cancellable periodic tasks.
//
// Every tick runs in its own goroutine: a slow tick never delays the next one
// and ticks of the same task may overlap. Callers that care about ordering
// must tag their work and drop stale results themselves.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// TickFunc is invoked on every tick with the task's context. The context is
// cancelled when the task is stopped.
type TickFunc func(ctx context.Context)

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns a set of running tasks keyed by name.
type Scheduler struct {
	parent context.Context

	mu    sync.Mutex
	tasks map[string]*task
}

// New creates a scheduler whose tasks are cancelled when parent is done.
func New(parent context.Context) *Scheduler {
	if parent == nil {
		parent = context.Background()
	}
	return &Scheduler{parent: parent, tasks: make(map[string]*task)}
}

// Start runs fn immediately and then every interval until the key is
// stopped. It returns false if a task with the same key is already running.
func (s *Scheduler) Start(key string, interval time.Duration, fn TickFunc) bool {
	if interval <= 0 {
		interval = time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[key]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(s.parent)
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[key] = t
	go s.loop(ctx, key, interval, fn, t)
	slog.Debug("scheduler: task started", "key", key, "interval", interval)
	return true
}

func (s *Scheduler) loop(ctx context.Context, key string, interval time.Duration, fn TickFunc, t *task) {
	var inflight sync.WaitGroup
	defer close(t.done)
	defer s.forget(key, t)
	defer inflight.Wait()

	fire := func() {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			fn(ctx)
		}()
	}

	fire()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("scheduler: task stopping", "key", key)
			return
		case <-ticker.C:
			fire()
		}
	}
}

// forget drops key when it still maps to t, so a loop ended by parent
// cancellation frees its key without touching a newer task.
func (s *Scheduler) forget(key string, t *task) {
	s.mu.Lock()
	if s.tasks[key] == t {
		delete(s.tasks, key)
	}
	s.mu.Unlock()
	t.cancel()
}

// Stop cancels the task and waits for its loop and every in-flight tick to
// return. Stopping an unknown key is a no-op.
func (s *Scheduler) Stop(key string) {
	s.mu.Lock()
	t, ok := s.tasks[key]
	if ok {
		delete(s.tasks, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

// StopAll stops every running task.
func (s *Scheduler) StopAll() {
	for _, k := range s.Keys() {
		s.Stop(k)
	}
}

// Running reports whether key has a live task.
func (s *Scheduler) Running(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Keys returns the running task keys, sorted.
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.tasks))
	for k := range s.tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
