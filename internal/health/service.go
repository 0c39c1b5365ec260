// Package health periodically probes the backend and remembers the result.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pinger is satisfied by the Graph Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the outcome of the most recent probe.
type Status struct {
	Reachable bool      `json:"reachable"`
	LastError string    `json:"lastError,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Checked reports whether at least one probe has completed.
func (s Status) Checked() bool { return !s.CheckedAt.IsZero() }

// Service runs a periodic backend probe.
type Service struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration

	mu       sync.RWMutex
	status   Status
	onChange func(Status)
}

// NewService creates a health probe.
// interval defaults to 15 seconds if zero.
func NewService(pinger Pinger, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Service{pinger: pinger, interval: interval, timeout: timeout}
}

// SetOnChange registers a callback run when reachability flips.
// Must be set before Start().
func (s *Service) SetOnChange(fn func(Status)) { s.onChange = fn }

// Start probes immediately and then on every tick until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("health: started", "interval", s.interval)
	s.Check(ctx)

	for {
		select {
		case <-ticker.C:
			s.Check(ctx)
		case <-ctx.Done():
			slog.Info("health: stopped")
			return ctx.Err()
		}
	}
}

// Check runs one probe, records it and returns the new status.
func (s *Service) Check(ctx context.Context) Status {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	next := Status{Reachable: true, CheckedAt: time.Now().UTC()}
	if err := s.pinger.Ping(pctx); err != nil {
		next.Reachable = false
		next.LastError = err.Error()
	}

	s.mu.Lock()
	prev := s.status
	s.status = next
	s.mu.Unlock()

	flipped := !prev.Checked() || prev.Reachable != next.Reachable
	if flipped {
		if next.Reachable {
			slog.Info("health: backend reachable")
		} else {
			slog.Warn("health: backend unreachable", "err", next.LastError)
		}
		if s.onChange != nil {
			s.onChange(next)
		}
	}
	return next
}

// Status returns the most recent probe result.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
