// Package notify announces job status transitions on chat platforms.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cronboard/cronboard/internal/schema"
	"github.com/cronboard/cronboard/internal/synchronizer"
)

// Notifier delivers one transition to one destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, tr synchronizer.Transition) error
}

// Dispatcher filters transitions and fans them out to every notifier. It is
// fed from the synchronizer's transition callback and delivers on its own
// goroutine so polling never waits on a chat API.
type Dispatcher struct {
	notifiers []Notifier
	statuses  map[schema.Status]bool
	queue     chan synchronizer.Transition
}

// NewDispatcher creates a dispatcher that forwards transitions into any of
// statuses. An empty statuses list forwards everything.
func NewDispatcher(statuses []string, notifiers ...Notifier) *Dispatcher {
	want := make(map[schema.Status]bool, len(statuses))
	for _, s := range statuses {
		want[schema.ParseStatus(s)] = true
	}
	return &Dispatcher{
		notifiers: notifiers,
		statuses:  want,
		queue:     make(chan synchronizer.Transition, 64),
	}
}

// Names lists the configured notifiers.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Wants reports whether a transition into status is forwarded.
func (d *Dispatcher) Wants(status schema.Status) bool {
	return len(d.statuses) == 0 || d.statuses[status]
}

// OnTransition queues a transition without blocking. When the queue is full
// the transition is dropped with a warning.
func (d *Dispatcher) OnTransition(tr synchronizer.Transition) {
	if !d.Wants(tr.To) || len(d.notifiers) == 0 {
		return
	}
	select {
	case d.queue <- tr:
	default:
		slog.Warn("notify: queue full, dropping transition", "job", tr.JobName, "to", tr.To)
	}
}

// Run delivers queued transitions until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("notify: started", "notifiers", strings.Join(d.Names(), ","))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tr := <-d.queue:
			d.Deliver(ctx, tr)
		}
	}
}

// Deliver sends tr to every notifier, logging failures.
func (d *Dispatcher) Deliver(ctx context.Context, tr synchronizer.Transition) {
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, tr); err != nil {
			slog.Error("notify: delivery failed", "notifier", n.Name(), "job", tr.JobName, "err", err)
		}
	}
}

// statusIcon maps a status to a leading marker for chat messages.
func statusIcon(s schema.Status) string {
	switch s {
	case schema.StatusCompleted:
		return "✅"
	case schema.StatusRunning:
		return "⏳"
	case schema.StatusFailed:
		return "❌"
	}
	return "❔"
}

// FormatText renders a transition as a single plain-text line.
func FormatText(tr synchronizer.Transition) string {
	return fmt.Sprintf("%s job %s (%s) in group %s: %s → %s",
		statusIcon(tr.To), tr.JobName, tr.JobID, tr.GroupID, tr.From, tr.To)
}

// LogNotifier writes transitions to slog.
type LogNotifier struct{}

func (LogNotifier) Name() string { return "log" }

func (LogNotifier) Notify(_ context.Context, tr synchronizer.Transition) error {
	slog.Info("notify: job status changed",
		"group", tr.GroupID, "job", tr.JobName, "job_id", tr.JobID,
		"from", tr.From, "to", tr.To, "at", tr.At)
	return nil
}
