// Package synchronizer keeps a local view of the selected group's jobs and
// their statuses in step with the backend by polling.
//
// Two periodic tasks run per selected group: one replaces the job list, the
// other fans out a status fetch per job. Responses carry the selection epoch
// and a sequence number; anything that arrives for an old selection, or after
// a newer response was already applied, is dropped.
package synchronizer

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cronboard/cronboard/internal/scheduler"
	"github.com/cronboard/cronboard/internal/schema"
)

const (
	DefaultJobsInterval   = 2 * time.Second
	DefaultStatusInterval = 2 * time.Second
	DefaultMaxParallel    = 8

	groupsKey = "groups"
)

// Source is the subset of the Graph Client the synchronizer reads from.
type Source interface {
	ListGroups(ctx context.Context) ([]schema.Group, error)
	ListJobs(ctx context.Context, groupID string) ([]schema.Job, error)
	FetchJobStatus(ctx context.Context, groupID, jobID string) (schema.JobStatus, error)
}

// Options tunes polling. Zero values fall back to the defaults.
type Options struct {
	JobsInterval   time.Duration
	StatusInterval time.Duration
	// GroupsInterval enables periodic group refresh when positive.
	GroupsInterval time.Duration
	MaxParallel    int
}

func (o Options) withDefaults() Options {
	if o.JobsInterval <= 0 {
		o.JobsInterval = DefaultJobsInterval
	}
	if o.StatusInterval <= 0 {
		o.StatusInterval = DefaultStatusInterval
	}
	if o.MaxParallel <= 0 {
		o.MaxParallel = DefaultMaxParallel
	}
	return o
}

// View is an immutable snapshot of the synchronized state.
type View struct {
	Groups        []schema.Group              `json:"groups"`
	SelectedGroup string                      `json:"selectedGroup"`
	Jobs          []schema.Job                `json:"jobs"`
	Statuses      map[string]schema.JobStatus `json:"statuses"`
	Version       uint64                      `json:"version"`
}

// StatusOf returns the job's status, or unknown if none was observed yet.
func (v View) StatusOf(jobID string) schema.JobStatus {
	if st, ok := v.Statuses[jobID]; ok {
		return st
	}
	return schema.UnknownStatus(v.SelectedGroup, jobID)
}

// Transition describes an observed status change of a listed job.
type Transition struct {
	GroupID string
	JobID   string
	JobName string
	From    schema.Status
	To      schema.Status
	At      time.Time
}

// Synchronizer owns the job list and status map of the selected group.
type Synchronizer struct {
	src   Source
	sched *scheduler.Scheduler
	opts  Options

	// selMu serializes selection changes, including the task stop/start
	// that follows them. It is never taken by poll ticks.
	selMu sync.Mutex

	mu            sync.Mutex
	closed        bool
	epoch         uint64
	selected      string
	groups        []schema.Group
	jobs          []schema.Job
	statuses      map[string]schema.JobStatus
	version       uint64
	groupsIssued  uint64
	groupsApplied uint64
	listIssued    uint64
	listApplied   uint64
	statusIssued  map[string]uint64
	statusApplied map[string]uint64
	onTransition  func(Transition)

	subMu    sync.Mutex
	subs     map[int]chan View
	nextSub  int
	lastSent uint64
}

// New creates a synchronizer with nothing selected. No polling starts until
// Select is called.
func New(src Source, sched *scheduler.Scheduler, opts Options) *Synchronizer {
	return &Synchronizer{
		src:           src,
		sched:         sched,
		opts:          opts.withDefaults(),
		groups:        []schema.Group{},
		jobs:          []schema.Job{},
		statuses:      make(map[string]schema.JobStatus),
		statusIssued:  make(map[string]uint64),
		statusApplied: make(map[string]uint64),
		subs:          make(map[int]chan View),
	}
}

// SetOnTransition registers a callback for status changes. It is invoked
// outside the state lock.
func (s *Synchronizer) SetOnTransition(fn func(Transition)) {
	s.mu.Lock()
	s.onTransition = fn
	s.mu.Unlock()
}

func jobsKey(gid string) string   { return "jobs:" + gid }
func statusKey(gid string) string { return "status:" + gid }

// ---------------------------------------------------------------------------
// Selection
// ---------------------------------------------------------------------------

// Select makes gid the selected group. Selecting the current group is a
// no-op. Selecting "" leaves nothing selected.
func (s *Synchronizer) Select(gid string) {
	s.selMu.Lock()
	defer s.selMu.Unlock()

	s.mu.Lock()
	if s.closed || gid == s.selected {
		s.mu.Unlock()
		return
	}
	prev := s.selected
	s.selected = gid
	s.epoch++
	epoch := s.epoch
	s.jobs = []schema.Job{}
	s.statuses = make(map[string]schema.JobStatus)
	s.listIssued, s.listApplied = 0, 0
	s.statusIssued = make(map[string]uint64)
	s.statusApplied = make(map[string]uint64)
	s.version++
	view := s.snapshotLocked()
	s.mu.Unlock()

	s.broadcast(view)

	if prev != "" {
		s.sched.Stop(jobsKey(prev))
		s.sched.Stop(statusKey(prev))
	}
	if gid == "" {
		slog.Info("sync: deselected", "previous", prev)
		return
	}
	slog.Info("sync: group selected", "group", gid, "previous", prev)
	s.sched.Start(jobsKey(gid), s.opts.JobsInterval, func(ctx context.Context) {
		s.pollJobs(ctx, gid, epoch)
	})
	s.sched.Start(statusKey(gid), s.opts.StatusInterval, func(ctx context.Context) {
		s.pollStatuses(ctx, gid, epoch)
	})
}

// Deselect clears the selection and stops polling.
func (s *Synchronizer) Deselect() { s.Select("") }

// Selected returns the selected group id, or "".
func (s *Synchronizer) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// WatchGroups starts periodic group refresh when GroupsInterval is set.
func (s *Synchronizer) WatchGroups() {
	if s.opts.GroupsInterval <= 0 {
		return
	}
	s.sched.Start(groupsKey, s.opts.GroupsInterval, func(ctx context.Context) {
		if err := s.RefreshGroups(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("sync: group refresh failed", "err", err)
		}
	})
}

// Close stops all polling. After Close returns no state is mutated.
func (s *Synchronizer) Close() {
	s.selMu.Lock()
	defer s.selMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	gid := s.selected
	s.mu.Unlock()

	s.sched.Stop(groupsKey)
	if gid != "" {
		s.sched.Stop(jobsKey(gid))
		s.sched.Stop(statusKey(gid))
	}

	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
	slog.Info("sync: closed")
}

// ---------------------------------------------------------------------------
// Polling
// ---------------------------------------------------------------------------

func (s *Synchronizer) pollJobs(ctx context.Context, gid string, epoch uint64) {
	s.mu.Lock()
	if s.closed || epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.listIssued++
	seq := s.listIssued
	s.mu.Unlock()

	jobs, err := s.src.ListJobs(ctx, gid)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("sync: job list poll failed", "group", gid, "err", err)
		}
		return
	}
	s.applyJobs(epoch, seq, jobs)
}

func (s *Synchronizer) applyJobs(epoch, seq uint64, jobs []schema.Job) {
	s.mu.Lock()
	if s.closed || epoch != s.epoch || seq <= s.listApplied {
		s.mu.Unlock()
		slog.Debug("sync: stale job list dropped", "seq", seq)
		return
	}
	s.listApplied = seq
	if jobsEqual(s.jobs, jobs) {
		s.mu.Unlock()
		return
	}
	s.jobs = cloneJobs(jobs)
	if len(s.jobs) == 0 {
		s.statuses = make(map[string]schema.JobStatus)
	}
	s.version++
	view := s.snapshotLocked()
	s.mu.Unlock()

	slog.Debug("sync: job list replaced", "group", view.SelectedGroup, "jobs", len(view.Jobs))
	s.broadcast(view)
}

func (s *Synchronizer) pollStatuses(ctx context.Context, gid string, epoch uint64) {
	type request struct {
		jobID string
		seq   uint64
	}

	s.mu.Lock()
	if s.closed || epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	reqs := make([]request, 0, len(s.jobs))
	for _, j := range s.jobs {
		s.statusIssued[j.ID]++
		reqs = append(reqs, request{jobID: j.ID, seq: s.statusIssued[j.ID]})
	}
	s.mu.Unlock()

	if len(reqs) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(s.opts.MaxParallel)
	for _, r := range reqs {
		r := r
		g.Go(func() error {
			st, err := s.src.FetchJobStatus(ctx, gid, r.jobID)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("sync: status poll failed", "group", gid, "job", r.jobID, "err", err)
				}
				return nil
			}
			s.applyStatus(epoch, gid, r.jobID, r.seq, st)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Synchronizer) applyStatus(epoch uint64, gid, jobID string, seq uint64, st schema.JobStatus) {
	st.JobID = jobID
	st.GroupID = gid

	s.mu.Lock()
	if s.closed || epoch != s.epoch || seq <= s.statusApplied[jobID] {
		s.mu.Unlock()
		return
	}
	s.statusApplied[jobID] = seq

	idx := slices.IndexFunc(s.jobs, func(j schema.Job) bool { return j.ID == jobID })
	if idx < 0 {
		// job left the list while the request was in flight
		s.mu.Unlock()
		return
	}
	prev, had := s.statuses[jobID]
	if had && prev.Equal(st) {
		s.mu.Unlock()
		return
	}
	s.statuses[jobID] = st
	s.version++

	from := schema.StatusUnknown
	if had {
		from = prev.Status
	}
	var tr *Transition
	if from != st.Status {
		at := time.Now().UTC()
		if st.UpdatedAt != nil {
			at = *st.UpdatedAt
		}
		tr = &Transition{GroupID: gid, JobID: jobID, JobName: s.jobs[idx].Name, From: from, To: st.Status, At: at}
	}
	cb := s.onTransition
	view := s.snapshotLocked()
	s.mu.Unlock()

	s.broadcast(view)
	if tr != nil {
		slog.Debug("sync: status transition", "group", gid, "job", tr.JobName, "from", tr.From, "to", tr.To)
		if cb != nil {
			cb(*tr)
		}
	}
}

// ---------------------------------------------------------------------------
// One-shot refresh
// ---------------------------------------------------------------------------

// RefreshGroups re-fetches the group list and replaces it wholesale.
func (s *Synchronizer) RefreshGroups(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.groupsIssued++
	seq := s.groupsIssued
	s.mu.Unlock()

	groups, err := s.src.ListGroups(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed || seq <= s.groupsApplied {
		s.mu.Unlock()
		return nil
	}
	s.groupsApplied = seq
	if slices.Equal(s.groups, groups) {
		s.mu.Unlock()
		return nil
	}
	s.groups = append([]schema.Group{}, groups...)
	s.version++
	view := s.snapshotLocked()
	s.mu.Unlock()

	s.broadcast(view)
	return nil
}

// RefreshJobs re-fetches the selected group's job list immediately, through
// the same stale-response guards as the periodic poll.
func (s *Synchronizer) RefreshJobs(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.selected == "" {
		s.mu.Unlock()
		return nil
	}
	gid, epoch := s.selected, s.epoch
	s.listIssued++
	seq := s.listIssued
	s.mu.Unlock()

	jobs, err := s.src.ListJobs(ctx, gid)
	if err != nil {
		return err
	}
	s.applyJobs(epoch, seq, jobs)
	return nil
}

// ---------------------------------------------------------------------------
// Snapshots and subscribers
// ---------------------------------------------------------------------------

// Snapshot returns a deep copy of the current view.
func (s *Synchronizer) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Synchronizer) snapshotLocked() View {
	statuses := make(map[string]schema.JobStatus, len(s.statuses))
	for k, v := range s.statuses {
		if v.UpdatedAt != nil {
			t := *v.UpdatedAt
			v.UpdatedAt = &t
		}
		statuses[k] = v
	}
	return View{
		Groups:        append([]schema.Group{}, s.groups...),
		SelectedGroup: s.selected,
		Jobs:          cloneJobs(s.jobs),
		Statuses:      statuses,
		Version:       s.version,
	}
}

// Subscribe returns a channel that always holds the latest view. A slow
// reader misses intermediate views but never blocks the synchronizer. The
// returned func unsubscribes and closes the channel.
func (s *Synchronizer) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)

	s.subMu.Lock()
	v := s.Snapshot()
	ch <- v
	if v.Version > s.lastSent {
		s.lastSent = v.Version
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
}

func (s *Synchronizer) broadcast(v View) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if v.Version < s.lastSent {
		return
	}
	s.lastSent = v.Version
	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func cloneJobs(in []schema.Job) []schema.Job {
	out := make([]schema.Job, len(in))
	for i, j := range in {
		j.Children = append([]string{}, j.Children...)
		j.Dependencies = append([]schema.DependencyRef{}, j.Dependencies...)
		out[i] = j
	}
	return out
}

func jobsEqual(a, b []schema.Job) bool {
	return slices.EqualFunc(a, b, func(x, y schema.Job) bool {
		return x.ID == y.ID &&
			x.Name == y.Name &&
			x.GroupID == y.GroupID &&
			x.ArtifactURL == y.ArtifactURL &&
			x.Timings == y.Timings &&
			slices.Equal(x.Children, y.Children) &&
			slices.Equal(x.Dependencies, y.Dependencies)
	})
}
