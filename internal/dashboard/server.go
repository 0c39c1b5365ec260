// Package dashboard serves the browser view of groups, jobs and their
// statuses. It keeps no job state of its own: every render reads the
// synchronizer's snapshot, and every mutation goes through the Graph Client
// followed by a re-fetch.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/cronboard/cronboard/internal/form"
	"github.com/cronboard/cronboard/internal/health"
	"github.com/cronboard/cronboard/internal/schema"
	"github.com/cronboard/cronboard/internal/synchronizer"
)

const defaultPingInterval = 30 * time.Second

// Backend is the subset of the Graph Client the dashboard mutates through.
type Backend interface {
	CreateGroup(ctx context.Context, name string) (schema.Group, error)
	CreateJob(ctx context.Context, decl schema.JobDeclaration) (schema.Job, error)
	TriggerExecution(ctx context.Context, groupID string) error
}

// State is the subset of the synchronizer the dashboard reads and steers.
type State interface {
	Snapshot() synchronizer.View
	Subscribe() (<-chan synchronizer.View, func())
	Select(groupID string)
	Deselect()
	RefreshGroups(ctx context.Context) error
	RefreshJobs(ctx context.Context) error
}

// HealthSource reports the latest backend probe.
type HealthSource interface {
	Status() health.Status
}

// Options configures a Server. Zero values are usable.
type Options struct {
	AllowedOrigins []string
	Health         HealthSource
	PingInterval   time.Duration
	Now            func() time.Time
}

// Server is the dashboard HTTP server.
type Server struct {
	backend Backend
	state   State
	opts    Options

	upgrader websocket.Upgrader

	mu    sync.Mutex
	flash string

	watchMu  sync.Mutex
	watchers map[chan struct{}]struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a dashboard server.
func New(backend Backend, state State, opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		backend:  backend,
		state:    state,
		opts:     opts,
		watchers: make(map[chan struct{}]struct{}),
		done:     make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(opts.AllowedOrigins, r.Header.Get("Origin"), r.Host)
		},
	}
	return s
}

// Handler returns the dashboard router wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/groups", s.handleCreateGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/select", s.handleSelect).Methods(http.MethodPost)
	r.HandleFunc("/deselect", s.handleDeselect).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/jobs", s.handleCreateJob).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/execute", s.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	return corsMiddleware(s.opts.AllowedOrigins, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully and
// closes open websocket streams.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("dashboard: listening", "addr", addr)

	select {
	case err := <-errCh:
		s.shutdownStreams()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard: %w", err)
	case <-ctx.Done():
	}

	s.shutdownStreams()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard shutdown: %w", err)
	}
	slog.Info("dashboard: stopped")
	return nil
}

func (s *Server) shutdownStreams() {
	s.doneOnce.Do(func() { close(s.done) })
}

// HealthChanged pushes a fresh page to every open stream. It is meant to be
// registered as the health probe's change callback.
func (s *Server) HealthChanged(health.Status) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ---------------------------------------------------------------------------
// Page and state
// ---------------------------------------------------------------------------

func (s *Server) page() Page {
	var h health.Status
	if s.opts.Health != nil {
		h = s.opts.Health.Status()
	}
	return BuildPage(s.state.Snapshot(), h)
}

func (s *Server) setFlash(msg string) {
	s.mu.Lock()
	s.flash = msg
	s.mu.Unlock()
}

func (s *Server) takeFlash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.flash
	s.flash = ""
	return msg
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	p := s.page()
	p.Flash = s.takeFlash()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, p); err != nil {
		slog.Error("dashboard: render failed", "err", err)
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.page()); err != nil {
		slog.Warn("dashboard: encode state failed", "err", err)
	}
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	defer redirectHome(w, r)
	name, err := form.GroupForm{Name: r.FormValue("name")}.Parse()
	if err != nil {
		return
	}
	g, err := s.backend.CreateGroup(r.Context(), name)
	if err != nil {
		slog.Warn("dashboard: create group failed", "name", name, "err", err)
		s.setFlash(fmt.Sprintf("Could not create group %q: %v", name, err))
		return
	}
	slog.Info("dashboard: group created", "group", g.ID, "name", g.Name)
	if err := s.state.RefreshGroups(r.Context()); err != nil {
		slog.Warn("dashboard: group refresh failed", "err", err)
	}
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	s.state.Select(mux.Vars(r)["id"])
	redirectHome(w, r)
}

func (s *Server) handleDeselect(w http.ResponseWriter, r *http.Request) {
	s.state.Deselect()
	redirectHome(w, r)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	defer redirectHome(w, r)
	gid := mux.Vars(r)["id"]
	f := form.JobForm{
		Name:         r.FormValue("name"),
		ArtifactURL:  r.FormValue("artifact"),
		Children:     r.FormValue("children"),
		Dependencies: r.FormValue("dependencies"),
		Timings:      r.FormValue("timings"),
	}
	decl, err := f.Parse(gid, s.opts.Now())
	if err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) && ve.Field == "timings" {
			s.setFlash(err.Error())
		}
		// Blank required fields are a silent no-op.
		return
	}

	job, err := s.backend.CreateJob(r.Context(), decl)
	if err != nil {
		slog.Warn("dashboard: create job failed", "group", gid, "name", decl.Name, "err", err)
		s.setFlash(fmt.Sprintf("Could not create job %q: %v", decl.Name, err))
		return
	}
	slog.Info("dashboard: job created", "group", gid, "job", job.ID, "name", job.Name)

	// Creating into another group leaves the selection and its statuses alone.
	if s.state.Snapshot().SelectedGroup != gid {
		return
	}
	if err := s.state.RefreshJobs(r.Context()); err != nil {
		slog.Warn("dashboard: job refresh failed", "group", gid, "err", err)
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	defer redirectHome(w, r)
	gid := mux.Vars(r)["id"]
	if err := s.backend.TriggerExecution(r.Context(), gid); err != nil {
		slog.Warn("dashboard: execute failed", "group", gid, "err", err)
		s.setFlash(fmt.Sprintf("Execution was not triggered: %v", err))
		return
	}
	slog.Info("dashboard: execution triggered", "group", gid)
	s.setFlash("Execution triggered.")
}
