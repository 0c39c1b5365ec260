// Package clienttest provides an in-memory job-scheduling backend for tests.
//
// The Store speaks the same routes and wire shapes as the real backend: groups
// are listed as [id, name] tuples, job ids are integers, and dependencies are
// posted as [name, generation] pairs and resolved against existing jobs.
package clienttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type storedJob struct {
	ID           int      `json:"cron_job_id"`
	Name         string   `json:"cron_job_name"`
	Timings      string   `json:"timings"`
	Children     []string `json:"children"`
	Dependencies []string `json:"dependencies"`
	S3Link       string   `json:"s3_link"`
}

type storedStatus struct {
	Status    string
	UpdatedAt time.Time
}

// Store is a fake backend. The zero value is not usable; call New.
type Store struct {
	mu         sync.Mutex
	groups     [][2]string
	jobs       map[string][]storedJob
	statuses   map[string]storedStatus
	nextJobID  int
	executions map[string]int
	requests   map[string]int

	// Fail, when set, is consulted before every request. A non-zero return
	// is written as the response status with an error body.
	Fail func(r *http.Request) int
	// Delay, when set, holds every request for the returned duration or
	// until the request context is done.
	Delay func(r *http.Request) time.Duration
	// ExecuteStatus is the status written by the execute route; 0 means 200.
	ExecuteStatus int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		jobs:       make(map[string][]storedJob),
		statuses:   make(map[string]storedStatus),
		executions: make(map[string]int),
		requests:   make(map[string]int),
		nextJobID:  1,
	}
}

// NewServer starts an httptest server for a new store and closes it when the
// test ends.
func NewServer(tb testing.TB) (*Store, *httptest.Server) {
	tb.Helper()
	s := New()
	srv := httptest.NewServer(s.Handler())
	tb.Cleanup(srv.Close)
	return s, srv
}

// Handler returns the backend router.
func (s *Store) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.hooks)
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Hello, World!"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/groups", s.handleListGroups).Methods(http.MethodGet)
	r.HandleFunc("/group", s.handleCreateGroup).Methods(http.MethodPost)
	r.HandleFunc("/cron_jobs/{group_id}", s.handleListJobs).Methods(http.MethodGet)
	r.HandleFunc("/cron_job/{group_id}", s.handleCreateJob).Methods(http.MethodPost)
	r.HandleFunc("/cron_job_status/{group_id}/{job_id}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/execute/cron_job/{group_id}", s.handleExecute).Methods(http.MethodGet)
	return r
}

func (s *Store) hooks(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.URL.Path]++
		s.mu.Unlock()

		if s.Delay != nil {
			if d := s.Delay(r); d > 0 {
				select {
				case <-time.After(d):
				case <-r.Context().Done():
					return
				}
			}
		}
		if s.Fail != nil {
			if code := s.Fail(r); code != 0 {
				http.Error(w, "injected failure", code)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Seeding and inspection
// ---------------------------------------------------------------------------

// AddGroup inserts a group and returns its id.
func (s *Store) AddGroup(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.groups = append(s.groups, [2]string{id, name})
	return id
}

// AddJob inserts a job with the given relations and returns its id.
func (s *Store) AddJob(groupID, name string, children, dependencies []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.Itoa(s.insertJobLocked(groupID, storedJob{
		Name:         name,
		Timings:      time.Now().UTC().Format(time.RFC3339),
		Children:     children,
		Dependencies: dependencies,
		S3Link:       "s3://artifacts/" + name,
	}))
}

// SetStatus records a status for a job.
func (s *Store) SetStatus(groupID, jobID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[groupID+"/"+jobID] = storedStatus{Status: status, UpdatedAt: time.Now().UTC()}
}

// JobNames returns the group's job names in creation order.
func (s *Store) JobNames(groupID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, j := range s.jobs[groupID] {
		out = append(out, j.Name)
	}
	return out
}

// Job returns a stored job by name.
func (s *Store) Job(groupID, name string) (children, dependencies []string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs[groupID] {
		if j.Name == name {
			return append([]string(nil), j.Children...), append([]string(nil), j.Dependencies...), true
		}
	}
	return nil, nil, false
}

// GroupNames returns every group name in creation order.
func (s *Store) GroupNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, g := range s.groups {
		out = append(out, g[1])
	}
	return out
}

// Executions returns how many times the group was executed.
func (s *Store) Executions(groupID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions[groupID]
}

// Requests returns how many requests hit path.
func (s *Store) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func (s *Store) insertJobLocked(groupID string, j storedJob) int {
	j.ID = s.nextJobID
	s.nextJobID++
	if j.Children == nil {
		j.Children = []string{}
	}
	if j.Dependencies == nil {
		j.Dependencies = []string{}
	}
	s.jobs[groupID] = append(s.jobs[groupID], j)
	return j.ID
}

func (s *Store) hasGroupLocked(id string) bool {
	for _, g := range s.groups {
		if g[0] == id {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Store) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([][2]string, len(s.groups))
	copy(out, s.groups)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Store) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupName string `json:"group_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := s.AddGroup(req.GroupName)
	writeJSON(w, http.StatusOK, map[string]string{"group_id": id, "group_name": req.GroupName})
}

func (s *Store) handleListJobs(w http.ResponseWriter, r *http.Request) {
	gid := mux.Vars(r)["group_id"]
	s.mu.Lock()
	out := append([]storedJob{}, s.jobs[gid]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Store) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	gid := mux.Vars(r)["group_id"]
	var req struct {
		Name         string            `json:"cron_job_name"`
		Timings      string            `json:"timings"`
		Children     []string          `json:"children_names"`
		Dependencies []json.RawMessage `json:"dependencies_names"`
		S3Link       string            `json:"s3_link"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := time.Parse(time.RFC3339, req.Timings); err != nil {
		http.Error(w, fmt.Sprintf("invalid timings: %v", err), http.StatusBadRequest)
		return
	}

	deps := make([]string, 0, len(req.Dependencies))
	for _, raw := range req.Dependencies {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			http.Error(w, "dependencies_names must be [name, generation] pairs", http.StatusBadRequest)
			return
		}
		var name string
		if err := json.Unmarshal(pair[0], &name); err != nil {
			http.Error(w, "dependency name must be a string", http.StatusBadRequest)
			return
		}
		deps = append(deps, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasGroupLocked(gid) {
		http.Error(w, "group not found", http.StatusNotFound)
		return
	}
	// Names resolve only against jobs that already exist in the group.
	existing := make(map[string]bool)
	for _, j := range s.jobs[gid] {
		existing[j.Name] = true
	}
	children := make([]string, 0, len(req.Children))
	for _, c := range req.Children {
		if existing[c] {
			children = append(children, c)
		}
	}
	resolved := make([]string, 0, len(deps))
	for _, d := range deps {
		if existing[d] {
			resolved = append(resolved, d)
		}
	}
	id := s.insertJobLocked(gid, storedJob{
		Name:         req.Name,
		Timings:      req.Timings,
		Children:     children,
		Dependencies: resolved,
		S3Link:       req.S3Link,
	})
	writeJSON(w, http.StatusOK, map[string]any{"cron_job_id": id, "group_id": gid})
}

func (s *Store) handleStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	gid, jid := vars["group_id"], vars["job_id"]
	s.mu.Lock()
	st, ok := s.statuses[gid+"/"+jid]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"job_id": jid, "group_id": gid, "status": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"job_id":     jid,
		"group_id":   gid,
		"status":     st.Status,
		"updated_at": st.UpdatedAt.Format(time.RFC3339Nano),
	})
}

func (s *Store) handleExecute(w http.ResponseWriter, r *http.Request) {
	gid := mux.Vars(r)["group_id"]
	if s.ExecuteStatus != 0 && s.ExecuteStatus != http.StatusOK {
		http.Error(w, "execution refused", s.ExecuteStatus)
		return
	}
	s.mu.Lock()
	s.executions[gid]++
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Workflow triggered"})
}
