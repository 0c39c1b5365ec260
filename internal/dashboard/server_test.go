package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/cronboard/cronboard/internal/client"
	"github.com/cronboard/cronboard/internal/client/clienttest"
	"github.com/cronboard/cronboard/internal/health"
	"github.com/cronboard/cronboard/internal/scheduler"
	"github.com/cronboard/cronboard/internal/schema"
	"github.com/cronboard/cronboard/internal/synchronizer"
)

// ─── Fakes ─────────────────────────────────────────────────────────────────

type fakeBackend struct {
	mu         sync.Mutex
	groups     []string
	decls      []schema.JobDeclaration
	executed   []string
	createErr  error
	executeErr error
}

func (b *fakeBackend) CreateGroup(_ context.Context, name string) (schema.Group, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return schema.Group{}, b.createErr
	}
	b.groups = append(b.groups, name)
	return schema.Group{ID: "g-" + name, Name: name}, nil
}

func (b *fakeBackend) CreateJob(_ context.Context, d schema.JobDeclaration) (schema.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return schema.Job{}, b.createErr
	}
	b.decls = append(b.decls, d)
	return schema.Job{ID: "1", Name: d.Name, GroupID: d.GroupID}, nil
}

func (b *fakeBackend) TriggerExecution(_ context.Context, gid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executed = append(b.executed, gid)
	return b.executeErr
}

type fakeState struct {
	mu             sync.Mutex
	view           synchronizer.View
	selects        []string
	groupRefreshes int
	jobRefreshes   int
	subs           []chan synchronizer.View
}

func (f *fakeState) Snapshot() synchronizer.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeState) Subscribe() (<-chan synchronizer.View, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan synchronizer.View, 1)
	ch <- f.view
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeState) publish(v synchronizer.View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view = v
	for _, ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func (f *fakeState) Select(gid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selects = append(f.selects, gid)
	f.view.SelectedGroup = gid
}

func (f *fakeState) Deselect() { f.Select("") }

func (f *fakeState) RefreshGroups(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupRefreshes++
	return nil
}

func (f *fakeState) RefreshJobs(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobRefreshes++
	return nil
}

type staticHealth health.Status

func (h staticHealth) Status() health.Status { return health.Status(h) }

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, view synchronizer.View) (*Server, *fakeBackend, *fakeState) {
	t.Helper()
	b := &fakeBackend{}
	st := &fakeState{view: view}
	s := New(b, st, Options{Now: func() time.Time { return testNow }})
	return s, b, st
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func postForm(t *testing.T, h http.Handler, path string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("POST %s: expected 303, got %d", path, rec.Code)
	}
	return rec
}

func twoJobView() synchronizer.View {
	return synchronizer.View{
		Groups:        []schema.Group{{ID: "g1", Name: "nightly"}, {ID: "g2", Name: "hourly"}},
		SelectedGroup: "g1",
		Jobs: []schema.Job{
			{ID: "1", Name: "build", Children: []string{"deploy"}, Dependencies: []schema.DependencyRef{}},
			{ID: "2", Name: "deploy", Children: []string{}, Dependencies: []schema.DependencyRef{}},
		},
		Statuses: map[string]schema.JobStatus{
			"1": {JobID: "1", GroupID: "g1", Status: schema.StatusCompleted},
		},
		Version: 3,
	}
}

// ─── View model ────────────────────────────────────────────────────────────

func TestBadgeClass(t *testing.T) {
	cases := map[schema.Status]string{
		schema.StatusCompleted: "badge-completed",
		schema.StatusRunning:   "badge-running",
		schema.StatusFailed:    "badge-failed",
		schema.StatusUnknown:   "badge-unknown",
		schema.Status("queued"):  "badge-unknown",
	}
	for st, want := range cases {
		if got := BadgeClass(st); got != want {
			t.Errorf("BadgeClass(%q) = %q, want %q", st, got, want)
		}
	}
}

func TestBuildPage_RelationsFromMergedEdges(t *testing.T) {
	p := BuildPage(twoJobView(), health.Status{})
	if p.Selected == nil || p.Selected.Name != "nightly" {
		t.Fatalf("unexpected selection %+v", p.Selected)
	}
	// deploy declares no dependencies, but build lists it as a child.
	if diff := cmp.Diff([]string{"build"}, p.Jobs[1].Dependencies); diff != "" {
		t.Errorf("deploy dependencies (-want +got):\n%s", diff)
	}
	if p.Jobs[0].Badge != "badge-completed" || p.Jobs[1].Status != schema.StatusUnknown {
		t.Errorf("unexpected statuses %+v", p.Jobs)
	}
}

func TestBuildPage_SelectedBeforeGroupsLoaded(t *testing.T) {
	p := BuildPage(synchronizer.View{SelectedGroup: "g9"}, health.Status{})
	if p.Selected == nil || p.Selected.ID != "g9" {
		t.Fatalf("expected placeholder selection, got %+v", p.Selected)
	}
	if p.Jobs == nil || p.Groups == nil {
		t.Error("expected non-nil slices for JSON")
	}
}

// ─── Rendering ─────────────────────────────────────────────────────────────

func TestIndex_ZeroJobsRendersNoBadges(t *testing.T) {
	s, _, _ := newTestServer(t, synchronizer.View{
		Groups:        []schema.Group{{ID: "g1", Name: "empty"}},
		SelectedGroup: "g1",
		Jobs:          []schema.Job{},
		Statuses:      map[string]schema.JobStatus{},
	})
	rec := get(t, s.Handler(), "/")
	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if strings.Contains(body, `class="badge`) || strings.Contains(body, `class="job"`) {
		t.Error("expected no job items or badges for an empty group")
	}
	if !strings.Contains(body, "No jobs in this group.") {
		t.Error("expected empty-group message")
	}
}

func TestIndex_UnknownStatusBadge(t *testing.T) {
	s, _, _ := newTestServer(t, twoJobView())
	body := get(t, s.Handler(), "/").Body.String()
	for _, want := range []string{
		`class="badge badge-completed"`,
		`class="badge badge-unknown"`,
		`action="/groups/g1/execute"`,
		"depends on: build",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page does not contain %q", want)
		}
	}
}

func TestIndex_HealthShown(t *testing.T) {
	b := &fakeBackend{}
	st := &fakeState{view: twoJobView()}
	h := staticHealth{Reachable: false, LastError: "connection refused", CheckedAt: testNow}
	s := New(b, st, Options{Health: h})
	body := get(t, s.Handler(), "/").Body.String()
	if !strings.Contains(body, "unreachable: connection refused") {
		t.Error("expected health line in page")
	}
}

func TestState_JSON(t *testing.T) {
	s, _, _ := newTestServer(t, twoJobView())
	rec := get(t, s.Handler(), "/api/state")
	var p Page
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Version != 3 || len(p.Jobs) != 2 || p.Jobs[0].Name != "build" {
		t.Errorf("unexpected state %+v", p)
	}
}

// ─── Mutations ─────────────────────────────────────────────────────────────

func TestCreateGroup_RefreshesGroups(t *testing.T) {
	s, b, st := newTestServer(t, synchronizer.View{})
	postForm(t, s.Handler(), "/groups", url.Values{"name": {" nightly "}})
	if diff := cmp.Diff([]string{"nightly"}, b.groups); diff != "" {
		t.Errorf("created groups (-want +got):\n%s", diff)
	}
	if st.groupRefreshes != 1 {
		t.Errorf("expected one group refresh, got %d", st.groupRefreshes)
	}
}

func TestCreateGroup_BlankIsNoop(t *testing.T) {
	s, b, st := newTestServer(t, synchronizer.View{})
	postForm(t, s.Handler(), "/groups", url.Values{"name": {"   "}})
	if len(b.groups) != 0 || st.groupRefreshes != 0 {
		t.Error("blank group name must not reach the backend")
	}
	if body := get(t, s.Handler(), "/").Body.String(); strings.Contains(body, `class="flash"`) {
		t.Error("blank name must not set a flash message")
	}
}

func TestCreateJob_NormalizesAndRefreshes(t *testing.T) {
	s, b, st := newTestServer(t, twoJobView())
	postForm(t, s.Handler(), "/groups/g1/jobs", url.Values{
		"name":         {" test "},
		"artifact":     {"http://x/Dockerfile"},
		"children":     {"b, ,c"},
		"dependencies": {" a ,"},
	})
	if len(b.decls) != 1 {
		t.Fatalf("expected one declaration, got %d", len(b.decls))
	}
	d := b.decls[0]
	if d.Name != "test" || d.GroupID != "g1" || !d.Timings.Equal(testNow) {
		t.Errorf("unexpected declaration %+v", d)
	}
	if diff := cmp.Diff([]string{"b", "c"}, d.Children); diff != "" {
		t.Errorf("children (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]schema.DependencyRef{{Name: "a", Generation: 0}}, d.Dependencies); diff != "" {
		t.Errorf("dependencies (-want +got):\n%s", diff)
	}
	if st.jobRefreshes != 1 {
		t.Errorf("expected a job refresh, got %d", st.jobRefreshes)
	}
}

func TestCreateJob_OtherGroupKeepsSelection(t *testing.T) {
	s, b, st := newTestServer(t, twoJobView())
	postForm(t, s.Handler(), "/groups/g2/jobs", url.Values{
		"name":     {"report"},
		"artifact": {"http://x/Dockerfile"},
	})
	if len(b.decls) != 1 || b.decls[0].GroupID != "g2" {
		t.Fatalf("expected one declaration for g2, got %+v", b.decls)
	}
	if len(st.selects) != 0 {
		t.Errorf("selection must not change, got selects %v", st.selects)
	}
	if st.jobRefreshes != 0 {
		t.Errorf("expected no refresh of the selected group, got %d", st.jobRefreshes)
	}
	if got := st.Snapshot().SelectedGroup; got != "g1" {
		t.Errorf("selected group = %q, want g1", got)
	}
}

func TestCreateJob_BlankFieldsSilent(t *testing.T) {
	s, b, st := newTestServer(t, twoJobView())
	postForm(t, s.Handler(), "/groups/g1/jobs", url.Values{"name": {"x"}, "artifact": {" "}})
	if len(b.decls) != 0 || st.jobRefreshes != 0 {
		t.Error("blank artifact must not reach the backend")
	}
	if body := get(t, s.Handler(), "/").Body.String(); strings.Contains(body, `class="flash"`) {
		t.Error("expected no flash for a blank field")
	}
}

func TestCreateJob_BadTimingsFlashes(t *testing.T) {
	s, b, _ := newTestServer(t, twoJobView())
	postForm(t, s.Handler(), "/groups/g1/jobs", url.Values{
		"name": {"x"}, "artifact": {"http://x"}, "timings": {"someday"},
	})
	if len(b.decls) != 0 {
		t.Error("invalid timings must not reach the backend")
	}
	if body := get(t, s.Handler(), "/").Body.String(); !strings.Contains(body, `<div class="flash">timings`) {
		t.Error("expected a timings flash message")
	}
}

func TestExecute_ErrorFlashOnce(t *testing.T) {
	s, b, st := newTestServer(t, twoJobView())
	b.executeErr = &schema.ExecutionTriggerError{GroupID: "g1", StatusCode: 500}
	h := s.Handler()
	postForm(t, h, "/groups/g1/execute", nil)

	first := get(t, h, "/").Body.String()
	if !strings.Contains(first, `class="flash"`) || !strings.Contains(first, "not triggered") {
		t.Error("expected error flash after failed execute")
	}
	if second := get(t, h, "/").Body.String(); strings.Contains(second, `class="flash"`) {
		t.Error("flash must be shown only once")
	}
	if len(st.selects) != 0 || st.jobRefreshes != 0 {
		t.Error("execute must not touch synchronized state")
	}
}

func TestCreateGroup_BackendErrorFlashes(t *testing.T) {
	s, b, st := newTestServer(t, synchronizer.View{})
	b.createErr = errors.New("backend down")
	h := s.Handler()
	postForm(t, h, "/groups", url.Values{"name": {"nightly"}})
	if !strings.Contains(get(t, h, "/").Body.String(), "backend down") {
		t.Error("expected backend error in flash")
	}
	if st.groupRefreshes != 0 {
		t.Error("failed create must not refresh")
	}
}

func TestSelectAndDeselect(t *testing.T) {
	s, _, st := newTestServer(t, synchronizer.View{})
	h := s.Handler()
	postForm(t, h, "/groups/g2/select", nil)
	postForm(t, h, "/deselect", nil)
	if diff := cmp.Diff([]string{"g2", ""}, st.selects); diff != "" {
		t.Errorf("selects (-want +got):\n%s", diff)
	}
}

// ─── CORS ──────────────────────────────────────────────────────────────────

func TestCORS_Preflight(t *testing.T) {
	b, st := &fakeBackend{}, &fakeState{}
	h := New(b, st, Options{AllowedOrigins: []string{"http://localhost:3000"}}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/state", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestOriginAllowed(t *testing.T) {
	if !originAllowed(nil, "", "x") {
		t.Error("missing origin should be allowed")
	}
	if !originAllowed(nil, "http://127.0.0.1:8090", "127.0.0.1:8090") {
		t.Error("same host should be allowed")
	}
	if !originAllowed([]string{"*"}, "http://any", "127.0.0.1:8090") {
		t.Error("wildcard should allow everything")
	}
	if originAllowed([]string{"http://a"}, "http://b", "127.0.0.1:8090") {
		t.Error("unlisted origin should be rejected")
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────────────

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPage(t *testing.T, conn *websocket.Conn) Page {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var p Page
	if err := conn.ReadJSON(&p); err != nil {
		t.Fatalf("read: %v", err)
	}
	return p
}

func TestWS_PushesOnChange(t *testing.T) {
	s, _, st := newTestServer(t, twoJobView())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dialWS(t, srv)

	if p := readPage(t, conn); p.Version != 3 {
		t.Fatalf("initial version %d", p.Version)
	}
	v := twoJobView()
	v.Version = 4
	v.Statuses["2"] = schema.JobStatus{JobID: "2", GroupID: "g1", Status: schema.StatusFailed}
	st.publish(v)

	p := readPage(t, conn)
	if p.Version != 4 || p.Jobs[1].Badge != "badge-failed" {
		t.Errorf("unexpected pushed page %+v", p)
	}
}

func TestWS_HealthChangePushes(t *testing.T) {
	s, _, _ := newTestServer(t, twoJobView())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dialWS(t, srv)
	// The first page is written after the watcher is registered.
	readPage(t, conn)
	s.HealthChanged(health.Status{})
	if p := readPage(t, conn); p.Version != 3 {
		t.Errorf("unexpected page %+v", p)
	}
}

func TestWS_ClosedOnShutdown(t *testing.T) {
	s, _, _ := newTestServer(t, twoJobView())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dialWS(t, srv)
	readPage(t, conn)

	s.shutdownStreams()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}

// ─── End to end ────────────────────────────────────────────────────────────

func TestEndToEnd_SelectShowsBackendJobs(t *testing.T) {
	store, backendSrv := clienttest.NewServer(t)
	gid := store.AddGroup("nightly")
	jid := store.AddJob(gid, "build", nil, nil)
	store.SetStatus(gid, jid, "running")

	c := client.New(backendSrv.URL, client.WithTimeout(2*time.Second))
	sched := scheduler.New(context.Background())
	defer sched.StopAll()
	syn := synchronizer.New(c, sched, synchronizer.Options{
		JobsInterval:   20 * time.Millisecond,
		StatusInterval: 20 * time.Millisecond,
	})
	defer syn.Close()

	h := New(c, syn, Options{}).Handler()
	postForm(t, h, "/groups", url.Values{"name": {"hourly"}})
	postForm(t, h, "/groups/"+gid+"/select", nil)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var p Page
		rec := get(t, h, "/api/state")
		body, _ := io.ReadAll(rec.Body)
		if err := json.Unmarshal(body, &p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(p.Groups) == 2 && len(p.Jobs) == 1 && p.Jobs[0].Badge == "badge-running" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dashboard never showed the running job: %+v", p)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
