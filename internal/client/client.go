// Package client talks to the job-scheduling backend over HTTP.
//
// The client is stateless: it never caches what it reads or writes. Callers
// re-fetch after creating groups or jobs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cronboard/cronboard/internal/schema"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "cronboard (go)"
	maxErrorBody     = 512
)

// Client is a Graph Client bound to one backend base URL.
type Client struct {
	baseURL    string
	routes     Routes
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRoutes overrides route templates; blank entries keep their defaults.
func WithRoutes(r Routes) Option {
	return func(c *Client) { c.routes = r.withDefaults() }
}

// WithTimeout sets the per-request timeout. It is applied to a copy of the
// http.Client, so a client passed through WithHTTPClient is never modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New creates a Client. baseURL must not have a trailing slash; one is
// trimmed if present.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		routes:     DefaultRoutes(),
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  defaultUserAgent,
	}
	for _, o := range opts {
		o(c)
	}
	if c.timeout > 0 && c.httpClient.Timeout != c.timeout {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// ---------------------------------------------------------------------------
// Groups
// ---------------------------------------------------------------------------

// ListGroups returns every group. An empty list is valid.
func (c *Client) ListGroups(ctx context.Context) ([]schema.Group, error) {
	const op = "list groups"
	var groups []schema.Group
	if _, err := c.doJSON(ctx, op, http.MethodGet, c.routes.ListGroups, nil, &groups); err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []schema.Group{}
	}
	return groups, nil
}

// CreateGroup creates a group. A blank name is rejected before any I/O.
func (c *Client) CreateGroup(ctx context.Context, name string) (schema.Group, error) {
	const op = "create group"
	name = strings.TrimSpace(name)
	if name == "" {
		return schema.Group{}, &schema.ValidationError{Field: "group_name"}
	}
	body := map[string]string{"group_name": name}
	var g schema.Group
	if _, err := c.doJSON(ctx, op, http.MethodPost, c.routes.CreateGroup, body, &g); err != nil {
		return schema.Group{}, err
	}
	if g.Name == "" {
		g.Name = name
	}
	return g, nil
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// ListJobs returns the authoritative job list of a group.
func (c *Client) ListJobs(ctx context.Context, groupID string) ([]schema.Job, error) {
	const op = "list jobs"
	if strings.TrimSpace(groupID) == "" {
		return nil, &schema.ValidationError{Field: "group_id"}
	}
	var jobs []schema.Job
	path := expand(c.routes.ListJobs, groupID, "")
	if _, err := c.doJSON(ctx, op, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []schema.Job{}
	}
	for i := range jobs {
		if jobs[i].GroupID == "" {
			jobs[i].GroupID = groupID
		}
	}
	return jobs, nil
}

type createJobRequest struct {
	Name         string                 `json:"cron_job_name"`
	Timings      string                 `json:"timings"`
	Children     []string               `json:"children_names"`
	Dependencies []schema.DependencyRef `json:"dependencies_names"`
	ArtifactURL  string                 `json:"s3_link"`
}

// CreateJob declares a job. Children and dependencies are sent by name; the
// backend resolves them against jobs that already exist in the group.
func (c *Client) CreateJob(ctx context.Context, decl schema.JobDeclaration) (schema.Job, error) {
	const op = "create job"
	if err := validateDeclaration(decl); err != nil {
		return schema.Job{}, err
	}

	children := decl.Children
	if children == nil {
		children = []string{}
	}
	deps := decl.Dependencies
	if deps == nil {
		deps = []schema.DependencyRef{}
	}
	timings := decl.Timings
	if timings.IsZero() {
		timings = time.Now()
	}
	body := createJobRequest{
		Name:         decl.Name,
		Timings:      timings.UTC().Format(time.RFC3339),
		Children:     children,
		Dependencies: deps,
		ArtifactURL:  decl.ArtifactURL,
	}

	var created struct {
		CronJobID json.RawMessage `json:"cron_job_id"`
		JobID     json.RawMessage `json:"job_id"`
		GroupID   json.RawMessage `json:"group_id"`
	}
	path := expand(c.routes.CreateJob, decl.GroupID, "")
	if _, err := c.doJSON(ctx, op, http.MethodPost, path, body, &created); err != nil {
		return schema.Job{}, err
	}

	// Reuse the job decoder so numeric and string ids are handled the same way.
	var ids schema.Job
	idDoc, _ := json.Marshal(map[string]json.RawMessage{
		"cron_job_id": nonNull(created.CronJobID),
		"job_id":      nonNull(created.JobID),
		"group_id":    nonNull(created.GroupID),
	})
	if err := json.Unmarshal(idDoc, &ids); err != nil {
		return schema.Job{}, &schema.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	groupID := ids.GroupID
	if groupID == "" {
		groupID = decl.GroupID
	}
	return schema.Job{
		ID:           ids.ID,
		Name:         decl.Name,
		GroupID:      groupID,
		ArtifactURL:  decl.ArtifactURL,
		Children:     append([]string{}, children...),
		Dependencies: append([]schema.DependencyRef{}, deps...),
		Timings:      body.Timings,
	}, nil
}

func validateDeclaration(d schema.JobDeclaration) error {
	switch {
	case strings.TrimSpace(d.GroupID) == "":
		return &schema.ValidationError{Field: "group_id"}
	case strings.TrimSpace(d.Name) == "":
		return &schema.ValidationError{Field: "cron_job_name"}
	case strings.TrimSpace(d.ArtifactURL) == "":
		return &schema.ValidationError{Field: "s3_link"}
	}
	return nil
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// ---------------------------------------------------------------------------
// Status and execution
// ---------------------------------------------------------------------------

// FetchJobStatus reads the status of one job. A missing record (either a 404
// or a "not found" body) is reported as a well-formed unknown status.
func (c *Client) FetchJobStatus(ctx context.Context, groupID, jobID string) (schema.JobStatus, error) {
	const op = "fetch job status"
	path := expand(c.routes.JobStatus, groupID, jobID)
	var st schema.JobStatus
	code, err := c.doJSON(ctx, op, http.MethodGet, path, nil, &st)
	if code == http.StatusNotFound {
		return schema.UnknownStatus(groupID, jobID), nil
	}
	if err != nil {
		return schema.JobStatus{}, err
	}
	if st.JobID == "" {
		st.JobID = jobID
	}
	if st.GroupID == "" {
		st.GroupID = groupID
	}
	return st, nil
}

// TriggerExecution asks the backend to run every job in the group. The
// response body is ignored on success.
func (c *Client) TriggerExecution(ctx context.Context, groupID string) error {
	const op = "execute group"
	if strings.TrimSpace(groupID) == "" {
		return &schema.ValidationError{Field: "group_id"}
	}
	path := expand(c.routes.Execute, groupID, "")
	resp, reqID, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("client: execution rejected", "group", groupID, "status", resp.StatusCode, "request_id", reqID)
		return &schema.ExecutionTriggerError{
			GroupID:    groupID,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	slog.Info("client: execution triggered", "group", groupID, "request_id", reqID)
	return nil
}

// Ping checks that the backend answers its root route.
func (c *Client) Ping(ctx context.Context) error {
	const op = "ping"
	resp, _, err := c.do(ctx, op, http.MethodGet, c.routes.Health, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &schema.TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) do(ctx context.Context, op, method, path string, body any) (*http.Response, string, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", &schema.TransportError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, "", &schema.TransportError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, reqID, &schema.TransportError{Op: op, Err: err}
	}
	slog.Debug("client: request",
		"op", op, "method", method, "path", path,
		"status", resp.StatusCode, "request_id", reqID, "elapsed", time.Since(start))
	return resp, reqID, nil
}

// doJSON performs the request and decodes a 2xx body into out. The HTTP status
// code is returned whenever a response was received.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) (int, error) {
	resp, _, err := c.do(ctx, op, method, path, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &schema.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, &schema.TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, &schema.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.StatusCode, nil
}
