package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the observed execution state of a job.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ParseStatus maps a backend status string onto the known set. Anything
// unrecognized, including "not found", is unknown.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusRunning:
		return StatusRunning
	case StatusCompleted:
		return StatusCompleted
	case StatusFailed:
		return StatusFailed
	}
	return StatusUnknown
}

// Terminal reports whether the status is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobStatus is a read-only projection fetched per job on each poll.
type JobStatus struct {
	JobID     string     `json:"job_id"`
	GroupID   string     `json:"group_id"`
	Status    Status     `json:"status"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// UnknownStatus is the well-formed status used before anything is observed.
func UnknownStatus(groupID, jobID string) JobStatus {
	return JobStatus{JobID: jobID, GroupID: groupID, Status: StatusUnknown}
}

// Equal compares two statuses including the update timestamp.
func (s JobStatus) Equal(o JobStatus) bool {
	if s.JobID != o.JobID || s.GroupID != o.GroupID || s.Status != o.Status {
		return false
	}
	switch {
	case s.UpdatedAt == nil && o.UpdatedAt == nil:
		return true
	case s.UpdatedAt == nil || o.UpdatedAt == nil:
		return false
	}
	return s.UpdatedAt.Equal(*o.UpdatedAt)
}

// timestamp layouts seen from the backend: RFC3339 for timestamptz columns and
// a zoneless form for plain timestamp columns (treated as UTC).
var updatedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseUpdatedAt(s string) (*time.Time, error) {
	for _, layout := range updatedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON normalizes the status value and accepts numeric ids.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var wire struct {
		JobID     json.RawMessage `json:"job_id"`
		CronJobID json.RawMessage `json:"cron_job_id"`
		GroupID   json.RawMessage `json:"group_id"`
		Status    string          `json:"status"`
		UpdatedAt *string         `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	jobID, err := firstID(wire.JobID, wire.CronJobID)
	if err != nil {
		return fmt.Errorf("status job id: %w", err)
	}
	groupID, err := decodeID(wire.GroupID)
	if err != nil {
		return fmt.Errorf("status group id: %w", err)
	}
	out := JobStatus{JobID: jobID, GroupID: groupID, Status: ParseStatus(wire.Status)}
	if wire.UpdatedAt != nil && *wire.UpdatedAt != "" {
		t, err := parseUpdatedAt(*wire.UpdatedAt)
		if err != nil {
			return err
		}
		out.UpdatedAt = t
	}
	*s = out
	return nil
}
