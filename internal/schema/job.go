package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DependencyRef names an upstream job. Generation is reserved for telling
// same-named jobs apart and is always 0 for now.
type DependencyRef struct {
	Name       string `json:"name"`
	Generation int    `json:"generation"`
}

// NewDependencyRefs tags every name with generation 0.
func NewDependencyRefs(names []string) []DependencyRef {
	refs := make([]DependencyRef, 0, len(names))
	for _, n := range names {
		refs = append(refs, DependencyRef{Name: n})
	}
	return refs
}

// MarshalJSON encodes the ref as the [name, generation] pair the backend expects.
func (d DependencyRef) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{d.Name, d.Generation})
}

// UnmarshalJSON accepts a plain name (or id), a [name, generation] pair, or an
// object with name/generation keys.
func (d *DependencyRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty dependency")
	}
	switch data[0] {
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if len(pair) == 0 || len(pair) > 2 {
			return fmt.Errorf("dependency pair must have 1 or 2 elements, got %d", len(pair))
		}
		name, err := decodeID(pair[0])
		if err != nil {
			return fmt.Errorf("dependency name: %w", err)
		}
		gen := 0
		if len(pair) == 2 {
			if err := json.Unmarshal(pair[1], &gen); err != nil {
				return fmt.Errorf("dependency generation: %w", err)
			}
		}
		*d = DependencyRef{Name: name, Generation: gen}
	case '{':
		var wire struct {
			Name       string `json:"name"`
			ParentName string `json:"parent_name"`
			Generation int    `json:"generation"`
			Epoch      int    `json:"epoch"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		name := wire.Name
		if name == "" {
			name = wire.ParentName
		}
		gen := wire.Generation
		if gen == 0 {
			gen = wire.Epoch
		}
		*d = DependencyRef{Name: name, Generation: gen}
	default:
		name, err := decodeID(data)
		if err != nil {
			return fmt.Errorf("dependency: %w", err)
		}
		*d = DependencyRef{Name: name}
	}
	return nil
}

// Job is a cron job as reported by the backend. Children and Dependencies
// hold job names (or ids) and describe the same graph from two directions.
type Job struct {
	ID           string          `json:"cron_job_id"`
	Name         string          `json:"cron_job_name"`
	GroupID      string          `json:"group_id,omitempty"`
	ArtifactURL  string          `json:"s3_link,omitempty"`
	Children     []string        `json:"children"`
	Dependencies []DependencyRef `json:"dependencies"`
	Timings      string          `json:"timings,omitempty"`
}

// DependencyNames returns the upstream job names in declared order.
func (j Job) DependencyNames() []string { return refNames(j.Dependencies) }

func refNames(refs []DependencyRef) []string {
	names := make([]string, 0, len(refs))
	for _, d := range refs {
		names = append(names, d.Name)
	}
	return names
}

// UnmarshalJSON accepts the canonical backend shape as well as the field
// names used by the placeholder route handlers (job_id, job_name, dockerfile_url).
func (j *Job) UnmarshalJSON(data []byte) error {
	var wire struct {
		CronJobID     json.RawMessage   `json:"cron_job_id"`
		JobID         json.RawMessage   `json:"job_id"`
		CronJobName   string            `json:"cron_job_name"`
		JobName       string            `json:"job_name"`
		GroupID       json.RawMessage   `json:"group_id"`
		S3Link        *string           `json:"s3_link"`
		DockerfileURL string            `json:"dockerfile_url"`
		Children      []json.RawMessage `json:"children"`
		Dependencies  []DependencyRef   `json:"dependencies"`
		Timings       json.RawMessage   `json:"timings"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	id, err := firstID(wire.CronJobID, wire.JobID)
	if err != nil {
		return fmt.Errorf("job id: %w", err)
	}
	groupID, err := decodeID(wire.GroupID)
	if err != nil {
		return fmt.Errorf("job group id: %w", err)
	}

	children := make([]string, 0, len(wire.Children))
	for _, raw := range wire.Children {
		c, err := decodeID(raw)
		if err != nil {
			return fmt.Errorf("job child: %w", err)
		}
		if c != "" {
			children = append(children, c)
		}
	}

	name := wire.CronJobName
	if name == "" {
		name = wire.JobName
	}
	artifact := wire.DockerfileURL
	if wire.S3Link != nil && *wire.S3Link != "" {
		artifact = *wire.S3Link
	}

	deps := wire.Dependencies
	if deps == nil {
		deps = []DependencyRef{}
	}

	*j = Job{
		ID:           id,
		Name:         name,
		GroupID:      groupID,
		ArtifactURL:  artifact,
		Children:     children,
		Dependencies: deps,
		Timings:      decodeTimings(wire.Timings),
	}
	return nil
}

// decodeTimings keeps timings opaque: strings pass through, anything else is
// kept as its raw JSON text.
func decodeTimings(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// JobDeclaration is a validated, normalized request to create a job.
type JobDeclaration struct {
	GroupID      string
	Name         string
	ArtifactURL  string
	Timings      time.Time
	Children     []string
	Dependencies []DependencyRef
}

// DependencyNames returns the upstream job names in declared order.
func (d JobDeclaration) DependencyNames() []string { return refNames(d.Dependencies) }
