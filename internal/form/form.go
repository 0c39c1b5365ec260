// Package form turns raw user input into validated declarations.
package form

import (
	"strings"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/cronboard/cronboard/internal/schema"
	"github.com/cronboard/cronboard/internal/shared/stringutils"
)

// cronParser accepts standard five-field expressions and descriptors such as @hourly.
var cronParser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

// SplitNames splits a comma-separated list, trimming tokens and dropping
// empty ones. Order is preserved and duplicates are kept.
func SplitNames(s string) []string {
	out := []string{}
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// JobForm holds the raw text fields of the job declaration form.
type JobForm struct {
	Name         string `json:"name" yaml:"name"`
	ArtifactURL  string `json:"artifact" yaml:"artifact"`
	Children     string `json:"children" yaml:"children"`
	Dependencies string `json:"dependencies" yaml:"dependencies"`
	Timings      string `json:"timings" yaml:"timings"`
}

// Parse validates the form and produces a declaration for groupID. A blank
// name or artifact yields a *schema.ValidationError; callers treat that as a
// silent no-op.
func (f JobForm) Parse(groupID string, now time.Time) (schema.JobDeclaration, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return schema.JobDeclaration{}, &schema.ValidationError{Field: "name"}
	}
	artifact := strings.TrimSpace(f.ArtifactURL)
	if artifact == "" {
		return schema.JobDeclaration{}, &schema.ValidationError{Field: "artifact"}
	}
	if strings.TrimSpace(groupID) == "" {
		return schema.JobDeclaration{}, &schema.ValidationError{Field: "group"}
	}
	timings, err := ParseTimings(f.Timings, now)
	if err != nil {
		return schema.JobDeclaration{}, err
	}
	return schema.JobDeclaration{
		GroupID:      groupID,
		Name:         name,
		ArtifactURL:  artifact,
		Timings:      timings,
		Children:     SplitNames(f.Children),
		Dependencies: schema.NewDependencyRefs(SplitNames(f.Dependencies)),
	}, nil
}

// ParseTimings resolves the timings field. Blank means now; an RFC3339
// timestamp is used as given; a cron expression resolves to its next
// activation after now.
func ParseTimings(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	sched, err := cronParser.Parse(raw)
	if err != nil {
		return time.Time{}, &schema.ValidationError{
			Field:  "timings",
			Reason: "must be blank, an RFC3339 timestamp or a cron expression (" + stringutils.Truncate(err.Error(), 80) + ")",
		}
	}
	return sched.Next(now).UTC(), nil
}

// GroupForm holds the raw group creation input.
type GroupForm struct {
	Name string `json:"name" yaml:"name"`
}

// Parse returns the trimmed group name.
func (f GroupForm) Parse() (string, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return "", &schema.ValidationError{Field: "name"}
	}
	return name, nil
}
