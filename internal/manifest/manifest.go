// Package manifest declares a group and its jobs in YAML and applies the
// declaration to the backend in dependency order.
//
//	group: etl
//	jobs:
//	  - name: extract
//	    artifact: s3://artifacts/extract.tar
//	    timings: "0 3 * * *"
//	  - name: transform
//	    artifact: s3://artifacts/transform.tar
//	    dependencies: [extract]
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cronboard/cronboard/internal/form"
	"github.com/cronboard/cronboard/internal/graph"
	"github.com/cronboard/cronboard/internal/schema"
)

// JobSpec is one declared job.
type JobSpec struct {
	Name         string   `yaml:"name"`
	Artifact     string   `yaml:"artifact"`
	Timings      string   `yaml:"timings,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
	Children     []string `yaml:"children,omitempty"`
}

// Manifest is a group declaration. GroupID targets an existing group; when
// empty a new group named Group is created.
type Manifest struct {
	Group   string    `yaml:"group"`
	GroupID string    `yaml:"groupId,omitempty"`
	Jobs    []JobSpec `yaml:"jobs"`
}

// Parse decodes a manifest, rejecting unknown keys.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks required fields, unique names, known references and
// timings. All problems are reported together.
func (m *Manifest) Validate(now time.Time) error {
	var errs []error
	if strings.TrimSpace(m.Group) == "" && strings.TrimSpace(m.GroupID) == "" {
		errs = append(errs, &schema.ValidationError{Field: "group", Reason: "or groupId is required"})
	}
	if len(m.Jobs) == 0 {
		errs = append(errs, &schema.ValidationError{Field: "jobs", Reason: "must not be empty"})
	}

	seen := make(map[string]bool, len(m.Jobs))
	for i, j := range m.Jobs {
		name := strings.TrimSpace(j.Name)
		switch {
		case name == "":
			errs = append(errs, &schema.ValidationError{Field: fmt.Sprintf("jobs[%d].name", i)})
		case seen[name]:
			errs = append(errs, &schema.ValidationError{Field: fmt.Sprintf("jobs[%d].name", i), Reason: fmt.Sprintf("%q is declared twice", name)})
		}
		seen[name] = true
		if strings.TrimSpace(j.Artifact) == "" {
			errs = append(errs, &schema.ValidationError{Field: fmt.Sprintf("jobs[%d].artifact", i)})
		}
		if _, err := form.ParseTimings(j.Timings, now); err != nil {
			errs = append(errs, fmt.Errorf("jobs[%d]: %w", i, err))
		}
	}
	for i, j := range m.Jobs {
		for _, ref := range append(append([]string{}, j.Dependencies...), j.Children...) {
			if !seen[strings.TrimSpace(ref)] {
				errs = append(errs, &schema.ValidationError{
					Field:  fmt.Sprintf("jobs[%d]", i),
					Reason: fmt.Sprintf("references unknown job %q", ref),
				})
			}
		}
	}
	return errors.Join(errs...)
}

// Graph merges every job's dependencies and children into one edge set.
func (m *Manifest) Graph() (*graph.Graph, error) {
	g := graph.New()
	for _, j := range m.Jobs {
		g.AddNode(strings.TrimSpace(j.Name))
	}
	for _, j := range m.Jobs {
		name := strings.TrimSpace(j.Name)
		for _, d := range j.Dependencies {
			if err := g.AddEdge(strings.TrimSpace(d), name); err != nil {
				return nil, fmt.Errorf("job %q: %w", name, err)
			}
		}
		for _, c := range j.Children {
			if err := g.AddEdge(name, strings.TrimSpace(c)); err != nil {
				return nil, fmt.Errorf("job %q: %w", name, err)
			}
		}
	}
	return g, nil
}

// Plan validates the manifest and returns job declarations in creation
// order: every job comes after all of its dependencies.
func (m *Manifest) Plan(groupID string, now time.Time) ([]schema.JobDeclaration, error) {
	if err := m.Validate(now); err != nil {
		return nil, err
	}
	g, err := m.Graph()
	if err != nil {
		return nil, err
	}
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	specs := make(map[string]JobSpec, len(m.Jobs))
	for _, j := range m.Jobs {
		specs[strings.TrimSpace(j.Name)] = j
	}
	var decls []schema.JobDeclaration
	for _, name := range g.Order() {
		spec := specs[name]
		timings, _ := form.ParseTimings(spec.Timings, now)
		decls = append(decls, schema.JobDeclaration{
			GroupID:      groupID,
			Name:         name,
			ArtifactURL:  strings.TrimSpace(spec.Artifact),
			Timings:      timings,
			Children:     g.Children(name),
			Dependencies: schema.NewDependencyRefs(g.Dependencies(name)),
		})
	}
	return decls, nil
}

// Backend is the subset of the Graph Client that Apply needs.
type Backend interface {
	CreateGroup(ctx context.Context, name string) (schema.Group, error)
	ListJobs(ctx context.Context, groupID string) ([]schema.Job, error)
	CreateJob(ctx context.Context, decl schema.JobDeclaration) (schema.Job, error)
}

// Result summarizes an apply.
type Result struct {
	Group   schema.Group
	Created []schema.Job
	Skipped []string
}

// Apply creates the group (unless GroupID is set) and every job that does
// not exist yet, in dependency order. Jobs already present by name are
// skipped so a manifest can be re-applied.
func (m *Manifest) Apply(ctx context.Context, b Backend, now time.Time) (Result, error) {
	// Validate before any network call.
	if _, err := m.Plan("pending", now); err != nil {
		return Result{}, err
	}

	var res Result
	if gid := strings.TrimSpace(m.GroupID); gid != "" {
		res.Group = schema.Group{ID: gid, Name: m.Group}
	} else {
		g, err := b.CreateGroup(ctx, m.Group)
		if err != nil {
			return Result{}, fmt.Errorf("create group %q: %w", m.Group, err)
		}
		res.Group = g
		slog.Info("manifest: group created", "group", g.ID, "name", g.Name)
	}

	decls, err := m.Plan(res.Group.ID, now)
	if err != nil {
		return res, err
	}
	existing, err := b.ListJobs(ctx, res.Group.ID)
	if err != nil {
		return res, fmt.Errorf("list jobs: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, j := range existing {
		have[j.Name] = true
	}

	for _, d := range decls {
		if have[d.Name] {
			res.Skipped = append(res.Skipped, d.Name)
			continue
		}
		job, err := b.CreateJob(ctx, d)
		if err != nil {
			return res, fmt.Errorf("create job %q: %w", d.Name, err)
		}
		res.Created = append(res.Created, job)
		slog.Info("manifest: job created", "group", res.Group.ID, "job", job.ID, "name", d.Name)
	}
	return res, nil
}
