// Package graph keeps the job dependency graph as a single directed edge set.
//
// A job's children and its dependencies are two views of the same edges:
// "A lists B as a child" and "B lists A as a dependency" both become the edge
// A -> B. Duplicates collapse.
package graph

import (
	"fmt"
	"strings"

	"github.com/cronboard/cronboard/internal/schema"
)

// Graph is a directed graph over job names. Node and edge iteration follows
// insertion order so rendering and ordering are deterministic.
type Graph struct {
	nodes    []string
	index    map[string]int
	children map[string][]string
	parents  map[string][]string
	edges    map[[2]string]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		index:    make(map[string]int),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
		edges:    make(map[[2]string]struct{}),
	}
}

// FromJobs merges the children and dependency lists of every job into one
// edge set. Edges that would be self loops are skipped.
func FromJobs(jobs []schema.Job) *Graph {
	g := New()
	for _, j := range jobs {
		g.AddNode(j.Name)
	}
	for _, j := range jobs {
		for _, c := range j.Children {
			_ = g.AddEdge(j.Name, c)
		}
		for _, d := range j.Dependencies {
			_ = g.AddEdge(d.Name, j.Name)
		}
	}
	return g
}

// AddNode registers a node; adding an existing node is a no-op.
func (g *Graph) AddNode(name string) {
	if name == "" {
		return
	}
	if _, ok := g.index[name]; ok {
		return
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, name)
}

// AddEdge adds parent -> child, registering both nodes.
func (g *Graph) AddEdge(parent, child string) error {
	if parent == "" || child == "" {
		return fmt.Errorf("graph: edge endpoints must be non-empty")
	}
	if parent == child {
		return fmt.Errorf("graph: self edge on %q", parent)
	}
	g.AddNode(parent)
	g.AddNode(child)
	key := [2]string{parent, child}
	if _, ok := g.edges[key]; ok {
		return nil
	}
	g.edges[key] = struct{}{}
	g.children[parent] = append(g.children[parent], child)
	g.parents[child] = append(g.parents[child], parent)
	return nil
}

// Has reports whether name is a node.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Children returns the direct downstream jobs of name.
func (g *Graph) Children(name string) []string {
	return append([]string(nil), g.children[name]...)
}

// Dependencies returns the direct upstream jobs of name.
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.parents[name]...)
}

// Roots returns nodes with no dependencies.
func (g *Graph) Roots() []string {
	var out []string
	for _, n := range g.nodes {
		if len(g.parents[n]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// CycleError names the nodes on a detected cycle, in path order.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "graph: dependency cycle: " + strings.Join(e.Path, " -> ")
}

// DetectCycles returns a *CycleError for the first cycle found, or nil.
func (g *Graph) DetectCycles() error {
	const (
		unmarked = iota
		temporary
		permanent
	)
	marks := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(n string) error
	visit = func(n string) error {
		switch marks[n] {
		case permanent:
			return nil
		case temporary:
			start := 0
			for i, s := range stack {
				if s == n {
					start = i
					break
				}
			}
			path := append(append([]string(nil), stack[start:]...), n)
			return &CycleError{Path: path}
		}
		marks[n] = temporary
		stack = append(stack, n)
		for _, c := range g.children[n] {
			if err := visit(c); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		marks[n] = permanent
		return nil
	}

	for _, n := range g.nodes {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}

// Order returns a topological order (parents before children) using Kahn's
// algorithm with ties broken by insertion order. Nodes that sit on or behind a
// cycle are appended at the end in insertion order so none go missing.
func (g *Graph) Order() []string {
	indeg := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		indeg[n] = len(g.parents[n])
	}

	ready := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		if indeg[n] == 0 {
			ready = append(ready, n)
		}
	}

	out := make([]string, 0, len(g.nodes))
	placed := make(map[string]bool, len(g.nodes))
	for len(ready) > 0 {
		// pick the earliest-inserted ready node
		best := 0
		for i := 1; i < len(ready); i++ {
			if g.index[ready[i]] < g.index[ready[best]] {
				best = i
			}
		}
		n := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		out = append(out, n)
		placed[n] = true
		for _, c := range g.children[n] {
			indeg[c]--
			if indeg[c] == 0 {
				ready = append(ready, c)
			}
		}
	}

	for _, n := range g.nodes {
		if !placed[n] {
			out = append(out, n)
		}
	}
	return out
}
