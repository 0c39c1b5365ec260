package dashboard

import (
	"time"

	"github.com/cronboard/cronboard/internal/graph"
	"github.com/cronboard/cronboard/internal/health"
	"github.com/cronboard/cronboard/internal/schema"
	"github.com/cronboard/cronboard/internal/synchronizer"
)

// BadgeClass maps a status to the CSS class of its badge.
func BadgeClass(s schema.Status) string {
	switch s {
	case schema.StatusCompleted:
		return "badge-completed"
	case schema.StatusRunning:
		return "badge-running"
	case schema.StatusFailed:
		return "badge-failed"
	default:
		return "badge-unknown"
	}
}

// GroupView is one entry of the group list.
type GroupView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// JobView is one row of the job list.
type JobView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Artifact     string        `json:"artifact"`
	Timings      string        `json:"timings"`
	Status       schema.Status `json:"status"`
	Badge        string        `json:"badge"`
	UpdatedAt    string        `json:"updatedAt,omitempty"`
	Dependencies []string      `json:"dependencies"`
	Children     []string      `json:"children"`
}

// Page is the view model rendered by GET / and streamed over /ws.
type Page struct {
	Groups   []GroupView   `json:"groups"`
	Selected *GroupView    `json:"selected,omitempty"`
	Jobs     []JobView     `json:"jobs"`
	Health   health.Status `json:"health"`
	Flash    string        `json:"flash,omitempty"`
	Version  uint64        `json:"version"`
}

// BuildPage projects a synchronizer snapshot into the view model.
// Relations are read from one merged edge set so a job's dependencies and
// its parents' children always agree on screen.
func BuildPage(v synchronizer.View, h health.Status) Page {
	p := Page{
		Groups:  make([]GroupView, 0, len(v.Groups)),
		Jobs:    make([]JobView, 0, len(v.Jobs)),
		Health:  h,
		Version: v.Version,
	}
	for _, g := range v.Groups {
		gv := GroupView{ID: g.ID, Name: g.Name, Selected: g.ID == v.SelectedGroup}
		p.Groups = append(p.Groups, gv)
		if gv.Selected {
			sel := gv
			p.Selected = &sel
		}
	}
	if p.Selected == nil && v.SelectedGroup != "" {
		// Selected before the group list caught up.
		p.Selected = &GroupView{ID: v.SelectedGroup, Name: v.SelectedGroup, Selected: true}
	}

	g := graph.FromJobs(v.Jobs)
	for _, j := range v.Jobs {
		st := v.StatusOf(j.ID)
		jv := JobView{
			ID:           j.ID,
			Name:         j.Name,
			Artifact:     j.ArtifactURL,
			Timings:      j.Timings,
			Status:       st.Status,
			Badge:        BadgeClass(st.Status),
			Dependencies: nonNil(g.Dependencies(j.Name)),
			Children:     nonNil(g.Children(j.Name)),
		}
		if st.UpdatedAt != nil {
			jv.UpdatedAt = st.UpdatedAt.Local().Format(time.DateTime)
		}
		p.Jobs = append(p.Jobs, jv)
	}
	return p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
