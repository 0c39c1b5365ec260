package cmdutils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cronboard/cronboard/internal/schema"
)

func TestPrintGroups_Empty(t *testing.T) {
	var buf bytes.Buffer
	PrintGroups(&buf, nil)
	if got := buf.String(); got != "No groups.\n" {
		t.Errorf("got %q", got)
	}
}

func TestPrintJobs_WithStatus(t *testing.T) {
	jobs := []schema.Job{
		{ID: "1", Name: "build", Children: []string{"deploy"}},
		{ID: "2", Name: "deploy"},
	}
	var buf bytes.Buffer
	PrintJobs(&buf, jobs, func(id string) schema.JobStatus {
		if id == "1" {
			return schema.JobStatus{JobID: id, Status: schema.StatusFailed}
		}
		return schema.UnknownStatus("g", id)
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and 2 rows, got %q", buf.String())
	}
	if !strings.Contains(lines[2], "failed") || !strings.Contains(lines[2], "deploy") {
		t.Errorf("build row: %q", lines[2])
	}
	// deploy's dependency comes from build's children list.
	if !strings.Contains(lines[3], "unknown") || !strings.Contains(lines[3], "build") {
		t.Errorf("deploy row: %q", lines[3])
	}
}

func TestPrintJobs_NoStatusColumn(t *testing.T) {
	var buf bytes.Buffer
	PrintJobs(&buf, []schema.Job{{ID: "1", Name: "solo"}}, nil)
	if strings.Contains(buf.String(), "Status") {
		t.Error("status column should be omitted")
	}
	if !strings.Contains(buf.String(), "solo") {
		t.Error("missing job row")
	}
}

func TestMark(t *testing.T) {
	if Mark(true) != "✓" || Mark(false) != "✗" {
		t.Error("unexpected marks")
	}
}
