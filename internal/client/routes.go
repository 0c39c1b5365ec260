package client

import (
	"net/url"
	"strings"
)

// Routes holds the backend path templates. {group_id} and {job_id} are
// substituted with path-escaped values.
type Routes struct {
	ListGroups  string `json:"listGroups" yaml:"listGroups"`
	CreateGroup string `json:"createGroup" yaml:"createGroup"`
	ListJobs    string `json:"listJobs" yaml:"listJobs"`
	CreateJob   string `json:"createJob" yaml:"createJob"`
	JobStatus   string `json:"jobStatus" yaml:"jobStatus"`
	Execute     string `json:"execute" yaml:"execute"`
	Health      string `json:"health" yaml:"health"`
}

// DefaultRoutes matches the job-scheduling backend's router.
func DefaultRoutes() Routes {
	return Routes{
		ListGroups:  "/groups",
		CreateGroup: "/group",
		ListJobs:    "/cron_jobs/{group_id}",
		CreateJob:   "/cron_job/{group_id}",
		JobStatus:   "/cron_job_status/{group_id}/{job_id}",
		Execute:     "/execute/cron_job/{group_id}",
		Health:      "/",
	}
}

// withDefaults fills blank templates from DefaultRoutes.
func (r Routes) withDefaults() Routes {
	d := DefaultRoutes()
	if r.ListGroups == "" {
		r.ListGroups = d.ListGroups
	}
	if r.CreateGroup == "" {
		r.CreateGroup = d.CreateGroup
	}
	if r.ListJobs == "" {
		r.ListJobs = d.ListJobs
	}
	if r.CreateJob == "" {
		r.CreateJob = d.CreateJob
	}
	if r.JobStatus == "" {
		r.JobStatus = d.JobStatus
	}
	if r.Execute == "" {
		r.Execute = d.Execute
	}
	if r.Health == "" {
		r.Health = d.Health
	}
	return r
}

func expand(tmpl, groupID, jobID string) string {
	return strings.NewReplacer(
		"{group_id}", url.PathEscape(groupID),
		"{job_id}", url.PathEscape(jobID),
	).Replace(tmpl)
}
