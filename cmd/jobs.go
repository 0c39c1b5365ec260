package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cronboard/cronboard/internal/container"
	"github.com/cronboard/cronboard/internal/form"
	"github.com/cronboard/cronboard/internal/graph"
	"github.com/cronboard/cronboard/internal/schema"
	"github.com/cronboard/cronboard/internal/shared/cmdutils"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List, declare and inspect jobs",
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsCreateCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsGraphCmd)
}

// ---- list ------------------------------------------------------------------

var jobsListStatus bool

var jobsListCmd = &cobra.Command{
	Use:   "list <group-id>",
	Short: "List the jobs of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		cl := container.NewClient(cfg)
		gid := args[0]

		jobs, err := cl.ListJobs(ctx, gid)
		if err != nil {
			return err
		}
		if !jobsListStatus {
			cmdutils.PrintJobs(os.Stdout, jobs, nil)
			return nil
		}

		statuses := make([]schema.JobStatus, len(jobs))
		eg, ectx := errgroup.WithContext(ctx)
		eg.SetLimit(cfg.Poll.MaxParallel)
		for i, j := range jobs {
			i, j := i, j
			eg.Go(func() error {
				st, err := cl.FetchJobStatus(ectx, gid, j.ID)
				if err != nil {
					st = schema.UnknownStatus(gid, j.ID)
				}
				statuses[i] = st
				return nil
			})
		}
		_ = eg.Wait()
		byID := make(map[string]schema.JobStatus, len(jobs))
		for _, st := range statuses {
			byID[st.JobID] = st
		}
		cmdutils.PrintJobs(os.Stdout, jobs, func(id string) schema.JobStatus { return byID[id] })
		return nil
	},
}

func init() {
	jobsListCmd.Flags().BoolVarP(&jobsListStatus, "status", "s", false, "Fetch and show each job's status")
}

// ---- create ----------------------------------------------------------------

var jobsCreateForm form.JobForm

var jobsCreateCmd = &cobra.Command{
	Use:   "create <group-id>",
	Short: "Declare a job in a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		decl, err := jobsCreateForm.Parse(args[0], time.Now())
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		job, err := container.NewClient(cfg).CreateJob(ctx, decl)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Created job '%s' (%s) in group %s\n", job.Name, job.ID, job.GroupID)
		return nil
	},
}

func init() {
	f := jobsCreateCmd.Flags()
	f.StringVarP(&jobsCreateForm.Name, "name", "n", "", "Job name (required)")
	f.StringVarP(&jobsCreateForm.ArtifactURL, "artifact", "a", "", "Artifact URL, e.g. a Dockerfile location (required)")
	f.StringVarP(&jobsCreateForm.Children, "children", "c", "", "Comma-separated downstream job names")
	f.StringVarP(&jobsCreateForm.Dependencies, "dependencies", "d", "", "Comma-separated upstream job names")
	f.StringVarP(&jobsCreateForm.Timings, "timings", "t", "", "RFC3339 time or cron expression (default now)")

	_ = jobsCreateCmd.MarkFlagRequired("name")
	_ = jobsCreateCmd.MarkFlagRequired("artifact")
}

// ---- status ----------------------------------------------------------------

var jobsStatusCmd = &cobra.Command{
	Use:   "status <group-id> <job-id>",
	Short: "Show a job's status",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		st, err := container.NewClient(cfg).FetchJobStatus(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		updated := "-"
		if st.UpdatedAt != nil {
			updated = st.UpdatedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("Job:     %s\nGroup:   %s\nStatus:  %s\nUpdated: %s\n", st.JobID, st.GroupID, st.Status, updated)
		return nil
	},
}

// ---- graph -----------------------------------------------------------------

var jobsGraphCmd = &cobra.Command{
	Use:   "graph <group-id>",
	Short: "Print the group's jobs in dependency order",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		jobs, err := container.NewClient(cfg).ListJobs(ctx, args[0])
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs.")
			return nil
		}

		g := graph.FromJobs(jobs)
		var ce *graph.CycleError
		if err := g.DetectCycles(); errors.As(err, &ce) {
			fmt.Printf("Warning: cycle %s\n\n", strings.Join(ce.Path, " → "))
		}
		for i, name := range g.Order() {
			deps := g.Dependencies(name)
			if len(deps) == 0 {
				fmt.Printf("%2d. %s\n", i+1, name)
				continue
			}
			fmt.Printf("%2d. %s  ← %s\n", i+1, name, strings.Join(deps, ", "))
		}
		return nil
	},
}
