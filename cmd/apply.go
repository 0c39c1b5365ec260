package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cronboard/cronboard/internal/container"
	"github.com/cronboard/cronboard/internal/manifest"
	"github.com/cronboard/cronboard/internal/shared/stringutils"
)

var (
	applyFile   string
	applyDryRun bool
)

var applyCmd = &cobra.Command{
	Use:   "apply -f <manifest.yaml>",
	Short: "Create a group and its jobs from a YAML manifest",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		m, err := manifest.Load(applyFile)
		if err != nil {
			return err
		}

		if applyDryRun {
			gid := m.GroupID
			if gid == "" {
				gid = "(new group " + m.Group + ")"
			}
			decls, err := m.Plan(gid, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Would create %d job(s) in %s:\n", len(decls), gid)
			for i, d := range decls {
				fmt.Printf("%2d. %-20s deps: %-25s timings: %s\n", i+1, d.Name,
					stringutils.JoinOrDash(d.DependencyNames()), d.Timings.Format(time.RFC3339))
			}
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		res, err := m.Apply(ctx, container.NewClient(cfg), time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("✓ Group '%s' (%s)\n", res.Group.Name, res.Group.ID)
		for _, j := range res.Created {
			fmt.Printf("  + %s (%s)\n", j.Name, j.ID)
		}
		for _, name := range res.Skipped {
			fmt.Printf("  = %s (exists)\n", name)
		}
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "Manifest file (required)")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Validate and print the creation order without calling the backend")
	_ = applyCmd.MarkFlagRequired("file")
}
