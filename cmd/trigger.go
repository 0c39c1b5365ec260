package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cronboard/cronboard/internal/config"
	"github.com/cronboard/cronboard/internal/container"
	"github.com/cronboard/cronboard/internal/shared/cmdutils"
	"github.com/cronboard/cronboard/internal/shared/stringutils"
	"github.com/cronboard/cronboard/internal/trigger"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Manage scheduled group executions",
	Long:  "Triggers execute a group on a schedule while `cronboard serve` is running.",
}

func init() {
	triggerCmd.AddCommand(triggerListCmd)
	triggerCmd.AddCommand(triggerAddCmd)
	triggerCmd.AddCommand(triggerRemoveCmd)
	triggerCmd.AddCommand(triggerEnableCmd)
	triggerCmd.AddCommand(triggerRunCmd)
}

// ---- list ------------------------------------------------------------------

var triggerListAll bool

var triggerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List triggers",
	RunE: func(_ *cobra.Command, _ []string) error {
		svc := trigger.NewService(config.TriggersPath())
		list := svc.List(triggerListAll)
		if len(list) == 0 {
			fmt.Println("No triggers.")
			return nil
		}
		fmt.Printf("%-10s %-20s %-10s %-25s %-10s %-17s %s\n", "ID", "Name", "Group", "Schedule", "Status", "Next Run", "Last")
		fmt.Println(cmdutils.Rule(104))
		for _, t := range list {
			status := "enabled"
			if !t.Enabled {
				status = "disabled"
			}
			nextRun := ""
			if t.State.NextRunAtMs != nil {
				nextRun = time.UnixMilli(*t.State.NextRunAtMs).Format("2006-01-02 15:04")
			}
			last := "-"
			if t.State.LastStatus != nil {
				last = *t.State.LastStatus
			}
			fmt.Printf("%-10s %-20s %-10s %-25s %-10s %-17s %s\n",
				t.ID,
				stringutils.Truncate(t.Name, 16),
				stringutils.ShortID(t.GroupID),
				stringutils.Truncate(t.Schedule.String(), 21),
				status, nextRun, last)
		}
		return nil
	},
}

func init() {
	triggerListCmd.Flags().BoolVarP(&triggerListAll, "all", "a", false, "Include disabled triggers")
}

// ---- add -------------------------------------------------------------------

var (
	triggerAddName  string
	triggerAddGroup string
	triggerAddEvery int
	triggerAddCron  string
	triggerAddTZ    string
	triggerAddAt    string
)

var triggerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a trigger",
	RunE: func(_ *cobra.Command, _ []string) error {
		if triggerAddTZ != "" && triggerAddCron == "" {
			return fmt.Errorf("--tz can only be used with --cron")
		}

		req := trigger.AddRequest{Name: triggerAddName, GroupID: triggerAddGroup}
		switch {
		case triggerAddEvery > 0:
			req.Kind = trigger.KindEvery
			req.Every = time.Duration(triggerAddEvery) * time.Second
		case triggerAddCron != "":
			req.Kind = trigger.KindCron
			req.Expr = triggerAddCron
			req.TZ = triggerAddTZ
		case triggerAddAt != "":
			req.Kind = trigger.KindAt
			req.DeleteAfterRun = true
			dt, err := time.ParseInLocation("2006-01-02T15:04:05", triggerAddAt, time.Local)
			if err != nil {
				dt, err = time.Parse(time.RFC3339, triggerAddAt)
				if err != nil {
					return fmt.Errorf("invalid --at value %q: %w", triggerAddAt, err)
				}
			}
			req.At = dt
		default:
			return fmt.Errorf("must specify --every, --cron, or --at")
		}

		svc := trigger.NewService(config.TriggersPath())
		t, err := svc.Add(req)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Added trigger '%s' (%s): %s\n", t.Name, t.ID, t.Schedule)
		return nil
	},
}

func init() {
	triggerAddCmd.Flags().StringVarP(&triggerAddName, "name", "n", "", "Trigger name (default \"execute <group>\")")
	triggerAddCmd.Flags().StringVarP(&triggerAddGroup, "group", "g", "", "Group to execute (required)")
	triggerAddCmd.Flags().IntVarP(&triggerAddEvery, "every", "e", 0, "Run every N seconds")
	triggerAddCmd.Flags().StringVarP(&triggerAddCron, "cron", "c", "", "Cron expression (e.g. '0 9 * * *')")
	triggerAddCmd.Flags().StringVar(&triggerAddTZ, "tz", "", "IANA timezone for --cron")
	triggerAddCmd.Flags().StringVar(&triggerAddAt, "at", "", "Run once at ISO datetime")

	_ = triggerAddCmd.MarkFlagRequired("group")
}

// ---- remove / enable -------------------------------------------------------

var triggerRemoveCmd = &cobra.Command{
	Use:   "remove <trigger-id>",
	Short: "Remove a trigger",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		svc := trigger.NewService(config.TriggersPath())
		if svc.Remove(args[0]) {
			fmt.Printf("✓ Removed trigger %s\n", args[0])
		} else {
			fmt.Printf("Trigger %s not found\n", args[0])
		}
		return nil
	},
}

var triggerEnableDisable bool

var triggerEnableCmd = &cobra.Command{
	Use:   "enable <trigger-id>",
	Short: "Enable (or disable) a trigger",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		svc := trigger.NewService(config.TriggersPath())
		t, ok := svc.Enable(args[0], !triggerEnableDisable)
		if !ok {
			fmt.Printf("Trigger %s not found\n", args[0])
			return nil
		}
		action := "enabled"
		if triggerEnableDisable {
			action = "disabled"
		}
		fmt.Printf("✓ Trigger '%s' %s\n", t.Name, action)
		return nil
	},
}

func init() {
	triggerEnableCmd.Flags().BoolVar(&triggerEnableDisable, "disable", false, "Disable instead of enable")
}

// ---- run -------------------------------------------------------------------

var triggerRunForce bool

var triggerRunCmd = &cobra.Command{
	Use:   "run <trigger-id>",
	Short: "Fire a trigger now",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cl := container.NewClient(cfg)

		svc := trigger.NewService(config.TriggersPath())
		svc.SetOnFire(func(ctx context.Context, t trigger.Trigger) error {
			return cl.TriggerExecution(ctx, t.GroupID)
		})

		ctx, cancel := requestContext()
		defer cancel()

		t, ok := svc.Run(ctx, args[0], triggerRunForce)
		if !ok {
			fmt.Printf("Failed to run trigger %s (not found or disabled; use --force)\n", args[0])
			return nil
		}
		if t.State.LastError != nil {
			return fmt.Errorf("trigger %s: %s", t.ID, *t.State.LastError)
		}
		fmt.Printf("✓ Execution triggered for group %s\n", t.GroupID)
		return nil
	},
}

func init() {
	triggerRunCmd.Flags().BoolVarP(&triggerRunForce, "force", "f", false, "Run even if disabled")
}
