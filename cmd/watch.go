package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cronboard/cronboard/internal/container"
	"github.com/cronboard/cronboard/internal/scheduler"
	"github.com/cronboard/cronboard/internal/shared/cmdutils"
	"github.com/cronboard/cronboard/internal/synchronizer"
)

var watchCmd = &cobra.Command{
	Use:   "watch <group-id>",
	Short: "Poll a group and reprint its job table on every change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func runWatch(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(ctx)
	defer sched.StopAll()
	syn := synchronizer.New(container.NewClient(cfg), sched, synchronizer.Options{
		JobsInterval:   cfg.Poll.JobsInterval(),
		StatusInterval: cfg.Poll.StatusInterval(),
		MaxParallel:    cfg.Poll.MaxParallel,
	})
	defer syn.Close()
	syn.SetOnTransition(func(tr synchronizer.Transition) {
		fmt.Printf("» %s: %s → %s\n", tr.JobName, tr.From, tr.To)
	})

	views, unsubscribe := syn.Subscribe()
	defer unsubscribe()
	syn.Select(args[0])

	fmt.Printf("%s Watching group %s. Press Ctrl+C to stop.\n", cmdutils.Logo, args[0])
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case v, ok := <-views:
			if !ok {
				return nil
			}
			if v.SelectedGroup != args[0] {
				continue
			}
			fmt.Printf("\n── %s  (%d jobs) ──\n", time.Now().Format("15:04:05"), len(v.Jobs))
			cmdutils.PrintJobs(os.Stdout, v.Jobs, v.StatusOf)
		}
	}
}
