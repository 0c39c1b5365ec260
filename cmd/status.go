package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cronboard/cronboard/internal/config"
	"github.com/cronboard/cronboard/internal/container"
	"github.com/cronboard/cronboard/internal/health"
	"github.com/cronboard/cronboard/internal/shared/cmdutils"
	"github.com/cronboard/cronboard/internal/trigger"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cronboard status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := resolvedConfigPath()

	fmt.Printf("%s cronboard Status\n\n", cmdutils.Logo)

	_, statErr := os.Stat(cfgPath)
	fmt.Printf("Config:    %s %s\n", cfgPath, cmdutils.Mark(statErr == nil))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()
	probe := health.NewService(container.NewClient(cfg), cfg.Health.Interval())
	st := probe.Check(ctx)
	fmt.Printf("Backend:   %s %s", cfg.Backend.APIURL, cmdutils.Mark(st.Reachable))
	if !st.Reachable {
		fmt.Printf(" (%s)", st.LastError)
	}
	fmt.Println()

	fmt.Printf("Dashboard: http://%s:%d\n", cfg.Dashboard.Host, cfg.Dashboard.Port)
	fmt.Printf("Polling:   jobs every %s, statuses every %s\n", cfg.Poll.JobsInterval(), cfg.Poll.StatusInterval())

	triggers := trigger.NewService(config.TriggersPath()).List(true)
	enabled := 0
	for _, t := range triggers {
		if t.Enabled {
			enabled++
		}
	}
	fmt.Printf("Triggers:  %d (%d enabled)\n", len(triggers), enabled)

	fmt.Println("\nNotifications:")
	fmt.Printf("  %-10s %s\n", "slack", cmdutils.Mark(cfg.Notify.Slack.Enabled))
	fmt.Printf("  %-10s %s\n", "telegram", cmdutils.Mark(cfg.Notify.Telegram.Enabled))
	return nil
}
