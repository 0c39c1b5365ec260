package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cronboard/cronboard/internal/container"
)

var executeCmd = &cobra.Command{
	Use:   "execute <group-id>",
	Short: "Trigger execution of every job in a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		if err := container.NewClient(cfg).TriggerExecution(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Execution triggered for group %s\n", args[0])
		return nil
	},
}
