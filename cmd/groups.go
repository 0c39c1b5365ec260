package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cronboard/cronboard/internal/container"
	"github.com/cronboard/cronboard/internal/form"
	"github.com/cronboard/cronboard/internal/shared/cmdutils"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List and create job groups",
}

func init() {
	groupsCmd.AddCommand(groupsListCmd)
	groupsCmd.AddCommand(groupsCreateCmd)
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		groups, err := container.NewClient(cfg).ListGroups(ctx)
		if err != nil {
			return err
		}
		cmdutils.PrintGroups(os.Stdout, groups)
		return nil
	},
}

var groupsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		name, err := form.GroupForm{Name: args[0]}.Parse()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		g, err := container.NewClient(cfg).CreateGroup(ctx, name)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Created group '%s' (%s)\n", g.Name, g.ID)
		return nil
	},
}
