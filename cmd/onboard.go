package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cronboard/cronboard/internal/config"
	"github.com/cronboard/cronboard/internal/shared/cmdutils"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := resolvedConfigPath()

	if _, err := os.Stat(cfgPath); err == nil {
		// Re-save to add any keys introduced since the file was written.
		existing, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			def := config.DefaultConfig()
			existing = &def
		}
		if err := config.Save(existing, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		cfg := config.DefaultConfig()
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	if err := os.MkdirAll(config.DataDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fmt.Printf("\n%s cronboard is ready!\n\n", cmdutils.Logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Point backend.apiUrl in %s at your scheduler (or set %s)\n", cfgPath, config.EnvAPIURL)
	fmt.Println("  2. Check connectivity: cronboard status")
	fmt.Println("  3. Open the dashboard: cronboard serve")
	return nil
}
