// Package cmd implements the cronboard CLI using cobra.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cronboard/cronboard/internal/config"
	"github.com/cronboard/cronboard/internal/shared/cmdutils"
	"github.com/cronboard/cronboard/internal/shared/logutils"
)

const version = "0.1.0"

// requestTimeout bounds one-shot backend commands.
const requestTimeout = 30 * time.Second

var (
	configPath string
	logLevel   string
	logFormat  string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:           "cronboard",
	Short:         cmdutils.Logo + " cronboard: job dependency graph dashboard",
	Long:          cmdutils.Logo + " cronboard declares job groups, watches their statuses and triggers executions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.cronboard/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(triggerCmd)
}

// resolvedConfigPath returns --config or the default path.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.ConfigPath()
}

// loadConfig loads the config and installs the default logger. Flags win
// over the file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	logutils.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return cfg, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
