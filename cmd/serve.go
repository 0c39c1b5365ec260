package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cronboard/cronboard/internal/container"
	"github.com/cronboard/cronboard/internal/shared/cmdutils"
)

var (
	servePort  int
	serveGroup string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard, poller, health probe, triggers and notifiers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Dashboard port (overrides config)")
	serveCmd.Flags().StringVarP(&serveGroup, "group", "g", "", "Group to select on start")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Dashboard.Port = servePort
	}

	c, err := container.New(cfg)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	defer c.Close()

	addr := net.JoinHostPort(cfg.Dashboard.Host, strconv.Itoa(cfg.Dashboard.Port))
	fmt.Printf("%s Starting cronboard on http://%s (backend %s)...\n", cmdutils.Logo, addr, cfg.Backend.APIURL)

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syn := c.Synchronizer()
	if err := syn.RefreshGroups(ctx); err != nil {
		slog.Warn("serve: initial group load failed", "err", err)
	}
	syn.WatchGroups()
	if serveGroup != "" {
		syn.Select(serveGroup)
	}

	if names := c.Notifier().Names(); len(names) > 0 {
		fmt.Printf("✓ Notifiers: %s\n", strings.Join(names, ", "))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Dashboard().Run(gctx, addr) })
	g.Go(func() error { return c.Triggers().Start(gctx) })
	g.Go(func() error { return c.Notifier().Run(gctx) })
	if cfg.Health.Enabled {
		g.Go(func() error { return c.Health().Start(gctx) })
	}

	fmt.Printf("%s Dashboard running. Press Ctrl+C to stop.\n", cmdutils.Logo)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
