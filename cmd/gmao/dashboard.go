package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yazid-hub/GMOA/internal/dashboard"
)

func newDashboardCmd(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Start the read-only web dashboard",
		Long:  "Serves work orders, repair requests, status counts and Prometheus metrics over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, g, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8090)")
	return cmd
}

func runDashboard(cmd *cobra.Command, g *globals, addr string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()
	if addr == "" {
		addr = a.cfg.Dashboard.Addr
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return dashboard.Start(ctx, dashboard.StartOpts{
		DB:       a.db,
		Orders:   a.orders,
		Repairs:  a.repairs,
		Workflow: a.cfg.Workflow,
		Addr:     addr,
		Out:      cmd.OutOrStdout(),
		Log:      a.log,
	})
}
