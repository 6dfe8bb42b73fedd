package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anda-ren/starwhale/internal/api"
	"github.com/anda-ren/starwhale/internal/scheduler"
	"github.com/anda-ren/starwhale/internal/store"
	"github.com/anda-ren/starwhale/internal/streaming"
	"github.com/anda-ren/starwhale/pkg/mcp"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the widget catalog and dashboards over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return printError(cmd.ErrOrStderr(), "%v", err)
			}
			return a.serve(cmd)
		},
	}
	cmd.Flags().String("listen-addr", ":4200", "TCP listen address")
	cmd.Flags().Bool("metrics", true, "expose GET /metrics")
	cmd.Flags().String("maintenance", "@daily", `cron spec for store maintenance, or "off"`)
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the dashboard tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return printError(cmd.ErrOrStderr(), "%v", err)
			}
			return a.serveMCP(cmd)
		},
	}
}

// openStore opens and migrates the configured database.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if !strings.HasPrefix(a.cfg.DBPath, "file:") && !strings.Contains(a.cfg.DBPath, "://") {
		if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	st, err := store.NewLibSQLStore(a.cfg.dsn(), store.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func (a *app) serve(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := a.openStore(ctx)
	if err != nil {
		return printError(cmd.ErrOrStderr(), "%v", err)
	}
	defer st.Close()

	deps := api.Deps{
		Widgets: a.widgets,
		Store:   st,
		Logger:  a.logger,
		Events:  streaming.NewMemoryHub(),
		Metrics: a.cfg.Metrics,
	}
	if a.cfg.maintenanceEnabled() {
		sched, err := a.startMaintenance(ctx, st)
		if err != nil {
			return printError(cmd.ErrOrStderr(), "%v", err)
		}
		defer sched.Stop()
		deps.Maintenance = sched
	}

	srv, err := api.NewServer(deps)
	if err != nil {
		return printError(cmd.ErrOrStderr(), "%v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(a.cfg.ListenAddr) }()

	select {
	case err := <-errCh:
		if err != nil {
			return printError(cmd.ErrOrStderr(), "server stopped: %v", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(graceful); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("shutdown failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (a *app) startMaintenance(ctx context.Context, st store.Store) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(scheduler.WithLogger(a.logger))
	for _, job := range scheduler.StoreJobs(st, a.cfg.Maintenance, a.logger) {
		if err := sched.Add(job); err != nil {
			return nil, err
		}
	}
	if err := sched.Start(ctx); err != nil {
		return nil, err
	}
	return sched, nil
}

func (a *app) serveMCP(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := a.openStore(ctx)
	if err != nil {
		return printError(cmd.ErrOrStderr(), "%v", err)
	}
	defer st.Close()

	srv, err := mcp.NewDashboardServer(mcp.DashboardServerDeps{
		Widgets: a.widgets,
		Store:   st,
		Logger:  a.logger,
	})
	if err != nil {
		return printError(cmd.ErrOrStderr(), "%v", err)
	}
	a.logger.Info("mcp server listening on stdio")
	return srv.Serve(ctx)
}
