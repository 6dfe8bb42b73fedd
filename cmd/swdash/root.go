package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/anda-ren/starwhale/internal/expressions"
	"github.com/anda-ren/starwhale/internal/logging"
	"github.com/anda-ren/starwhale/internal/widget"
	"github.com/anda-ren/starwhale/internal/widgets"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "swdash",
		Short: "swdash - evaluation dashboard composer",
		Long: `swdash composes evaluation dashboards from registered widgets.

It serves the widget catalog and stored layouts over HTTP and MCP, validates
and draws layout documents, and decodes datastore records.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.String("config-dir", swdashDir(), "directory holding settings.json")
	pf.String("db-path", "", "database path (default: <config-dir>/swdash.db)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(),
		newMCPCmd(),
		newWidgetsCmd(),
		newLayoutCmd(),
		newDecodeCmd(),
		newVersionCmd(),
	)
	return root
}

// env is swapped in tests.
var env = os.Getenv

// app is the state shared by every subcommand.
type app struct {
	cfg     Config
	logger  *slog.Logger
	widgets *widget.Registry
}

// setup resolves the configuration and builds the widget registry.
func setup(cmd *cobra.Command) (*app, error) {
	dir, _ := cmd.Flags().GetString("config-dir")
	cfg, err := loadConfig(dir, env)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	engines, err := expressions.NewEngines()
	if err != nil {
		return nil, err
	}
	reg := widget.NewRegistry(widget.WithLogger(logger))
	if err := widgets.RegisterBuiltins(reg, engines); err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, widgets: reg}, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the swdash version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
