package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/anda-ren/starwhale/internal/widget"
)

func newWidgetsCmd() *cobra.Command {
	var (
		panels   bool
		asJSON   bool
		describe string
	)
	cmd := &cobra.Command{
		Use:   "widgets",
		Short: "List the registered widget types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return printError(cmd.ErrOrStderr(), "%v", err)
			}
			out := cmd.OutOrStdout()

			if describe != "" {
				p, ok := a.widgets.GetPlugin(describe)
				if !ok {
					return printError(cmd.ErrOrStderr(), "widget type %q is not registered", describe)
				}
				data, err := json.MarshalIndent(p.Defaults, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			var configs []widget.Config
			if panels {
				configs = a.widgets.ListPanels()
			} else {
				configs = a.widgets.List()
			}

			if asJSON {
				data, err := json.MarshalIndent(configs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tGROUP\tNAME")
			for _, c := range configs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Type, c.Group, c.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&panels, "panels", false, "only list PANEL widgets")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the defaults as JSON")
	cmd.Flags().StringVar(&describe, "describe", "", "print the defaults of one widget type")
	return cmd
}
