package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/anda-ren/starwhale/internal/diagram"
	"github.com/anda-ren/starwhale/internal/layout"
	"github.com/anda-ren/starwhale/pkg/schema"
)

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Validate and draw layout documents",
	}
	cmd.AddCommand(newLayoutValidateCmd(), newLayoutDiagramCmd())
	return cmd
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func (a *app) readLayout(cmd *cobra.Command, path string) (*schema.Document, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	return layout.Parse(data)
}

func newLayoutValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|->",
		Short: "Validate a JSON or YAML layout document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return printError(cmd.ErrOrStderr(), "%v", err)
			}
			out := cmd.OutOrStdout()

			doc, err := a.readLayout(cmd, args[0])
			if err != nil {
				return printError(out, "%v", err)
			}
			loader, err := layout.NewLoader(a.widgets)
			if err != nil {
				return err
			}

			result := loader.Validate(doc)
			for _, issue := range result.Errors {
				red.Fprintf(out, "✗ %s: %s (%s)\n", issue.Path, issue.Message, issue.Code)
			}
			for _, issue := range result.Warnings {
				printWarning(out, "%s: %s", issue.Path, issue.Message)
			}
			if !result.Valid() {
				return printError(out, "layout has %d error(s)", len(result.Errors))
			}

			tree, err := loader.Load(doc)
			if err != nil {
				return printError(out, "%v", err)
			}
			for _, n := range tree.NonRenderable() {
				printWarning(out, "node %s (%s) will not render", n.ID(), n.Type)
			}
			printSuccess(out, "layout is valid: %d node(s)", tree.Len())
			return nil
		},
	}
}

func newLayoutDiagramCmd() *cobra.Command {
	var (
		format  string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "diagram <file|->",
		Short: "Draw the widget tree of a layout document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return printError(cmd.ErrOrStderr(), "%v", err)
			}

			doc, err := a.readLayout(cmd, args[0])
			if err != nil {
				return printError(cmd.ErrOrStderr(), "%v", err)
			}
			tree, err := layout.Load(doc, a.widgets)
			if err != nil {
				return printError(cmd.ErrOrStderr(), "%v", err)
			}
			model, err := diagram.Build(tree, nil)
			if err != nil {
				return err
			}

			var data []byte
			switch format {
			case "ascii":
				data = []byte(diagram.RenderASCII(model))
			case "mermaid":
				data = []byte(diagram.RenderMermaid(model))
			case "png":
				if outPath == "" {
					return printError(cmd.ErrOrStderr(), "--out is required for png output")
				}
				data, err = diagram.RenderImage(cmd.Context(), model)
				if err != nil {
					return printError(cmd.ErrOrStderr(), "render png: %v", err)
				}
			default:
				return printError(cmd.ErrOrStderr(), "unknown format %q (want ascii, mermaid or png)", format)
			}

			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return printError(cmd.ErrOrStderr(), "write %s: %v", outPath, err)
			}
			printSuccess(cmd.OutOrStdout(), "wrote %s", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "ascii", "output format: ascii, mermaid or png")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to a file instead of stdout")
	return cmd
}
