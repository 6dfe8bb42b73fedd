package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/anda-ren/starwhale/internal/datastore"
)

func newDecodeCmd() *cobra.Command {
	var types bool
	cmd := &cobra.Command{
		Use:   "decode <file|->",
		Short: "Decode datastore records into native values",
		Long: `Decode reads datastore records, either a JSON array or a scan response of
the form {"records": [...]}, and prints them with every cell decoded.
Cells that cannot be decoded are printed as null; --types shows why.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return printError(cmd.ErrOrStderr(), "%v", err)
			}
			recs, err := datastore.ParseRecords(data)
			if err != nil {
				return printError(cmd.ErrOrStderr(), "%v", err)
			}
			decoded := datastore.DecodeAll(recs)
			out := cmd.OutOrStdout()

			if types {
				for i, r := range decoded {
					printHeading(out, "record %d", i)
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					for _, col := range r.Columns() {
						fmt.Fprintf(tw, "  %s\t%s\n", col, describeValue(r.Get(col)))
					}
					if err := tw.Flush(); err != nil {
						return err
					}
				}
				return nil
			}

			text, err := json.MarshalIndent(decoded, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(text))
			return nil
		},
	}
	cmd.Flags().BoolVar(&types, "types", false, "print the decoded Go type of every cell")
	return cmd
}

func describeValue(v any) string {
	switch val := v.(type) {
	case datastore.Unknown:
		return fmt.Sprintf("unknown\t%s", val.Reason)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T\t%v", v, v)
	}
}
