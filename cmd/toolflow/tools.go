package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newToolsCmd(a *app) *cobra.Command {
	var withSchema bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.buildCatalog()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			list := c.dispatcher.Registry().List()
			if withSchema {
				for _, d := range list {
					js, err := json.MarshalIndent(d.Schema(), "", "  ")
					if err != nil {
						return errors.WithMessagef(err, "failed to encode schema of %s", d.Name)
					}
					fmt.Fprintf(out, "# %s\n%s\n", d.Name, js)
				}
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTRICT\tDESCRIPTION")
			for _, d := range list {
				fmt.Fprintf(w, "%s\t%t\t%s\n", d.Name, d.Strict, d.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&withSchema, "schema", false, "print the parameter schema of each tool")
	return cmd
}
