package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/resources"
	"github.com/spf13/cobra"
)

func newResourceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource",
		Short: "Inspect and read resources",
	}
	cmd.AddCommand(newResourceListCmd(a), newResourceReadCmd(a))
	return cmd
}

func newResourceListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List resources and resource templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.buildCatalog()
			if err != nil {
				return err
			}
			resolver := c.dispatcher.Resolver()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "URI\tMIME\tDESCRIPTION")
			for _, d := range resolver.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.URI, d.MIMEType, d.Description)
			}
			for _, d := range resolver.Templates() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.URI, d.MIMEType, d.Description)
			}
			return w.Flush()
		},
	}
}

func newResourceReadCmd(a *app) *cobra.Command {
	var binds []string
	cmd := &cobra.Command{
		Use:   "read <uri>",
		Short: "Read a resource by URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindings, err := parseBindings(binds)
			if err != nil {
				return err
			}
			c, err := a.buildCatalog()
			if err != nil {
				return err
			}

			content, err := c.dispatcher.Resolver().Resolve(cmd.Context(), args[0], bindings)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), content.Text())
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&binds, "bind", nil, "placeholder value KEY=VALUE (repeatable)")
	return cmd
}

func parseBindings(list []string) (resources.Bindings, error) {
	b := resources.Bindings{}
	for _, kv := range list {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, errors.Errorf("invalid binding %q, expected KEY=VALUE", kv)
		}
		b[k] = v
	}
	return b, nil
}
