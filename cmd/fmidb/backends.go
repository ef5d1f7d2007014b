package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/oriys/fmidb/internal/backend"
	"github.com/spf13/cobra"
)

func backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the database backends linked into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := backend.Available()
			if output == "json" {
				return printJSON(cmd.OutOrStdout(), infos)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tAVAILABLE\tREASON")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", info.Name, info.Kind, info.Available, info.Reason)
			}
			return tw.Flush()
		},
	}
}
