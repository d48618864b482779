package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the compiled operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, set, err := rootOpts.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range set.Names() {
				op, _ := set.Get(name)
				fmt.Fprintf(out, "%s\t%s\t%d\n", name, op.Builder.Entity().Name, op.Params)
			}
			return nil
		},
	}
}
