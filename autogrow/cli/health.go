package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the API health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := opts.client()
			if err != nil {
				return err
			}
			status, err := client.Health(cmd.Context())
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "API: offline")
				return err
			}
			state := status.Status
			if state == "" {
				state = "unknown"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API: %s\n", state)
			return nil
		},
	}
}
