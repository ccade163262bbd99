package cert

import (
	"fmt"

	"github.com/spf13/cobra"

	"certkeeper/cmd/client/cmd/appctx"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := appctx.From(cmd)
			if err != nil {
				return err
			}
			if err := env.App.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
