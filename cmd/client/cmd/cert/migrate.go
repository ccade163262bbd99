package cert

import (
	"fmt"

	"github.com/spf13/cobra"

	"certkeeper/cmd/client/cmd/appctx"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade stored drafts written by older releases",
		Long: `Rewrites the payload of every draft and in-progress certificate to the
current field layout. Complete and issued certificates are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := appctx.From(cmd)
			if err != nil {
				return err
			}
			changed, err := env.App.MigrateAll(cmd.Context())
			if env.JSON {
				if perr := appctx.PrintJSON(cmd.OutOrStdout(), map[string]any{"migrated": changed}); perr != nil {
					return perr
				}
				return err
			}
			for _, id := range changed {
				fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d certificate(s) migrated\n", len(changed))
			return err
		},
	}
}
