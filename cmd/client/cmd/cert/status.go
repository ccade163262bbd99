package cert

import (
	"fmt"

	"github.com/spf13/cobra"

	"certkeeper/cmd/client/cmd/appctx"
	"certkeeper/internal/domain/certificate"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <draft|in_progress|complete|issued>",
		Short: "Move a certificate forward in its lifecycle",
		Long: `Statuses only move forward. Once complete or issued the certificate
data can no longer change.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := appctx.From(cmd)
			if err != nil {
				return err
			}
			next, err := certificate.ParseStatus(args[1])
			if err != nil {
				return err
			}
			rec, err := env.App.Transition(cmd.Context(), args[0], next)
			if err != nil {
				return err
			}
			if env.JSON {
				return appctx.PrintJSON(cmd.OutOrStdout(), rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", rec.ID, appctx.Status(rec.Status))
			return nil
		},
	}
}
