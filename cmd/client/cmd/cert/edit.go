package cert

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"certkeeper/cmd/client/cmd/appctx"
	"certkeeper/internal/autosave"
)

func newEditCmd() *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:     "edit <id>",
		Short:   "Change fields of a certificate",
		Example: `  certkeeper cert edit 6f1c2a8e --set installationAddress="2 Mill Lane" --set circuits='[{"ref":"1"}]'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := appctx.From(cmd)
			if err != nil {
				return err
			}
			assignments, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			if len(assignments) == 0 {
				return errors.New("nothing to change, pass at least one --set")
			}

			s, err := env.App.OpenSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if err := apply(s, assignments); err != nil {
				return err
			}
			return report(cmd, env, s.Save(cmd.Context()))
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "field assignment path=value, repeatable")
	return cmd
}

// report prints the outcome of an autosave.
func report(cmd *cobra.Command, env *appctx.Env, snap autosave.Snapshot) error {
	out := cmd.OutOrStdout()
	if env.JSON {
		return appctx.PrintJSON(out, snap)
	}
	switch snap.Status {
	case autosave.StatusError:
		return fmt.Errorf("save failed for %s", snap.ID)
	case autosave.StatusOffline:
		fmt.Fprintf(out, "%s: %s, queued until the server is reachable\n", snap.ID, appctx.Autosave(snap.Status))
	case autosave.StatusIdle:
		if !snap.LastSaved.IsZero() {
			fmt.Fprintf(out, "%s: %s\n", snap.ID, appctx.Autosave(autosave.StatusSaved))
			return nil
		}
		fmt.Fprintf(out, "%s: not saved, the certificate is finalized\n", snap.ID)
	default:
		fmt.Fprintf(out, "%s: %s\n", snap.ID, appctx.Autosave(snap.Status))
	}
	return nil
}
