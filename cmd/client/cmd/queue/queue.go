package queue

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"certkeeper/cmd/client/cmd/appctx"
)

// NewCmd groups the offline queue commands.
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay saves made while offline",
	}
	cmd.AddCommand(newListCmd(), newFlushCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show pending saves in the order they will be written",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := appctx.From(cmd)
			if err != nil {
				return err
			}
			entries := env.App.QueueEntries()
			out := cmd.OutOrStdout()
			if env.JSON {
				return appctx.PrintJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tENQUEUED")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\n", e.ID, e.EnqueuedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func newFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Write pending saves to the store now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := appctx.From(cmd)
			if err != nil {
				return err
			}
			res, err := env.App.FlushQueue(cmd.Context())
			out := cmd.OutOrStdout()
			if env.JSON {
				if perr := appctx.PrintJSON(out, map[string]any{
					"written":  res.Written,
					"failed":   len(res.Failed),
					"requeued": res.Requeued,
				}); perr != nil {
					return perr
				}
				return err
			}
			for _, id := range res.Written {
				fmt.Fprintf(out, "%s %s\n", color.GreenString("written"), id)
			}
			for _, f := range res.Failed {
				fmt.Fprintf(out, "%s %s: %v\n", color.RedString("failed"), f.ID, f.Err)
			}
			if len(res.Failed) > 0 {
				return errors.New("some queued saves could not be written and stay queued")
			}
			if len(res.Written) == 0 {
				fmt.Fprintln(out, "Nothing to flush")
			}
			return err
		},
	}
}
