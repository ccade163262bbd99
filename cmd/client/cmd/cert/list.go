package cert

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"certkeeper/cmd/client/cmd/appctx"
	"certkeeper/internal/domain/certificate"
	"certkeeper/internal/draftstore"
)

func newListCmd() *cobra.Command {
	var typ, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List certificates, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := appctx.From(cmd)
			if err != nil {
				return err
			}

			var f draftstore.Filter
			if typ != "" {
				if f.Type, err = certificate.ParseType(typ); err != nil {
					return err
				}
			}
			if status != "" {
				if f.Status, err = certificate.ParseStatus(status); err != nil {
					return err
				}
			}

			recs := env.App.List(f)
			out := cmd.OutOrStdout()
			if env.JSON {
				return appctx.PrintJSON(out, recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "No certificates found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tCLIENT\tADDRESS\tUPDATED")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.ID,
					rec.CertificateType,
					appctx.Status(rec.Status),
					truncate(rec.ClientName, 30),
					truncate(rec.InstallationAddress, 40),
					rec.UpdatedAt.Local().Format("2006-01-02 15:04"),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nTotal: %d\n", len(recs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "only this certificate type")
	cmd.Flags().StringVarP(&status, "status", "s", "", "only this status")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
