package cert

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"certkeeper/cmd/client/cmd/appctx"
	"certkeeper/internal/domain/certificate"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := appctx.From(cmd)
			if err != nil {
				return err
			}
			rec, ok := env.App.Get(args[0])
			if !ok {
				return fmt.Errorf("%s: %w", args[0], certificate.ErrNotFound)
			}

			out := cmd.OutOrStdout()
			if env.JSON {
				return appctx.PrintJSON(out, rec)
			}
			fmt.Fprintf(out, "%s\n", rec.CertificateType.DisplayName())
			fmt.Fprintf(out, "ID:       %s\n", rec.ID)
			fmt.Fprintf(out, "Status:   %s\n", appctx.Status(rec.Status))
			fmt.Fprintf(out, "Client:   %s\n", rec.ClientName)
			fmt.Fprintf(out, "Address:  %s\n", rec.InstallationAddress)
			fmt.Fprintf(out, "Number:   %s\n", rec.CertificateNumber)
			fmt.Fprintf(out, "Updated:  %s\n", rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

			sigs := rec.Data.Signatures()
			roles := make([]string, 0, len(sigs))
			for role := range sigs {
				roles = append(roles, role)
			}
			sort.Strings(roles)
			for _, role := range roles {
				sig := sigs[role]
				state := "unsigned"
				if sig.Signed() {
					state = "signed " + sig.SignedAtISO
				}
				fmt.Fprintf(out, "Signature %s: %s %s\n", role, state, sig.SignedByName)
			}
			fmt.Fprintln(out)
			return appctx.PrintJSON(out, rec.Data)
		},
	}
}
