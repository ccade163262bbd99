package cert

import (
	"fmt"

	"github.com/spf13/cobra"

	"certkeeper/cmd/client/cmd/appctx"
	"certkeeper/internal/domain/certificate"
)

func newCreateCmd() *cobra.Command {
	var (
		typ  string
		sets []string
	)

	cmd := &cobra.Command{
		Use:     "new",
		Short:   "Create a certificate from its template",
		Example: `  certkeeper cert new --type EICR --set clientName="Acme Ltd" --set supply.ze=0.35`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := appctx.From(cmd)
			if err != nil {
				return err
			}
			t, err := certificate.ParseType(typ)
			if err != nil {
				return err
			}
			assignments, err := parseAssignments(sets)
			if err != nil {
				return err
			}

			s, err := env.App.NewSession(cmd.Context(), t)
			if err != nil {
				return err
			}
			defer s.Close()

			s.Touch()
			if err := apply(s, assignments); err != nil {
				return err
			}
			snap := s.Save(cmd.Context())
			if snap.ID == "" {
				return fmt.Errorf("certificate was not created (status %s)", snap.Status)
			}

			rec, _ := env.App.Get(snap.ID)
			if env.JSON {
				return appctx.PrintJSON(cmd.OutOrStdout(), rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s [%s]\n", rec.CertificateType, rec.ID, appctx.Status(rec.Status))
			return nil
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "certificate type: EIC, EICR, MWC, FIRE or EML")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field assignment path=value, repeatable")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
