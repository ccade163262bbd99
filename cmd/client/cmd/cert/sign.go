package cert

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"certkeeper/cmd/client/cmd/appctx"
	"certkeeper/internal/domain/certificate"
)

func newSignCmd() *cobra.Command {
	var role, name, value string

	cmd := &cobra.Command{
		Use:   "sign <id>",
		Short: "Sign a certificate for a role",
		Long: fmt.Sprintf(`Records a typed signature for one of the roles: %s.
An empty --value clears the signature.`, strings.Join(certificate.Roles, ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := appctx.From(cmd)
			if err != nil {
				return err
			}
			if !slices.Contains(certificate.Roles, role) {
				return fmt.Errorf("unknown role %q", role)
			}
			if !cmd.Flags().Changed("value") {
				value = name
			}

			s, err := env.App.OpenSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			s.Sign(role, certificate.Signature{
				Payload:      value,
				SignedByName: name,
			})
			return report(cmd, env, s.Save(cmd.Context()))
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", certificate.RoleInspector, "signer role")
	cmd.Flags().StringVarP(&name, "name", "n", "", "signer name")
	cmd.Flags().StringVar(&value, "value", "", "signature text or data:image URL, defaults to the name")
	return cmd
}
