package auth

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	platformauth "github.com/queuex-cloud/queuex/platform/go/auth"
)

// Command groups auth helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Auth utilities (super-admin tokens)",
	}

	cmd.AddCommand(tokenCommand())
	return cmd
}

func tokenCommand() *cobra.Command {
	var (
		secret    string
		subject   string
		role      string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed JWT for the company-management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := platformauth.NewManager(secret, "queuex", expiresIn)

			token, err := manager.Mint(subject, role)
			if err != nil {
				return fmt.Errorf("mint token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret (must match the API server's JWT_SECRET)")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (operator identity)")
	cmd.Flags().StringVar(&role, "role", platformauth.RoleSuperAdmin, "role claim")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 12*time.Hour, "token lifetime (e.g. 30m, 2h)")

	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
