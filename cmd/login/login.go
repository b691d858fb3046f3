// Package login provides the login and logout commands
package login

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/internal/app"
)

const ssoTokenEnv = "FIELDSCAN_SSO_TOKEN"

// Command creates the login command
func Command(loader *app.Loader) *cobra.Command {
	var ssoToken string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange an SSO token for a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(ssoToken)
			if token == "" {
				token = strings.TrimSpace(os.Getenv(ssoTokenEnv))
			}
			if token == "" {
				return fmt.Errorf("an SSO token is required (--sso-token or %s)", ssoTokenEnv)
			}

			a, err := loader.Open(cmd.Context())
			if err != nil {
				return err
			}
			creds, err := a.Auth.Login(cmd.Context(), token)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "logged in as %s\n", creds.Subject)
			if !creds.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "session valid until %s\n", creds.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ssoToken, "sso-token", "", "SSO token from the identity provider")
	return cmd
}

// LogoutCommand creates the logout command
func LogoutCommand(loader *app.Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loader.Open(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Auth.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out; queued submissions are kept")
			return nil
		},
	}
}
