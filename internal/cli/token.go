package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/runlog/internal/auth"
)

func newTokenCommand(deps Deps) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.Issue(auth.Config{Secret: deps.Config.JWTSecret, Issuer: deps.Config.JWTIssuer}, subject, scopes, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "user id placed in the sub claim")
	cmd.Flags().StringSliceVar(&scopes, "scopes", auth.DefaultScopes, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
