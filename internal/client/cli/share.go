package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/app"
	"github.com/spf13/cobra"
)

func newShareCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Issue or revoke read-only links to a job",
	}
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue <job-id>",
		Short: "Issue a share token",
		Args:  cobra.ExactArgs(1),
		RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
			token, exp, err := a.Share.Issue(cmd.Context(), args[0], ttl)
			if err != nil {
				return err
			}
			v := struct {
				Token     string    `json:"token"`
				ExpiresAt time.Time `json:"expiresAt"`
			}{token, exp}
			return s.printer(cmd).Print(v, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\nexpires %s\n", token, exp.UTC().Format(time.RFC3339))
				return err
			})
		}),
	}
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	cmd.AddCommand(
		issue,
		&cobra.Command{
			Use:   "revoke <job-id>",
			Short: "Revoke every share token of a job",
			Args:  cobra.ExactArgs(1),
			RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
				n, err := a.Share.Revoke(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				s.printer(cmd).Line("revoked %d tokens", n)
				return nil
			}),
		},
	)
	return cmd
}
