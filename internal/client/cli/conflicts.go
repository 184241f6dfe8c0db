package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dmitrijs2005/fieldseal/internal/client/app"
	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/spf13/cobra"
)

func newConflictsCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Review and resolve diverged job edits",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List unresolved conflicts",
			Args:  cobra.NoArgs,
			RunE: s.with(func(cmd *cobra.Command, a *app.App, _ []string) error {
				list, err := a.Conflicts.List(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(list))
				for _, c := range list {
					rows = append(rows, []string{c.ID, c.JobID, strconv.FormatInt(c.LocalVersion, 10),
						strconv.FormatInt(c.RemoteVersion, 10), timeOrDash(&c.DetectedAt)})
				}
				return s.printer(cmd).Table(list, []string{"ID", "JOB", "LOCAL", "REMOTE", "DETECTED"}, rows)
			}),
		},
		&cobra.Command{
			Use:   "resolve <conflict-id> local|remote",
			Short: "Keep the device copy or adopt the backend copy",
			Args:  cobra.ExactArgs(2),
			RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
				if err := a.Conflicts.Resolve(cmd.Context(), args[0], models.Resolution(args[1])); err != nil {
					return err
				}
				s.printer(cmd).Line("conflict %s resolved with %s copy", args[0], args[1])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "check <job-id>",
			Short: "Compare a job with the backend now",
			Args:  cobra.ExactArgs(1),
			RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
				c, err := a.Conflicts.Check(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return s.printer(cmd).Print(c, func(w io.Writer) error {
					var err error
					if c == nil {
						_, err = fmt.Fprintf(w, "job %s: %s\n", args[0], green("no conflict"))
					} else {
						_, err = fmt.Fprintf(w, "job %s: %s %s (local v%d, remote v%d)\n", args[0], red("conflict"), c.ID, c.LocalVersion, c.RemoteVersion)
					}
					return err
				})
			}),
		},
	)
	return cmd
}
