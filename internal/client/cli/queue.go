package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dmitrijs2005/fieldseal/internal/client/app"
	"github.com/spf13/cobra"
)

func newSyncCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one pass over the sync queue",
		Args:  cobra.NoArgs,
		RunE: s.with(func(cmd *cobra.Command, a *app.App, _ []string) error {
			rep, err := a.Queue.Process(cmd.Context())
			if err != nil {
				return err
			}
			return s.printer(cmd).Print(rep, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "attempted %d: %s %d, %s %d, %s %d, parked %d, blocked %d\n",
					rep.Attempted, green("synced"), rep.Synced, yellow("retrying"), rep.Retried,
					red("escalated"), rep.Escalated, rep.Parked, rep.Blocked)
				return err
			})
		}),
	}
}

func newDaemonCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep syncing in the foreground until interrupted",
		Args:  cobra.NoArgs,
		RunE: s.with(func(cmd *cobra.Command, a *app.App, _ []string) error {
			events, cancel := a.Events.Subscribe(16)
			defer cancel()
			go func() {
				for e := range events {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s pending=%d failed=%d conflicts=%d\n",
						blue(string(e.Kind)), e.EntityID, e.Counts.Pending, e.Counts.Failed, e.Counts.Conflicts)
				}
			}()
			return a.Run(cmd.Context())
		}),
	}
}

func newStatusCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending, failed and conflict counts",
		Args:  cobra.NoArgs,
		RunE: s.with(func(cmd *cobra.Command, a *app.App, _ []string) error {
			c, err := a.Queue.Counts(cmd.Context())
			if err != nil {
				return err
			}
			mode := a.Watcher.Check(cmd.Context())
			v := struct {
				Mode      string `json:"mode"`
				Pending   int    `json:"pending"`
				Failed    int    `json:"failed"`
				Conflicts int    `json:"conflicts"`
			}{string(mode), c.Pending, c.Failed, c.Conflicts}
			return s.printer(cmd).Print(v, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s  pending %d  failed %d  conflicts %d\n", state(v.Mode), v.Pending, v.Failed, v.Conflicts)
				return err
			})
		}),
	}
}

func newQueueCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the sync queue",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List queued actions in delivery order",
			Args:  cobra.NoArgs,
			RunE: s.with(func(cmd *cobra.Command, a *app.App, _ []string) error {
				list, err := a.Queue.List(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(list))
				for _, q := range list {
					rows = append(rows, []string{q.ID, string(q.Type), q.EntityID, state(string(q.State)),
						strconv.Itoa(q.RetryCount), timeOrDash(q.NextAttemptAt), q.LastError})
				}
				return s.printer(cmd).Table(list, []string{"ID", "TYPE", "ENTITY", "STATE", "RETRIES", "NEXT", "ERROR"}, rows)
			}),
		},
		&cobra.Command{
			Use:   "cancel <action-id>",
			Short: "Drop a pending action",
			Args:  cobra.ExactArgs(1),
			RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
				if err := a.Queue.Cancel(cmd.Context(), args[0]); err != nil {
					return err
				}
				s.printer(cmd).Line("cancelled %s", args[0])
				return nil
			}),
		},
	)
	return cmd
}

func newFailedCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "Review actions that gave up",
	}
	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List escalated actions",
		Args:  cobra.NoArgs,
		RunE: s.with(func(cmd *cobra.Command, a *app.App, _ []string) error {
			failed, err := a.Queue.ListFailed(cmd.Context(), all)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(failed))
			for _, f := range failed {
				rows = append(rows, []string{f.ID, string(f.Type), f.EntityID, strconv.Itoa(f.RetryCount),
					strconv.FormatBool(f.Acknowledged), red(f.LastError)})
			}
			return s.printer(cmd).Table(failed, []string{"ID", "TYPE", "ENTITY", "RETRIES", "ACK", "ERROR"}, rows)
		}),
	}
	list.Flags().BoolVar(&all, "all", false, "include acknowledged actions")

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "retry <action-id>",
			Short: "Move a failed action back to the queue",
			Args:  cobra.ExactArgs(1),
			RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
				if err := a.Queue.RetryFailed(cmd.Context(), args[0]); err != nil {
					return err
				}
				s.printer(cmd).Line("requeued %s", args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "ack <action-id>",
			Short: "Acknowledge a failed action",
			Args:  cobra.ExactArgs(1),
			RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
				return a.Queue.AcknowledgeFailed(cmd.Context(), args[0])
			}),
		},
	)
	return cmd
}
