package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/app"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/spf13/cobra"
)

type jobFlags struct {
	workspace   string
	title       string
	client      string
	technician  string
	address     string
	notes       string
	summary     string
	scheduledAt string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "job title")
	cmd.Flags().StringVar(&f.client, "client", "", "client name")
	cmd.Flags().StringVar(&f.technician, "technician", "", "assigned technician")
	cmd.Flags().StringVar(&f.address, "address", "", "site address")
	cmd.Flags().StringVar(&f.notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&f.summary, "summary", "", "work summary")
	cmd.Flags().StringVar(&f.scheduledAt, "scheduled", "", "scheduled date (YYYY-MM-DD or RFC3339)")
}

// apply copies the flags that were set on cmd into j.
func (f *jobFlags) apply(cmd *cobra.Command, j *domain.Job) error {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("title", &j.Title, f.title)
	set("client", &j.Client, f.client)
	set("technician", &j.Technician, f.technician)
	set("address", &j.Address, f.address)
	set("notes", &j.Notes, f.notes)
	set("summary", &j.WorkSummary, f.summary)
	if cmd.Flags().Changed("scheduled") {
		t, err := parseDate(f.scheduledAt)
		if err != nil {
			return err
		}
		j.ScheduledAt = t
	}
	return nil
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", v)
}

func newJobCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Create, edit and inspect jobs",
	}
	cmd.AddCommand(
		newJobCreateCommand(s),
		newJobUpdateCommand(s),
		newJobAdvanceCommand(s),
		newJobSignCommand(s),
		newJobPullCommand(s),
		newJobListCommand(s),
		newJobShowCommand(s),
		newDraftCommand(s),
	)
	return cmd
}

func newJobCreateCommand(s *session) *cobra.Command {
	f := &jobFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job; it is queued for sync",
		Args:  cobra.NoArgs,
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.workspace, "workspace", "", "workspace id (defaults to the configured workspace)")
	cmd.RunE = s.with(func(cmd *cobra.Command, a *app.App, _ []string) error {
		j := &domain.Job{WorkspaceID: s.workspace(f.workspace)}
		if err := f.apply(cmd, j); err != nil {
			return err
		}
		created, err := a.Jobs.Create(cmd.Context(), j)
		if err != nil {
			return err
		}
		return s.printer(cmd).Print(created, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "created job %s (%s)\n", created.ID, state(string(created.SyncStatus)))
			return err
		})
	})
	return cmd
}

func newJobUpdateCommand(s *session) *cobra.Command {
	f := &jobFlags{}
	cmd := &cobra.Command{
		Use:   "update <job-id>",
		Short: "Edit job fields",
		Args:  cobra.ExactArgs(1),
	}
	f.register(cmd)
	cmd.RunE = s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
		j, err := a.Jobs.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := f.apply(cmd, j); err != nil {
			return err
		}
		updated, err := a.Jobs.Update(cmd.Context(), j)
		if err != nil {
			return err
		}
		return s.printer(cmd).Print(updated, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "updated job %s\n", updated.ID)
			return err
		})
	})
	return cmd
}

func newJobAdvanceCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <job-id> <status>",
		Short: "Move a job forward (pending, in_progress, submitted)",
		Args:  cobra.ExactArgs(2),
		RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
			to, err := domain.ParseJobStatus(args[1])
			if err != nil {
				return err
			}
			if err := a.Jobs.Advance(cmd.Context(), args[0], to); err != nil {
				return err
			}
			s.printer(cmd).Line("job %s is now %s", args[0], to)
			return nil
		}),
	}
}

func newJobSignCommand(s *session) *cobra.Command {
	var name, image string
	cmd := &cobra.Command{
		Use:   "sign <job-id>",
		Short: "Attach the customer signature",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&name, "name", "", "signer name (prompted when empty)")
	cmd.Flags().StringVar(&image, "image", "", "signature image file")
	cmd.RunE = s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
		signer := name
		if signer == "" {
			var err error
			signer, err = GetSimpleText(bufio.NewReader(cmd.InOrStdin()), "Signer name?", cmd.OutOrStdout())
			if err != nil {
				return err
			}
		}
		sig := domain.Signature{SignerName: signer, SignedAt: time.Now().UTC(), ImageRef: image}
		if err := a.Jobs.Sign(cmd.Context(), args[0], sig); err != nil {
			return err
		}
		s.printer(cmd).Line("job %s signed by %s", args[0], signer)
		return nil
	})
	return cmd
}

func newJobPullCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <job-id>",
		Short: "Fetch the backend copy of a job",
		Args:  cobra.ExactArgs(1),
		RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
			j, err := a.Jobs.Pull(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.printer(cmd).Print(j, func(w io.Writer) error { return writeJob(w, j) })
		}),
	}
}

func newJobListCommand(s *session) *cobra.Command {
	var workspace string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the workspace",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace id")
	cmd.Flags().BoolVar(&all, "all", false, "include archived jobs")
	cmd.RunE = s.with(func(cmd *cobra.Command, a *app.App, _ []string) error {
		jobs, err := a.Jobs.List(cmd.Context(), s.workspace(workspace), all)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(jobs))
		for _, j := range jobs {
			rows = append(rows, []string{j.ID, j.Title, state(j.Status.String()), state(string(j.SyncStatus)), strconv.Itoa(len(j.Photos))})
		}
		return s.printer(cmd).Table(jobs, []string{"ID", "TITLE", "STATUS", "SYNC", "PHOTOS"}, rows)
	})
	return cmd
}

func newJobShowCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
			j, err := a.Jobs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.printer(cmd).Print(j, func(w io.Writer) error { return writeJob(w, j) })
		}),
	}
}

func writeJob(w io.Writer, j *domain.Job) error {
	fmt.Fprintf(w, "ID:          %s\n", j.ID)
	fmt.Fprintf(w, "Title:       %s\n", j.Title)
	fmt.Fprintf(w, "Status:      %s\n", state(j.Status.String()))
	fmt.Fprintf(w, "Sync:        %s (base version %d)\n", state(string(j.SyncStatus)), j.BaseVersion)
	fmt.Fprintf(w, "Client:      %s\n", j.Client)
	fmt.Fprintf(w, "Technician:  %s\n", j.Technician)
	fmt.Fprintf(w, "Scheduled:   %s\n", timeOrDash(j.ScheduledAt))
	if j.Signature != nil {
		fmt.Fprintf(w, "Signed by:   %s at %s\n", j.Signature.SignerName, j.Signature.SignedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Photos:      %d\n", len(j.Photos))
	fmt.Fprintf(w, "Sealed at:   %s\n", timeOrDash(j.SealedAt))
	if j.EvidenceHash != "" {
		fmt.Fprintf(w, "Evidence:    %s\n", j.EvidenceHash)
	}
	_, err := fmt.Fprintf(w, "Archived at: %s\n", timeOrDash(j.ArchivedAt))
	return err
}

func newDraftCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Keep unfinished form input for a job",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "save <job-id> <json>",
			Short: "Save a draft",
			Args:  cobra.ExactArgs(2),
			RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
				return a.Jobs.SaveDraft(cmd.Context(), args[0], json.RawMessage(args[1]))
			}),
		},
		&cobra.Command{
			Use:   "show <job-id>",
			Short: "Print the saved draft",
			Args:  cobra.ExactArgs(1),
			RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
				d, err := a.Jobs.Draft(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return s.printer(cmd).Print(d, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, string(d.Data))
					return err
				})
			}),
		},
		&cobra.Command{
			Use:   "discard <job-id>",
			Short: "Delete the saved draft",
			Args:  cobra.ExactArgs(1),
			RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
				return a.Jobs.DiscardDraft(cmd.Context(), args[0])
			}),
		},
	)
	return cmd
}
