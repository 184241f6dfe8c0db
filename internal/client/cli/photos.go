package cli

import (
	"fmt"
	"io"

	"github.com/dmitrijs2005/fieldseal/internal/client/app"
	"github.com/dmitrijs2005/fieldseal/internal/client/services"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/spf13/cobra"
)

func newPhotoCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "photo",
		Short: "Attach and list job photos",
	}
	cmd.AddCommand(newPhotoAddCommand(s), newPhotoListCommand(s))
	return cmd
}

func newPhotoAddCommand(s *session) *cobra.Command {
	var (
		kind     string
		takenAt  string
		lat, lng float64
	)
	cmd := &cobra.Command{
		Use:   "add <job-id> <file>",
		Short: "Attach a photo; the upload is queued",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&kind, "type", string(domain.PhotoDuring), "before, during, after or evidence")
	cmd.Flags().StringVar(&takenAt, "taken-at", "", "capture time (RFC3339, defaults to now)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "GPS latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "GPS longitude")
	cmd.RunE = s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
		t, err := domain.ParsePhotoType(kind)
		if err != nil {
			return err
		}
		np := services.NewPhoto{JobID: args[0], Path: args[1], Type: t}
		if takenAt != "" {
			at, err := parseDate(takenAt)
			if err != nil {
				return err
			}
			np.TakenAt = *at
		}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			np.GPS = &domain.GPS{Lat: lat, Lng: lng}
		}
		p, err := a.Photos.Add(cmd.Context(), np)
		if err != nil {
			return err
		}
		return s.printer(cmd).Print(p, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "added photo %s (%s)\n", p.ID, state(string(p.SyncStatus)))
			return err
		})
	})
	return cmd
}

func newPhotoListCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list <job-id>",
		Short: "List the photos of a job",
		Args:  cobra.ExactArgs(1),
		RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
			list, err := a.Photos.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list))
			for _, p := range list {
				rows = append(rows, []string{p.ID, string(p.Type), timeOrDash(&p.TakenAt), state(string(p.SyncStatus)), p.RemoteURL})
			}
			return s.printer(cmd).Table(list, []string{"ID", "TYPE", "TAKEN", "SYNC", "REMOTE"}, rows)
		}),
	}
}
