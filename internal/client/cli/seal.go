package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/app"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/spf13/cobra"
)

func newSealCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "seal <job-id>",
		Short: "Seal a completed job into an evidence bundle",
		Long: `Seal hashes the canonical evidence bundle of the job and asks the backend
to sign it. When the backend is unreachable the request is queued and
delivered by the next sync; further edits to the job are refused meanwhile.`,
		Args: cobra.ExactArgs(1),
		RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
			seal, err := a.Sealing.Seal(cmd.Context(), args[0])
			if errors.Is(err, common.ErrSealQueued) {
				s.printer(cmd).Line("job %s: %s, it will be sent on the next sync", args[0], yellow("seal queued"))
				return nil
			}
			if err != nil {
				return err
			}
			return s.printer(cmd).Print(seal, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "job %s %s at %s\nevidence %s\nsignature %s (%s)\n", seal.JobID, green("sealed"),
					seal.SealedAt.UTC().Format(time.RFC3339), seal.EvidenceHash, seal.Signature, seal.Algorithm)
				return err
			})
		}),
	}
}

func newCanSealCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "can-seal <job-id>",
		Short: "Explain whether a job may be sealed",
		Args:  cobra.ExactArgs(1),
		RunE: s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
			e, err := a.Sealing.CanSeal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.printer(cmd).Print(e, func(w io.Writer) error {
				if e.Allowed {
					_, err := fmt.Fprintf(w, "job %s %s\n", args[0], green("can be sealed"))
					return err
				}
				_, err := fmt.Fprintf(w, "job %s %s:\n  %s\n", args[0], red("cannot be sealed"), strings.Join(e.Reasons, "\n  "))
				return err
			})
		}),
	}
}

func newVerifyCommand(s *session) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "verify <job-id>",
		Short: "Recompute the evidence hash and check the seal signature",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "ask the backend to verify its own copy")
	cmd.RunE = s.with(func(cmd *cobra.Command, a *app.App, args []string) error {
		var (
			res evidence.VerifyResult
			err error
		)
		if remote {
			res, err = a.Verifier.VerifyRemote(cmd.Context(), args[0])
		} else {
			res, err = a.Verifier.Verify(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}
		if perr := s.printer(cmd).Print(res, func(w io.Writer) error {
			fmt.Fprintf(w, "status    %s\n", state(string(res.Status)))
			fmt.Fprintf(w, "stored    %s\n", res.EvidenceHash)
			fmt.Fprintf(w, "computed  %s\n", res.ComputedHash)
			_, err := fmt.Fprintf(w, "sealed    %s by %s\n", res.SealedAt.UTC().Format(time.RFC3339), res.SealedBy)
			return err
		}); perr != nil {
			return perr
		}
		return res.Err()
	})
	return cmd
}
