package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/fieldseal/internal/client/app"
	"github.com/dmitrijs2005/fieldseal/internal/client/config"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Output          string // "text" | "json"
	AskLegacySecret bool
}

var ValidOutputs = []string{"text", "json"}

// session opens the device on first use within a command.
type session struct {
	cfg     *config.Config
	opts    *RootOptions
	appOpts []app.Option
	app     *app.App
}

func (s *session) open(cmd *cobra.Command) (*app.App, error) {
	if s.app != nil {
		return s.app, nil
	}
	if s.opts.AskLegacySecret {
		secret, err := GetSecret(cmd.ErrOrStderr(), "Legacy HMAC secret")
		if err != nil {
			return nil, fmt.Errorf("read legacy secret: %w", err)
		}
		s.cfg.LegacyHMACSecret = string(secret)
		clear(secret)
	}
	log := logging.New(logging.Options{Level: s.cfg.LogLevel, Format: s.cfg.LogFormat, Output: cmd.ErrOrStderr()})
	a, err := app.New(cmd.Context(), s.cfg, log, s.appOpts...)
	if err != nil {
		return nil, err
	}
	s.app = a
	return a, nil
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	err := s.app.Close()
	s.app = nil
	return err
}

type runFunc func(cmd *cobra.Command, a *app.App, args []string) error

// with opens the device for the duration of one command.
func (s *session) with(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := s.open(cmd)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, s.close()) }()
		return fn(cmd, a, args)
	}
}

func (s *session) workspace(flag string) string {
	if flag != "" {
		return flag
	}
	return s.cfg.WorkspaceID
}

// NewRootCommand creates the fieldseal command tree. appOpts are passed to
// app.New when a command first needs the device.
func NewRootCommand(cfg *config.Config, appOpts ...app.Option) *cobra.Command {
	opts := &RootOptions{}
	s := &session{cfg: cfg, opts: opts, appOpts: appOpts}

	cmd := &cobra.Command{
		Use:   "fieldseal",
		Short: "Offline-first field job capture with sealed evidence",
		Long: `fieldseal records field jobs, photos and signatures on the device,
syncs them with the backend when connectivity allows and seals completed jobs
into tamper-evident evidence bundles.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidOutputs, opts.Output) {
				return fmt.Errorf("invalid output %q: must be one of %v", opts.Output, ValidOutputs)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVar(&opts.AskLegacySecret, "ask-legacy-secret", false, "prompt for the legacy HMAC secret")

	cmd.AddCommand(
		newJobCommand(s),
		newContactCommand(s),
		newPhotoCommand(s),
		newSyncCommand(s),
		newDaemonCommand(s),
		newStatusCommand(s),
		newQueueCommand(s),
		newFailedCommand(s),
		newConflictsCommand(s),
		newSealCommand(s),
		newCanSealCommand(s),
		newVerifyCommand(s),
		newExportCommand(s),
		newShareCommand(s),
	)
	return cmd
}
