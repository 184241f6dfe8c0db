// Package cli is the fieldseal-server command tree.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/dmitrijs2005/fieldseal/internal/server"
	"github.com/dmitrijs2005/fieldseal/internal/server/config"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fieldseal/internal/server/services"
	"github.com/dmitrijs2005/fieldseal/internal/server/shared/db"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewRootCommand creates the fieldseal-server command tree.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fieldseal-server",
		Short: "Sync backend and sealing authority for fieldseal devices",
		Long: `fieldseal-server accepts job, contact and photo sync from devices,
issues photo upload URLs, seals completed jobs and serves the audit API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newServeCommand(cfg),
		newMigrateCommand(cfg),
		newTokenCommand(cfg),
		newKeygenCommand(),
	)
	return cmd
}

func newLogger(cfg *config.Config, w io.Writer) logging.Logger {
	return logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: w})
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC sync API, the HTTP audit API and the archive scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			log := newLogger(cfg, cmd.ErrOrStderr())
			a, err := server.NewApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()
			return a.Run(cmd.Context())
		},
	}
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if cfg.DatabaseDSN == "" {
				return errors.New("database dsn is required")
			}
			pool, err := db.Open(cmd.Context(), cfg.DatabaseDSN, db.DefaultPool)
			if err != nil {
				return fmt.Errorf("db init error: %w", err)
			}
			defer func() { err = errors.Join(err, pool.Close()) }()
			if err := repomanager.NewPostgresRepositoryManager().RunMigrations(cmd.Context(), pool.DB); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("migrations applied"))
			return nil
		},
	}
}

func newTokenCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage device credentials",
	}
	var device, workspace string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Enroll a device and print its bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.SecretKey == "" {
				return errors.New("secret key is required")
			}
			svc := services.NewTokenService(nil, nil, []byte(cfg.SecretKey), cfg.DeviceTokenValidity, cfg.ShareLinkValidity)
			tok, err := svc.IssueDeviceToken(device, workspace)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	issue.Flags().StringVar(&device, "device", "", "device id")
	issue.Flags().StringVar(&workspace, "workspace", "", "workspace id")
	_ = issue.MarkFlagRequired("device")
	_ = issue.MarkFlagRequired("workspace")
	cmd.AddCommand(issue)
	return cmd
}
