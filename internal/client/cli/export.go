package cli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dmitrijs2005/fieldseal/internal/client/app"
	"github.com/dmitrijs2005/fieldseal/internal/export"
	"github.com/dmitrijs2005/fieldseal/internal/filex"
	"github.com/spf13/cobra"
)

func newExportCommand(s *session) *cobra.Command {
	var format, workspace, file string
	var all bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an audit export of the workspace jobs",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or json")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace id")
	cmd.Flags().StringVar(&file, "file", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&all, "all", true, "include archived jobs")
	cmd.RunE = s.with(func(cmd *cobra.Command, a *app.App, _ []string) error {
		var write func(io.Writer, []export.Record) error
		switch format {
		case "csv":
			write = export.WriteCSV
		case "json":
			write = export.WriteJSON
		default:
			return fmt.Errorf("unknown export format %q", format)
		}
		jobs, err := a.Jobs.List(cmd.Context(), s.workspace(workspace), all)
		if err != nil {
			return err
		}
		records := export.FromJobs(jobs)
		if file == "" {
			return write(cmd.OutOrStdout(), records)
		}
		var buf bytes.Buffer
		if err := write(&buf, records); err != nil {
			return err
		}
		if err := filex.WriteAtomic(file, buf.Bytes(), 0o600); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d jobs to %s\n", len(records), file)
		return nil
	})
	return cmd
}
