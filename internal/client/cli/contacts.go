package cli

import (
	"fmt"
	"io"

	"github.com/dmitrijs2005/fieldseal/internal/client/app"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/spf13/cobra"
)

func newContactCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Manage clients and technicians",
	}
	cmd.AddCommand(newContactSaveCommand(s), newContactListCommand(s))
	return cmd
}

func newContactSaveCommand(s *session) *cobra.Command {
	var c domain.Contact
	var kind string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create a contact, or update it when --id names an existing one",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&c.ID, "id", "", "contact id (generated when empty)")
	cmd.Flags().StringVar(&c.WorkspaceID, "workspace", "", "workspace id")
	cmd.Flags().StringVar(&kind, "kind", string(domain.ContactClient), "client or technician")
	cmd.Flags().StringVar(&c.Name, "name", "", "display name")
	cmd.Flags().StringVar(&c.Email, "email", "", "email address")
	cmd.Flags().StringVar(&c.Phone, "phone", "", "phone number")
	cmd.RunE = s.with(func(cmd *cobra.Command, a *app.App, _ []string) error {
		k, err := domain.ParseContactKind(kind)
		if err != nil {
			return err
		}
		in := c
		in.Kind = k
		in.WorkspaceID = s.workspace(c.WorkspaceID)
		saved, err := a.Contacts.Save(cmd.Context(), &in)
		if err != nil {
			return err
		}
		return s.printer(cmd).Print(saved, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "saved %s %s (%s)\n", saved.Kind, saved.ID, state(string(saved.SyncStatus)))
			return err
		})
	})
	return cmd
}

func newContactListCommand(s *session) *cobra.Command {
	var workspace, kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts of one kind",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace id")
	cmd.Flags().StringVar(&kind, "kind", string(domain.ContactClient), "client or technician")
	cmd.RunE = s.with(func(cmd *cobra.Command, a *app.App, _ []string) error {
		k, err := domain.ParseContactKind(kind)
		if err != nil {
			return err
		}
		list, err := a.Contacts.List(cmd.Context(), s.workspace(workspace), k)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, c := range list {
			rows = append(rows, []string{c.ID, c.Name, c.Email, c.Phone, state(string(c.SyncStatus))})
		}
		return s.printer(cmd).Table(list, []string{"ID", "NAME", "EMAIL", "PHONE", "SYNC"}, rows)
	})
	return cmd
}
