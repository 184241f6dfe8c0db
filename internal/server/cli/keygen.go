package cli

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/fieldseal/internal/cryptox"
	"github.com/spf13/cobra"
)

func newKeygenCommand() *cobra.Command {
	var out string
	var bits int
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the RSA sealing key pair",
		Long: `keygen writes <out> (private key, mode 0600) and <out>.pub (public key).
Distribute the public key to devices so they can verify seals offline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := cryptox.GenerateRSAKey(bits)
			if err != nil {
				return err
			}
			priv, err := cryptox.EncodePrivateKeyPEM(key)
			if err != nil {
				return err
			}
			pub, err := cryptox.EncodePublicKeyPEM(&key.PublicKey)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, priv, 0o600); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			if err := os.WriteFile(out+".pub", pub, 0o644); err != nil {
				return fmt.Errorf("write public key: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s.pub\n", out, out)
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", "seal.pem", "private key path")
	cmd.Flags().IntVar(&bits, "bits", 3072, "RSA key size")
	return cmd
}
