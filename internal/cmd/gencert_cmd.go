package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peershare/internal/transport"
)

var (
	flagCertOut string
	flagKeyOut  string
)

var gencertCmd = &cobra.Command{
	Use:   "gencert",
	Short: "write a self-signed certificate and key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		certPEM, keyPEM, err := transport.GenerateSelfSignedPEM()
		if err != nil {
			return err
		}
		if err := os.WriteFile(flagCertOut, certPEM, 0o644); err != nil {
			return fmt.Errorf("writing certificate: %w", err)
		}
		if err := os.WriteFile(flagKeyOut, keyPEM, 0o600); err != nil {
			return fmt.Errorf("writing key: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s\n", flagCertOut, flagKeyOut)
		return nil
	},
}

func init() {
	gencertCmd.Flags().StringVar(&flagCertOut, "cert", "cert.pem", "certificate output path")
	gencertCmd.Flags().StringVar(&flagKeyOut, "key", "key.pem", "private key output path")
}
