package cmd

import (
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect peer-address",
	Short: "open a console against a single peer",
	Long:  `connects to one peer and runs commands against it without starting the local server`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		c := newConsole(cmd.InOrStdin(), out, a.newClient(out), cfg.Port)
		c.session(cmd.Context(), withDefaultPort(args[0], cfg.Port))
		return c.in.Err()
	},
}
