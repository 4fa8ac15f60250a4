package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peershare/internal/config"
)

var (
	configPath    string
	flagPort      int
	flagShared    string
	flagDownloads string
	flagTransport string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:  "peershare",
	Long: `peershare shares a folder with other peers over an encrypted connection and lets you browse, download from and upload to theirs`,
	Args: cobra.NoArgs,
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

		srv, err := a.newServer()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go func() {
			if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("Peer server stopped", "error", err)
			}
		}()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== Encrypted P2P Folder Sharing ===")
		fmt.Fprintf(out, "Your shared folder: %s/\n", cfg.SharedDir)
		fmt.Fprintf(out, "Your download folder: %s/\n", cfg.DownloadDir)
		fmt.Fprintf(out, "Listening on port: %d (%s)\n", cfg.Port, cfg.Transport)

		c := newConsole(cmd.InOrStdin(), out, a.newClient(out), cfg.Port)
		return c.Run(ctx)
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultPath, "path to the JSON config file")
	flags.IntVar(&flagPort, "port", 0, "port to listen on and to dial when an address has none")
	flags.StringVar(&flagShared, "shared", "", "folder shared with peers")
	flags.StringVar(&flagDownloads, "downloads", "", "folder downloads are saved to")
	flags.StringVar(&flagTransport, "transport", "", "transport to use: tls or quic")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(gencertCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig reads the config file and applies any flags set on the command
// line on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = flagPort
	}
	if flags.Changed("shared") {
		cfg.SharedDir = flagShared
	}
	if flags.Changed("downloads") {
		cfg.DownloadDir = flagDownloads
	}
	if flags.Changed("transport") {
		cfg.Transport = flagTransport
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Lookup("metrics-addr") != nil && flags.Changed("metrics-addr") {
		cfg.MetricsAddr = flagMetricsAddr
	}

	return cfg, cfg.Validate()
}
