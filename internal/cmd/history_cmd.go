package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peershare/internal/history"
)

var errNoHistory = errors.New("history_db is not set in the config")

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "show recent transfers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.HistoryDB == "" {
			return errNoHistory
		}

		store, err := history.Open(cfg.HistoryDB, nil)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		records, err := store.Recent(cmd.Context(), flagHistoryLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tROLE\tDIRECTION\tPEER\tFILE\tBYTES\tSTATUS")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				r.CreatedAt.Format(time.DateTime), r.Role, r.Direction, r.Peer, r.Filename, r.Bytes, r.Status)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "number of transfers to show")
}
