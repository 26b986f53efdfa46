package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"darksight/cmd/darksight/ui"
	"darksight/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scan runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.History(historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.Dim("no scans recorded"))
			return nil
		}

		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(out, "%s %s  %s\n",
				e.Created.Format("2006-01-02 15:04"), ui.StatusBadge(e.Status), e.Target)
			fmt.Fprintf(out, "  %s\n", ui.Dim(fmt.Sprintf(
				"run %s: %d findings, score %d, %d/%d tiles (%s)",
				e.RunID, len(e.Findings), e.Score, e.Tiles, e.Total, e.Outcome)))
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop the persisted session signature and scan history",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum runs to show")
}
