package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statsDays int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show waste statistics",
	Long:  "Summarizes consumption history over a lookback window: how much food was eaten versus how much expired first, broken down by category.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		stats, err := st.WasteStats(ctx, statsDays)
		if err != nil {
			return eris.Wrap(err, "waste stats")
		}

		fmt.Printf("Last %d days: %d items consumed, %d expired first (%.1f%% waste)\n",
			stats.LookbackDays, stats.TotalItems, stats.ExpiredItems, stats.WasteRate*100)

		if len(stats.ByCategory) == 0 {
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tTOTAL\tEXPIRED\tWASTE")
		for _, cw := range stats.ByCategory {
			rate := 0.0
			if cw.Total > 0 {
				rate = float64(cw.Expired) / float64(cw.Total) * 100
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\n", cw.Category, cw.Total, cw.Expired, rate)
		}
		tw.Flush()
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 30, "lookback window in days")
	rootCmd.AddCommand(statsCmd)
}
