package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/store"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List expiry alerts",
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

		level, _ := cmd.Flags().GetString("level")
		state, _ := cmd.Flags().GetString("state")
		itemID, _ := cmd.Flags().GetString("item")
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.AlertFilter{
			FoodItemID: itemID,
			Level:      model.AlertLevel(level),
			State:      model.AlertState(state),
			OpenOnly:   !all && state == "",
			Limit:      limit,
		}

		alerts, err := st.ListAlerts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list alerts")
		}

		if len(alerts) == 0 {
			fmt.Fprintln(os.Stderr, "No alerts found.")
			return nil
		}

		formatAlertsList(os.Stdout, alerts)
		return nil
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge an active alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Engine.Acknowledge(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("Alert acknowledged.")
		return nil
	},
}

func formatAlertsList(w io.Writer, alerts []model.Alert) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tLEVEL\tSTATE\tMESSAGE\tFAILED\tID")
	for _, a := range alerts {
		failed := "-"
		if a.NotificationFailed() {
			failed = strings.Join(a.FailedChannels, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.CreatedAt.Format("2006-01-02 15:04"), a.Level, a.State, a.Message, failed, a.ID)
	}
	tw.Flush()
}

func init() {
	alertsCmd.Flags().String("level", "", "filter by level (normal|warning|critical)")
	alertsCmd.Flags().String("state", "", "filter by state (active|acknowledged|resolved)")
	alertsCmd.Flags().String("item", "", "filter by food item id")
	alertsCmd.Flags().Bool("all", false, "include resolved alerts")
	alertsCmd.Flags().Int("limit", 0, "maximum rows to return")
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(ackCmd)
}
