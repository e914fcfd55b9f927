package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pantrysense/pantry-cli/internal/expiry"
	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/store"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List tracked food items",
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

		status, _ := cmd.Flags().GetString("status")
		category, _ := cmd.Flags().GetString("category")
		location, _ := cmd.Flags().GetString("location")
		within, _ := cmd.Flags().GetInt("expiring-within")
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ItemFilter{
			Status:          model.Status(status),
			Category:        model.Category(category),
			Location:        location,
			ExpiringWithin:  within,
			IncludeConsumed: all,
			Limit:           limit,
		}

		items, err := st.ListItems(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list items")
		}

		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "No items found.")
			return nil
		}

		formatItemsList(os.Stdout, items)
		return nil
	},
}

func formatItemsList(w io.Writer, items []model.FoodItem) {
	now := time.Now().UTC()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tLOCATION\tQTY\tEXPIRES\tDAYS\tSTATUS\tID")
	for i := range items {
		it := &items[i]
		expires, days := "-", "-"
		if !it.ExpiryDate.IsZero() {
			expires = it.ExpiryDate.Format("2006-01-02")
			days = fmt.Sprintf("%d", expiry.RemainingDays(it, now))
		}
		status := string(it.Status)
		if it.ReviewRequired {
			status += " (review)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			it.Name, it.Category, it.Location, it.Quantity, expires, days, status, it.ID)
	}
	tw.Flush()
}

func init() {
	itemsCmd.Flags().String("status", "", "filter by status (fresh|normal|warning|critical|expired|consumed)")
	itemsCmd.Flags().String("category", "", "filter by category")
	itemsCmd.Flags().String("location", "", "filter by storage location")
	itemsCmd.Flags().Int("expiring-within", 0, "only items expiring within N days")
	itemsCmd.Flags().Bool("all", false, "include consumed items")
	itemsCmd.Flags().Int("limit", 0, "maximum rows to return")
	rootCmd.AddCommand(itemsCmd)
}
