package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pantrysense/pantry-cli/internal/expiry"
)

var consumeCmd = &cobra.Command{
	Use:   "consume <item-id>",
	Short: "Mark a food item as consumed",
	Long:  "Records consumption for waste statistics, removes the item from active tracking, and resolves its open alerts.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		now := time.Now().UTC()
		itemID := args[0]

		item, err := env.Store.GetItem(ctx, itemID)
		if err != nil {
			return err
		}

		if err := env.Pipeline.Consume(ctx, itemID, now); err != nil {
			return err
		}

		days := expiry.RemainingDays(item, now)
		switch {
		case days < 0:
			fmt.Printf("Consumed %s (was %d day(s) past its expiry date)\n", item.Name, -days)
		default:
			fmt.Printf("Consumed %s (%d day(s) before expiry)\n", item.Name, days)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}
