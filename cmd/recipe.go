package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pantrysense/pantry-cli/internal/recipe"
	"github.com/pantrysense/pantry-cli/internal/store"
	anthropicpkg "github.com/pantrysense/pantry-cli/pkg/anthropic"
)

var (
	recipeWithin int
	recipeMax    int
)

var recipeCmd = &cobra.Command{
	Use:   "recipe",
	Short: "Suggest recipes for food that is about to expire",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Anthropic.Key == "" {
			return eris.New("PANTRY_ANTHROPIC_KEY is required for recipe suggestions")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		items, err := st.ListItems(ctx, store.ItemFilter{ExpiringWithin: recipeWithin})
		if err != nil {
			return eris.Wrap(err, "list expiring items")
		}
		if len(items) == 0 {
			fmt.Fprintf(os.Stderr, "Nothing expiring within %d days.\n", recipeWithin)
			return nil
		}

		gen := recipe.NewGenerator(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
		recipes, err := gen.Suggest(ctx, items, recipeMax)
		if err != nil {
			return eris.Wrap(err, "suggest recipes")
		}

		for i, r := range recipes {
			fmt.Printf("%d. %s (%d min)\n", i+1, r.Name, r.TimeMinutes)
			fmt.Printf("   Uses: %s\n", strings.Join(r.Uses, ", "))
			fmt.Printf("   Ingredients: %s\n", strings.Join(r.Ingredients, ", "))
			for j, step := range r.Steps {
				fmt.Printf("   %d) %s\n", j+1, step)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	recipeCmd.Flags().IntVar(&recipeWithin, "within", 3, "consider items expiring within N days")
	recipeCmd.Flags().IntVar(&recipeMax, "max", 3, "maximum number of recipes")
	rootCmd.AddCommand(recipeCmd)
}
