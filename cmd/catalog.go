package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pantrysense/pantry-cli/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the barcode product catalog",
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check [file.xlsx]",
	Short: "Validate a product catalog spreadsheet",
	Long:  "Loads the catalog the same way scan does and reports how many products imported. Rows with a missing barcode or invalid shelf life are skipped.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Detection.CatalogPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no catalog path given and detection.catalog_path is not set")
		}

		cat := catalog.New()
		n, err := cat.LoadXLSX(path)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d product(s) from %s\n", n, path)
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogCheckCmd)
	rootCmd.AddCommand(catalogCmd)
}
