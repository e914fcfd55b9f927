package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pantrysense/pantry-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pantry",
	Short: "Perishable food tracking and expiry alerts",
	Long:  "Fuses camera, OCR, barcode, and manual detections into a food inventory, tracks expiry dates, and delivers alerts before food goes to waste.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
