package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pantrysense/pantry-cli/internal/scheduler"
)

var watchInterval int

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the periodic expiry re-evaluation loop",
	Long:  "Re-classifies every active item on an interval so items crossing a threshold overnight raise alerts without a new scan. Runs until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		minutes := watchInterval
		if minutes == 0 {
			minutes = cfg.Scheduler.IntervalMinutes
		}
		interval := time.Duration(minutes) * time.Minute

		zap.L().Info("starting expiry watch", zap.Duration("interval", interval))
		scheduler.New(interval, env.Pipeline.Tick).Run(ctx)
		zap.L().Info("expiry watch stopped")
		return nil
	},
}

func init() {
	watchCmd.Flags().IntVar(&watchInterval, "interval", 0, "re-evaluation interval in minutes (default from config)")
	rootCmd.AddCommand(watchCmd)
}
