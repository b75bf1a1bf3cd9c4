package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hidrobio/price-monitor/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "price-monitor",
	Short: "Daily produce price monitoring for the Paraguayan market",
	Long:  "Collects supermarket and wholesale prices, derives per-segment price recommendations against the market median, and publishes daily JSON/XLSX reports.",
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
