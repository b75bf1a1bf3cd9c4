package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one monitoring run now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Runner.Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("run finished",
			zap.String("run_id", report.RunID),
			zap.Int("observations", report.ObservationCount),
			zap.Int("alerts", len(report.Alerts)),
			zap.Bool("degraded", report.Degraded),
		)

		for _, a := range report.Alerts {
			fmt.Printf("[%s] %s %s: %s\n", a.Severity, a.Kind, a.ProductID, a.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
