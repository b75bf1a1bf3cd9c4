package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/internal/store"
)

var reportDate string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a stored run report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return err
		}
		defer st.Close()

		var report *model.RunReport
		if reportDate == "" {
			report, err = st.LatestReport(ctx)
		} else {
			if _, perr := time.Parse(model.DateLayout, reportDate); perr != nil {
				return eris.Errorf("invalid --date %q, want YYYY-MM-DD", reportDate)
			}
			report, err = st.ReportForDate(ctx, reportDate)
		}
		if err != nil {
			return err
		}
		if report == nil {
			return eris.New("no report found")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "report date (YYYY-MM-DD), latest when omitted")
	rootCmd.AddCommand(reportCmd)
}
