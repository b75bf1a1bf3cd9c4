package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hidrobio/price-monitor/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate the catalog file and show what would be monitored",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		fmt.Printf("catalog %s: %d products, %d segments, %d sources\n\n",
			cfg.Catalog.Path, len(cat.Products), len(cat.Segments), len(cat.Sources))

		fmt.Println("products:")
		for _, p := range cat.Products {
			fmt.Printf("  %-20s cost %8d Gs  floor %8d Gs  terms %v\n",
				p.ID, p.ProductionCost, p.AbsoluteFloor, p.SearchTerms)
		}

		fmt.Println("\nsegments (highest band first):")
		for _, s := range cat.Segments {
			fmt.Printf("  %-16s %.0f%%-%.0f%% of median (target %.0f%%), min margin %.0f%%\n",
				s.ID, s.MinPct*100, s.MaxPct*100, s.TargetPct*100, s.MinMargin*100)
		}

		fmt.Println("\nsources:")
		for _, s := range cat.Sources {
			state := "enabled"
			if !s.Enabled {
				state = "disabled"
			}
			fmt.Printf("  %-16s kind=%-10s %s\n", s.ID, s.Kind, state)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
