package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailpoint-systems/trailpoint/cli/internal/seeder"
	"github.com/trailpoint-systems/trailpoint/cli/pkg/output"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo data",
	Long: `Generate and ingest realistic demo events and alerts.

Data goes through the normal API so it is validated and audited like real
traffic. Use --seed for reproducible datasets.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		cfg := seeder.DefaultConfig()
		cfg.Events, _ = cmd.Flags().GetInt("events")
		cfg.Alerts, _ = cmd.Flags().GetInt("alerts")
		cfg.Seed, _ = cmd.Flags().GetInt64("seed")
		cfg.EventsPer, _ = cmd.Flags().GetInt("events-per-alert")

		spanHours, _ := cmd.Flags().GetInt("span-hours")
		if spanHours > 0 {
			cfg.TimeSpan = time.Duration(spanHours) * time.Hour
		}

		output.Info("Seeding %d events and %d alerts...", cfg.Events, cfg.Alerts)

		eventIDs, alertIDs, err := seeder.New(c, cfg).Run()
		if err != nil {
			return fmt.Errorf("seeding failed after %d events, %d alerts: %w",
				len(eventIDs), len(alertIDs), err)
		}

		output.Success("Seeded %d events and %d alerts", len(eventIDs), len(alertIDs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().Int("events", 100, "Number of events to generate")
	seedCmd.Flags().Int("alerts", 10, "Number of alerts to generate")
	seedCmd.Flags().Int("events-per-alert", 5, "Related events per alert")
	seedCmd.Flags().Int("span-hours", 24, "Spread event timestamps over this many hours")
	seedCmd.Flags().Int64("seed", 0, "Random seed (0 = time-based)")
}
