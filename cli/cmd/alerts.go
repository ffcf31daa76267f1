package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/trailpoint-systems/trailpoint/cli/pkg/output"
	"github.com/trailpoint-systems/trailpoint/internal/models"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Alert management",
	Long:  "View and manage correlation alerts",
}

var alertsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List alerts",
	Long:    "List alerts, newest first, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		resp, err := c.ListAlerts(status, limit)
		if err != nil {
			return fmt.Errorf("failed to list alerts: %w", err)
		}

		format, _ := cmd.Flags().GetString("output")
		if handled, err := output.Render(format, resp); handled {
			return err
		}

		if len(resp.Alerts) == 0 {
			output.Info("No alerts found")
			return nil
		}

		renderAlertTable(resp.Alerts)
		output.Info("\nShowing %d of %d total alerts", len(resp.Alerts), resp.Total)

		return nil
	},
}

var alertsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new alert",
	Long:  "Create an alert, optionally referencing the events that triggered it",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		req := &models.CreateAlertRequest{}
		req.Title, _ = cmd.Flags().GetString("title")
		req.RelatedEventIDs, _ = cmd.Flags().GetStringSlice("events")

		if cmd.Flags().Changed("confidence") {
			confidence, _ := cmd.Flags().GetFloat64("confidence")
			req.ConfidenceScore = &confidence
		}

		alert, err := c.CreateAlert(req)
		if err != nil {
			return fmt.Errorf("failed to create alert: %w", err)
		}

		output.Success("Alert created: %s", alert.Title)
		output.Info("ID: %s", alert.ID)
		output.Info("Status: %s", alert.Status)

		return nil
	},
}

var alertsEventsCmd = &cobra.Command{
	Use:   "events [alert-id]",
	Short: "List the events behind an alert",
	Long:  "Resolve an alert's related event references and show the matching events, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		resp, err := c.GetAlertEvents(args[0])
		if err != nil {
			return fmt.Errorf("failed to get alert events: %w", err)
		}

		format, _ := cmd.Flags().GetString("output")
		if handled, err := output.Render(format, resp); handled {
			return err
		}

		if len(resp.Events) == 0 {
			output.Info("No events resolve for alert %s", resp.AlertID)
			return nil
		}

		table := output.NewTable([]string{"ID", "Type", "Severity", "Source", "Timestamp"})
		for _, e := range resp.Events {
			table.AddRow([]string{
				e.ID,
				e.EventType,
				e.Severity,
				e.SourceSystem,
				e.Timestamp.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()

		return nil
	},
}

var alertsStatusCmd = &cobra.Command{
	Use:   "status [alert-id] [status]",
	Short: "Change an alert's status",
	Long:  "Set an alert's status to open, investigating or resolved",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		alert, err := c.SetAlertStatus(args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to set status: %w", err)
		}

		output.Success("Alert %s is now %s", alert.ID, alert.Status)
		return nil
	},
}

var alertsConfidenceCmd = &cobra.Command{
	Use:   "confidence [alert-id] [score]",
	Short: "Set an alert's confidence score",
	Long:  "Set an alert's confidence score (0-100)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		score, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid confidence score: %w", err)
		}

		alert, err := c.SetAlertConfidence(args[0], score)
		if err != nil {
			return fmt.Errorf("failed to set confidence: %w", err)
		}

		output.Success("Alert %s confidence set to %.2f", alert.ID, score)
		return nil
	},
}

func renderAlertTable(alerts []*models.Alert) {
	table := output.NewTable([]string{"ID", "Title", "Status", "Confidence", "Events", "Created"})
	for _, a := range alerts {
		confidence := ""
		if a.ConfidenceScore != nil {
			confidence = fmt.Sprintf("%.2f", *a.ConfidenceScore)
		}
		table.AddRow([]string{
			a.ID,
			a.Title,
			a.Status,
			confidence,
			fmt.Sprintf("%d", a.EventCount),
			a.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsCreateCmd)
	alertsCmd.AddCommand(alertsEventsCmd)
	alertsCmd.AddCommand(alertsStatusCmd)
	alertsCmd.AddCommand(alertsConfidenceCmd)

	alertsListCmd.Flags().StringP("status", "s", "", "Filter by status (open, investigating, resolved)")
	alertsListCmd.Flags().IntP("limit", "l", 0, "Maximum results (default 50, max 500)")

	alertsCreateCmd.Flags().StringP("title", "t", "", "Alert title")
	alertsCreateCmd.Flags().Float64P("confidence", "c", 0, "Confidence score (0-100)")
	alertsCreateCmd.Flags().StringSliceP("events", "e", nil, "Related event IDs")
	if err := alertsCreateCmd.MarkFlagRequired("title"); err != nil {
		panic(fmt.Sprintf("failed to mark title as required: %v", err))
	}
}
