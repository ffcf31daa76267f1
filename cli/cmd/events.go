package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailpoint-systems/trailpoint/cli/internal/client"
	"github.com/trailpoint-systems/trailpoint/cli/pkg/output"
	"github.com/trailpoint-systems/trailpoint/internal/models"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Event ingestion and search",
	Long:  "Ingest new events and search stored telemetry",
}

var eventsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List events",
	Long:    "List events matching the given filters, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		opts := client.ListEventsOptions{}
		opts.EventType, _ = cmd.Flags().GetString("type")
		opts.UserID, _ = cmd.Flags().GetString("user")
		opts.StartDate, _ = cmd.Flags().GetString("start")
		opts.EndDate, _ = cmd.Flags().GetString("end")
		opts.DataPath, _ = cmd.Flags().GetString("data-path")
		opts.DataValue, _ = cmd.Flags().GetString("data-value")
		opts.Limit, _ = cmd.Flags().GetInt("limit")

		resp, err := c.ListEvents(opts)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}

		format, _ := cmd.Flags().GetString("output")
		if handled, err := output.Render(format, resp); handled {
			return err
		}

		if len(resp.Events) == 0 {
			output.Info("No events found")
			return nil
		}

		table := output.NewTable([]string{"ID", "Type", "Severity", "Source", "User", "Timestamp"})
		for _, e := range resp.Events {
			user := ""
			if e.UserID != nil {
				user = *e.UserID
			}
			table.AddRow([]string{
				e.ID,
				e.EventType,
				e.Severity,
				e.SourceSystem,
				user,
				e.Timestamp.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		output.Info("\nShowing %d of %d total events", len(resp.Events), resp.Total)

		return nil
	},
}

var eventsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Ingest a new event",
	Long:  "Ingest a single event; event data is given as inline JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		req := &models.CreateEventRequest{}
		req.EventType, _ = cmd.Flags().GetString("type")
		req.SourceSystem, _ = cmd.Flags().GetString("source")
		req.Severity, _ = cmd.Flags().GetString("severity")

		if user, _ := cmd.Flags().GetString("user"); user != "" {
			req.UserID = &user
		}
		if device, _ := cmd.Flags().GetString("device"); device != "" {
			req.DeviceID = &device
		}
		if ts, _ := cmd.Flags().GetString("timestamp"); ts != "" {
			t, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return fmt.Errorf("invalid timestamp: %w", err)
			}
			req.Timestamp = &t
		}
		if data, _ := cmd.Flags().GetString("data"); data != "" {
			if err := json.Unmarshal([]byte(data), &req.EventData); err != nil {
				return fmt.Errorf("invalid event data JSON: %w", err)
			}
		}

		event, err := c.CreateEvent(req)
		if err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}

		format, _ := cmd.Flags().GetString("output")
		if handled, err := output.Render(format, event); handled {
			return err
		}

		output.Success("Event created: %s", event.ID)
		return nil
	},
}

var eventsAlertsCmd = &cobra.Command{
	Use:   "alerts [event-id]",
	Short: "List alerts referencing an event",
	Long:  "Reverse lookup: find every alert whose related events include the given event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		resp, err := c.GetEventAlerts(args[0])
		if err != nil {
			return fmt.Errorf("failed to look up alerts: %w", err)
		}

		format, _ := cmd.Flags().GetString("output")
		if handled, err := output.Render(format, resp); handled {
			return err
		}

		if len(resp.Alerts) == 0 {
			output.Info("No alerts reference event %s", resp.EventID)
			return nil
		}

		renderAlertTable(resp.Alerts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsCreateCmd)
	eventsCmd.AddCommand(eventsAlertsCmd)

	eventsListCmd.Flags().StringP("type", "t", "", "Filter by event type")
	eventsListCmd.Flags().StringP("user", "u", "", "Filter by user ID")
	eventsListCmd.Flags().String("start", "", "Start of time range (RFC3339)")
	eventsListCmd.Flags().String("end", "", "End of time range (RFC3339)")
	eventsListCmd.Flags().String("data-path", "", "Dotted path into event data (e.g. geo.country)")
	eventsListCmd.Flags().String("data-value", "", "Value the data path must equal")
	eventsListCmd.Flags().IntP("limit", "l", 0, "Maximum results (default 100, max 1000)")

	eventsCreateCmd.Flags().StringP("type", "t", "", "Event type (security, identity, financial, endpoint, email)")
	eventsCreateCmd.Flags().StringP("source", "s", "", "Source system")
	eventsCreateCmd.Flags().String("severity", "info", "Severity (info, low, medium, high, critical)")
	eventsCreateCmd.Flags().StringP("user", "u", "", "User ID")
	eventsCreateCmd.Flags().String("device", "", "Device ID")
	eventsCreateCmd.Flags().String("timestamp", "", "Event timestamp (RFC3339, default now)")
	eventsCreateCmd.Flags().StringP("data", "d", "", "Event data as inline JSON")
	if err := eventsCreateCmd.MarkFlagRequired("type"); err != nil {
		panic(fmt.Sprintf("failed to mark type as required: %v", err))
	}
	if err := eventsCreateCmd.MarkFlagRequired("source"); err != nil {
		panic(fmt.Sprintf("failed to mark source as required: %v", err))
	}
}
