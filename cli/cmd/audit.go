package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trailpoint-systems/trailpoint/cli/pkg/output"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail inspection",
	Long:  "List entries from the append-only audit trail",
}

var auditListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List audit entries",
	Long:    "List audit entries, newest first, optionally filtered by user or action",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		user, _ := cmd.Flags().GetString("user")
		action, _ := cmd.Flags().GetString("action")
		limit, _ := cmd.Flags().GetInt("limit")

		resp, err := c.ListAuditLogs(user, action, limit)
		if err != nil {
			return fmt.Errorf("failed to list audit entries: %w", err)
		}

		format, _ := cmd.Flags().GetString("output")
		if handled, err := output.Render(format, resp); handled {
			return err
		}

		if len(resp.Entries) == 0 {
			output.Info("No audit entries found")
			return nil
		}

		table := output.NewTable([]string{"ID", "Timestamp", "User", "Action"})
		for _, e := range resp.Entries {
			table.AddRow([]string{
				e.ID,
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.UserID,
				e.ActionType,
			})
		}
		table.Render()
		output.Info("\nShowing %d of %d total entries", len(resp.Entries), resp.Total)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)

	auditListCmd.Flags().StringP("user", "u", "", "Filter by user ID")
	auditListCmd.Flags().StringP("action", "a", "", "Filter by action type")
	auditListCmd.Flags().IntP("limit", "l", 0, "Maximum results (default 50, max 500)")
}
