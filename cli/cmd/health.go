package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trailpoint-systems/trailpoint/cli/pkg/output"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		health, err := c.Health()
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		format, _ := cmd.Flags().GetString("output")
		if handled, err := output.Render(format, health); handled {
			return err
		}

		if health.Status == "healthy" {
			output.Success("Server is healthy (database: %s)", health.Database)
		} else {
			output.Warn("Server is %s (database: %s)", health.Status, health.Database)
		}
		return nil
	},
}

var configureCmd = &cobra.Command{
	Use:   "configure [profile]",
	Short: "Save a connection profile",
	Long:  "Save a named profile with the server URL and the actor recorded in the audit trail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "default"
		if len(args) == 1 {
			name = args[0]
		}

		serverURL, _ := cmd.Flags().GetString("server")
		actor, _ := cmd.Flags().GetString("actor")
		if serverURL == "" {
			return fmt.Errorf("--server is required")
		}

		if err := cfg.SaveProfile(name, serverURL, actor); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}

		output.Success("Profile '%s' saved", name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configureCmd)

	configureCmd.Flags().String("actor", "", "Actor ID attached to mutations")
}
