package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trailpoint-systems/trailpoint/cli/internal/client"
	"github.com/trailpoint-systems/trailpoint/cli/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tpctl",
	Short: "Trailpoint CLI",
	Long: `tpctl is the command-line interface for the trailpoint correlation service.

Ingest and query events, manage alerts, inspect the audit trail and seed
demo data from your terminal.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.tpctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use")
	rootCmd.PersistentFlags().String("server", "", "server URL (overrides profile)")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json, yaml")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// apiClient builds a client from the selected profile plus flag overrides.
func apiClient(cmd *cobra.Command) (*client.Client, error) {
	profile, _ := cmd.Flags().GetString("profile")
	p, err := cfg.GetProfile(profile)
	if err != nil {
		return nil, err
	}

	serverURL := p.ServerURL
	if override, _ := cmd.Flags().GetString("server"); override != "" {
		serverURL = override
	}
	if serverURL == "" {
		return nil, fmt.Errorf("no server URL configured; set one with --server or in the config file")
	}

	return client.New(serverURL, p.Actor), nil
}
