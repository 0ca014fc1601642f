package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	configPath  string
	secretsPath string
	logLevel    string
	jsonLogs    bool

	rootCmd = &cobra.Command{
		Use:   "stackfleet",
		Short: "Per-client Grafana Cloud stack provisioner",
		Long: `stackfleet - per-client Grafana Cloud stacks

stackfleet discovers clients from the metrics of the main stack and gives
each production client its own stack, a read-only access policy, a token
and a datasource pointing back at the main stack's metrics.

Every run converges: existing entities are matched and updated, missing
ones are created. The first failure aborts the run.`,
		Version:      version,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`stackfleet {{.Version}}
`)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yml", "Config file (.yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&secretsPath, "secrets", "secrets.yml", "Secrets file; environment variables override it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log_level from the config")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write console logs as JSON")
}
