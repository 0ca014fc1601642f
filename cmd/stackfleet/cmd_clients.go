package main

import (
	"context"

	"github.com/spf13/cobra"
)

var clientsOutput string

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List the clients a run would provision",
	Long: `Find the main stack, run the discovery query against its metrics and
apply the environment and exclusion filters. Nothing is written.`,
	RunE: runClients,
}

func init() {
	rootCmd.AddCommand(clientsCmd)
	clientsCmd.Flags().StringVarP(&clientsOutput, "output", "o", "table", "Output format: table, json")
}

func runClients(cmd *cobra.Command, _ []string) error {
	if err := checkFormat(clientsOutput); err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	sel, err := a.orch.Clients(cmd.Context())
	if err != nil {
		return err
	}
	return printClients(cmd.OutOrStdout(), sel, clientsOutput)
}
