package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fortna/stackfleet/types"
)

var (
	stacksOutput  string
	stacksManaged bool
)

var stacksCmd = &cobra.Command{
	Use:   "stacks",
	Short: "Inspect and operate stacks of the organization",
}

var stacksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stacks of the organization",
	Example: `  stackfleet stacks list            # Every stack
  stackfleet stacks list --managed  # Only stacks created for clients`,
	RunE: runStacksList,
}

var stacksRestartCmd = &cobra.Command{
	Use:   "restart <slug>",
	Short: "Restart a stack",
	Args:  cobra.ExactArgs(1),
	RunE:  runStacksRestart,
}

func init() {
	rootCmd.AddCommand(stacksCmd)
	stacksCmd.AddCommand(stacksListCmd, stacksRestartCmd)

	stacksListCmd.Flags().StringVarP(&stacksOutput, "output", "o", "table", "Output format: table, json")
	stacksListCmd.Flags().BoolVar(&stacksManaged, "managed", false, "Only stacks provisioned for clients")
}

func runStacksList(cmd *cobra.Command, _ []string) error {
	if err := checkFormat(stacksOutput); err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	stacks, err := a.cloud.ListStacks(cmd.Context())
	if err != nil {
		return fmt.Errorf("list stacks: %w", err)
	}
	if stacksManaged {
		stacks = managedStacks(stacks, a.cfg.SlugPrefix)
	}
	return printStacks(cmd.OutOrStdout(), stacks, stacksOutput)
}

// managedStacks keeps the stacks provisioned for a client: those labelled
// with a client slug that carries prefix.
func managedStacks(stacks []types.Stack, prefix string) []types.Stack {
	var out []types.Stack
	for _, s := range stacks {
		if strings.HasPrefix(s.Labels["client-slug"], prefix) {
			out = append(out, s)
		}
	}
	return out
}

func runStacksRestart(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	slug := args[0]
	if err := a.cloud.RestartStack(cmd.Context(), slug); err != nil {
		return fmt.Errorf("restart stack %s: %w", slug, err)
	}
	a.logger.Info().Str("stack", slug).Msg("stack restart requested")
	fmt.Fprintf(cmd.OutOrStdout(), "Restart requested for %s\n", slug)
	return nil
}
