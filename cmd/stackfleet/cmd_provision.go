package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortna/stackfleet/internal/daemon"
	"github.com/fortna/stackfleet/orchestrator"
)

var (
	provisionDryRun   bool
	provisionWatch    bool
	provisionInterval time.Duration
	provisionListen   string
	provisionOutput   string
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision a stack for every selected client",
	Long: `Discover clients from the main stack and run the provisioning pipeline
for each selected client: stack, access policy, token, datasource and,
when enabled, folder and team.

The first failure aborts the run with a non-zero exit status. Clients
finished before the failure stay provisioned and the next run converges.`,
	Example: `  stackfleet provision                       # One run
  stackfleet provision --dry-run             # Print what would be written
  stackfleet provision --watch --interval 1h # Repeat until a run fails
  stackfleet provision -o json               # Run summary as JSON`,
	RunE: runProvision,
}

func init() {
	rootCmd.AddCommand(provisionCmd)

	provisionCmd.Flags().BoolVar(&provisionDryRun, "dry-run", false, "Plan only, no writes")
	provisionCmd.Flags().BoolVar(&provisionWatch, "watch", false, "Repeat runs until one fails or a signal arrives")
	provisionCmd.Flags().DurationVar(&provisionInterval, "interval", 0, "Time between runs in watch mode (default: watch.interval)")
	provisionCmd.Flags().StringVar(&provisionListen, "listen", "", "Metrics and health address in watch mode (default: otel.metrics.listen)")
	provisionCmd.Flags().StringVarP(&provisionOutput, "output", "o", "table", "Output format: table, json")
}

func runProvision(cmd *cobra.Command, _ []string) error {
	if provisionDryRun && provisionWatch {
		return errors.New("--dry-run and --watch cannot be combined")
	}
	if err := checkFormat(provisionOutput); err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	out := cmd.OutOrStdout()

	if provisionWatch {
		return watch(cmd.Context(), a, out)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if provisionDryRun {
		plan, err := a.orch.Plan(ctx)
		if plan != nil {
			if perr := printPlan(out, plan, provisionOutput); perr != nil {
				return perr
			}
		}
		return err
	}

	result, err := a.orch.Run(ctx)
	if result != nil {
		if perr := printRunResult(out, result, provisionOutput); perr != nil {
			return perr
		}
	}
	return err
}

func watch(ctx context.Context, a *app, out io.Writer) error {
	interval := a.cfg.Watch.Interval
	if provisionInterval > 0 {
		interval = provisionInterval
	}
	listen := a.cfg.OTEL.Metrics.Listen
	if provisionListen != "" {
		listen = provisionListen
	}

	dm, err := daemon.NewMetrics(a.provider.Meter())
	if err != nil {
		return fmt.Errorf("init watch metrics: %w", err)
	}

	d, err := daemon.NewDaemon(daemon.Config{
		Interval:      interval,
		Listen:        listen,
		Gatherer:      a.provider.Registry(),
		HandleSignals: true,
	}, runFunc(a.orch, out), a.logger, dm)
	if err != nil {
		return err
	}

	a.logger.Info().Dur("interval", interval).Str("listen", listen).Msg("watch mode")
	return d.Start(ctx)
}

// runFunc adapts one orchestrator run to the daemon loop.
func runFunc(o *orchestrator.Orchestrator, out io.Writer) daemon.RunFunc {
	return func(ctx context.Context) (daemon.Report, error) {
		result, err := o.Run(ctx)
		if result == nil {
			return daemon.Report{}, err
		}
		if perr := printRunResult(out, result, provisionOutput); perr != nil && err == nil {
			err = perr
		}
		return reportOf(result), err
	}
}

func reportOf(r *orchestrator.RunResult) daemon.Report {
	return daemon.Report{
		Selected:    len(r.Selected),
		Provisioned: len(r.Provisioned),
		Writes:      r.TotalWrites(),
	}
}
