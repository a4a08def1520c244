package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"heavyhash.dev/miner/internal/application/commands"
	"heavyhash.dev/miner/internal/infrastructure/monitoring"
)

// NewBenchCommand creates the bench command
func NewBenchCommand(container *CLIContainer) *cobra.Command {
	var (
		duration   time.Duration
		targetBits uint32
		maxFaults  int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the active hashing backend",
		Long: `Drive every worker of the most recently loaded plugin against a
synthetic block template and verify each reported nonce on the host.`,
		Example: `  # Four CPU workers for 30 seconds
  hhminer bench --cpu-workers 4 --duration 30s

  # Export hash rates while benchmarking
  hhminer bench --metrics-addr :9100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr := container.Config.MetricsAddr; addr != "" {
				metricsCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() {
					if err := monitoring.Serve(metricsCtx, addr, container.Metrics, container.Logger.Named("metrics")); err != nil {
						container.Logger.Error("metrics server failed", "error", err)
					}
				}()
			}

			result, err := container.Bench.Run(ctx, commands.NewBenchCommand(duration, targetBits, maxFaults))
			if result != nil {
				renderBench(cmd.OutOrStdout(), result)
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&duration, flagDuration, 10*time.Second, "how long to run")
	cmd.Flags().Uint32Var(&targetBits, flagTargetBits, commands.DefaultTargetBits, "compact difficulty target, e.g. 0x1e7fffff")
	cmd.Flags().IntVar(&maxFaults, flagMaxFaults, 3, "sync faults a worker may report before it is discarded")

	return cmd
}
