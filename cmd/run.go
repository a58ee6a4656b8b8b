package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/bypabloc/portfolio-db/internal/engine"
	"github.com/spf13/cobra"
)

var runTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Apply seeds, then run verification tests",
	Long: `The full pipeline: load declarations, build the dependency graph, seed
every table in order, then evaluate all verification tests and print the
aggregated report.

Interrupting the run lets in-flight table transactions finish or roll
back; verification is skipped on a cancelled run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}

		report, err := engine.New(cfg, log).Run(ctx, engine.Options{Seed: true, Verify: true})
		if err != nil {
			return err
		}

		printTableResults(report)
		printTestResults(report)
		return reportOutcome(report, reportPathFlag(cmd, cfg.ReportPath))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("report", "", "Write the run report to this YAML file")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Abort the run after this duration (0 = no timeout)")
}
