package cmd

import (
	"github.com/bypabloc/portfolio-db/internal/engine"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run verification tests against already-seeded data",
	Long: `Evaluate every declared verification test (schema-exists, column-count,
row-count, referential-check) against the current database contents.
Performs no writes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		report, err := engine.New(cfg, log).Run(cmd.Context(), engine.Options{Verify: true})
		if err != nil {
			return err
		}

		printTestResults(report)
		return reportOutcome(report, reportPathFlag(cmd, cfg.ReportPath))
	},
}

// reportPathFlag prefers the --report flag over the configured default.
func reportPathFlag(cmd *cobra.Command, fallback string) string {
	if path, _ := cmd.Flags().GetString("report"); path != "" {
		return path
	}
	return fallback
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("report", "", "Write the run report to this YAML file")
}
