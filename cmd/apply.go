package cmd

import (
	"github.com/bypabloc/portfolio-db/internal/engine"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Seed the database in dependency order",
	Long: `Apply every seed plan to its target table, referenced tables first.
Each table's seed runs in its own transaction; re-applying a seed skips
rows that already exist by primary key. Runs no verification tests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		report, err := engine.New(cfg, log).Run(cmd.Context(), engine.Options{Seed: true})
		if err != nil {
			return err
		}

		printTableResults(report)
		return reportOutcome(report, reportPathFlag(cmd, cfg.ReportPath))
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().String("report", "", "Write the run report to this YAML file")
}
