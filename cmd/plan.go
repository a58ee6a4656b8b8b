package cmd

import (
	"fmt"
	"strings"

	"github.com/bypabloc/portfolio-db/internal/engine"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Load declarations and print the application order",
	Long: `Load the declaration files, validate them, build the foreign-key
dependency graph and print the resulting table order. Performs no writes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		set, g, err := engine.New(cfg, log).Plan()
		if err != nil {
			return err
		}

		color.Green("📋 %d tables, %d seed plans, %d verification tests", len(set.Tables), len(set.Seeds), len(set.Tests))
		fmt.Println()

		color.Cyan("Application order: %s", strings.Join(g.Order(), " → "))
		fmt.Println()

		for i, level := range g.Levels() {
			color.White("Level %d: %s", i, strings.Join(level, ", "))
			for _, name := range level {
				for _, dep := range g.Dependencies(name) {
					fmt.Printf("    %s → %s\n", name, dep)
				}
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
