package cmd

import (
	"fmt"

	"github.com/bypabloc/portfolio-db/internal/errs"
	"github.com/bypabloc/portfolio-db/internal/verify"
	"github.com/fatih/color"
)

func printTableResults(report *verify.Report) {
	if len(report.Tables) == 0 {
		return
	}
	color.Cyan("Seed results:")
	for _, t := range report.Tables {
		switch t.Status {
		case "seeded":
			color.Green("  ✅ %-24s %d inserted, %d skipped", t.Table, t.Inserted, t.Skipped)
		case "no-seed":
			color.White("  ·  %-24s no seed plan", t.Table)
		case "skipped":
			color.Yellow("  ⏭  %-24s skipped: %s", t.Table, t.Error)
		default:
			color.Red("  ❌ %-24s %s", t.Table, t.Error)
		}
	}
	fmt.Println()
}

func printTestResults(report *verify.Report) {
	if len(report.Tests) == 0 {
		return
	}
	color.Cyan("Verification results:")
	for _, t := range report.Tests {
		label := t.Kind
		if t.Column != "" {
			label = fmt.Sprintf("%s(%s)", t.Kind, t.Column)
		}
		switch t.Outcome {
		case verify.OutcomePass:
			color.Green("  ✅ %-24s %s", t.Table, label)
		case verify.OutcomeFail:
			color.Red("  ❌ %-24s %s: expected %s, observed %s", t.Table, label, t.Expected, t.Observed)
		default:
			color.Yellow("  ⚠️  %-24s %s: %s", t.Table, label, t.Detail)
		}
	}
	fmt.Println()
}

// reportOutcome writes the optional report file and converts the
// aggregated outcome into the error the exit-code mapping expects.
func reportOutcome(report *verify.Report, reportPath string) error {
	if reportPath != "" {
		if err := report.WriteYAML(reportPath); err != nil {
			return fmt.Errorf("failed to write report to %s: %w", reportPath, err)
		}
		color.White("Report written to %s", reportPath)
	}

	if !report.SeedingOK() {
		failed := 0
		for _, t := range report.Tables {
			if t.Status == "failed" || t.Status == "skipped" {
				failed++
			}
		}
		return errs.New(errs.KindQuery, "seeding did not complete for %d table(s)", failed)
	}

	if !report.VerificationOK() {
		failed, errored := 0, 0
		for _, t := range report.Tests {
			switch t.Outcome {
			case verify.OutcomeFail:
				failed++
			case verify.OutcomeError:
				errored++
			}
		}
		if failed > 0 {
			return errs.New(errs.KindVerificationFailure, "%d verification test(s) did not pass", failed)
		}
		return errs.New(errs.KindVerificationError, "%d verification test(s) could not be evaluated", errored)
	}

	return nil
}
