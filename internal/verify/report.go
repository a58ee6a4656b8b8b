package verify

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Outcome is the terminal state of one verification test.
type Outcome string

const (
	// OutcomePass means the assertion held.
	OutcomePass Outcome = "pass"
	// OutcomeFail means the assertion was evaluated and did not hold.
	OutcomeFail Outcome = "fail"
	// OutcomeError means the assertion could not be evaluated, usually
	// because its table was never successfully seeded.
	OutcomeError Outcome = "error"
)

// TestResult records one evaluated assertion with the observed value next
// to the expected one.
type TestResult struct {
	Kind     string  `yaml:"kind"`
	Table    string  `yaml:"table"`
	Column   string  `yaml:"column,omitempty"`
	Outcome  Outcome `yaml:"outcome"`
	Expected string  `yaml:"expected,omitempty"`
	Observed string  `yaml:"observed,omitempty"`
	Detail   string  `yaml:"detail,omitempty"`
}

// TableResult records one table's seed outcome for the report.
type TableResult struct {
	Table    string `yaml:"table"`
	Status   string `yaml:"status"`
	Inserted int    `yaml:"inserted"`
	Skipped  int    `yaml:"skipped"`
	Error    string `yaml:"error,omitempty"`
}

// Report is the aggregated outcome of one run. It is produced once and
// never persisted back into the declaration files.
type Report struct {
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at"`
	Tables     []TableResult `yaml:"tables,omitempty"`
	Tests      []TestResult  `yaml:"tests,omitempty"`
}

// SeedingOK reports whether every table completed (seeded or had no seed).
func (r *Report) SeedingOK() bool {
	for _, t := range r.Tables {
		if t.Status != "seeded" && t.Status != "no-seed" {
			return false
		}
	}
	return true
}

// VerificationOK is the conjunction of all test outcomes.
func (r *Report) VerificationOK() bool {
	for _, t := range r.Tests {
		if t.Outcome != OutcomePass {
			return false
		}
	}
	return true
}

// OK reports overall run success.
func (r *Report) OK() bool {
	return r.SeedingOK() && r.VerificationOK()
}

// WriteYAML writes the report to path.
func (r *Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
