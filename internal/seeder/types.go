package seeder

// Status is the terminal state of one table's seed application.
type Status string

const (
	// StatusSeeded means the table's plan committed; Inserted and Skipped
	// carry the per-row outcome split.
	StatusSeeded Status = "seeded"
	// StatusNoSeed means the table declares no seed plan. The table still
	// counts as completed for dependency and verification purposes.
	StatusNoSeed Status = "no-seed"
	// StatusFailed means the table's transaction rolled back.
	StatusFailed Status = "failed"
	// StatusSkipped means the table was never attempted because a table it
	// depends on did not complete, or the run was cancelled first.
	StatusSkipped Status = "skipped"
)

// Result is the per-table outcome of a seed application.
type Result struct {
	Table    string
	Status   Status
	Inserted int
	Skipped  int
	Err      error
}

// Completed reports whether dependents of this table may proceed and
// whether its verification tests can be evaluated.
func (r *Result) Completed() bool {
	return r.Status == StatusSeeded || r.Status == StatusNoSeed
}
