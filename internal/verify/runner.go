// Package verify evaluates the declared assertions against the seeded
// datastore and aggregates a pass/fail report.
package verify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bypabloc/portfolio-db/internal/db"
	"github.com/bypabloc/portfolio-db/internal/logger"
	"github.com/bypabloc/portfolio-db/internal/schema"
	"github.com/bypabloc/portfolio-db/internal/seeder"
)

type Runner struct {
	conn *db.Connection
	log  *logger.Logger
}

func NewRunner(conn *db.Connection, log *logger.Logger) *Runner {
	return &Runner{conn: conn, log: log}
}

// Run evaluates every assertion independently; a failing test never halts
// the remaining ones. seeded may be nil when verifying already-seeded data
// (the standalone verify command); otherwise tests whose table did not
// complete are recorded as error rather than fail, to distinguish "did not
// hold" from "could not be evaluated".
func (r *Runner) Run(ctx context.Context, set *schema.Set, seeded map[string]*seeder.Result) []TestResult {
	results := make([]TestResult, 0, len(set.Tests))

	for _, test := range set.Tests {
		tr := TestResult{
			Kind:   string(test.Kind),
			Table:  test.Table,
			Column: test.Column,
		}

		if seeded != nil {
			if res, ok := seeded[test.Table]; ok && !res.Completed() {
				tr.Outcome = OutcomeError
				tr.Detail = fmt.Sprintf("table %q was not seeded", test.Table)
				results = append(results, tr)
				continue
			}
		}

		r.evaluate(ctx, set, test, &tr)
		results = append(results, tr)
	}

	return results
}

// evaluate dispatches on the assertion kind; each kind fills in expected,
// observed and outcome.
func (r *Runner) evaluate(ctx context.Context, set *schema.Set, test schema.Assertion, tr *TestResult) {
	var err error
	switch test.Kind {
	case schema.TestSchemaExists:
		err = r.schemaExists(ctx, test, tr)
	case schema.TestColumnCount:
		err = r.columnCount(ctx, test, tr)
	case schema.TestRowCount:
		err = r.rowCount(ctx, test, tr)
	case schema.TestReferentialCheck:
		err = r.referentialCheck(ctx, set, test, tr)
	default:
		err = fmt.Errorf("unknown test kind %q", test.Kind)
	}

	if err != nil {
		tr.Outcome = OutcomeError
		tr.Detail = err.Error()
		r.log.Warn().Str("table", test.Table).Str("kind", string(test.Kind)).Err(err).Msg("verification test could not be evaluated")
	}
}

func (r *Runner) schemaExists(ctx context.Context, test schema.Assertion, tr *TestResult) error {
	var count int
	if err := r.conn.DB.QueryRowContext(ctx, r.conn.TableExistsQuery(), test.Table).Scan(&count); err != nil {
		return fmt.Errorf("failed to query table catalog: %w", err)
	}

	tr.Expected = "present"
	if count > 0 {
		tr.Observed = "present"
		tr.Outcome = OutcomePass
	} else {
		tr.Observed = "absent"
		tr.Outcome = OutcomeFail
	}
	return nil
}

// columnCount compares the applied schema's column count against the
// declared expectation; a mismatch means declaration and database drifted.
func (r *Runner) columnCount(ctx context.Context, test schema.Assertion, tr *TestResult) error {
	var count int
	if err := r.conn.DB.QueryRowContext(ctx, r.conn.ColumnCountQuery(), test.Table).Scan(&count); err != nil {
		return fmt.Errorf("failed to query column catalog: %w", err)
	}
	compareCounts(tr, test.Expect, count)
	return nil
}

func (r *Runner) rowCount(ctx context.Context, test schema.Assertion, tr *TestResult) error {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", test.Table)
	if err := r.conn.DB.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return fmt.Errorf("failed to count rows: %w", err)
	}
	compareCounts(tr, test.Expect, count)
	return nil
}

// referentialCheck counts rows whose foreign-key value has no matching
// primary-key row in the referenced table; the assertion expects zero.
func (r *Runner) referentialCheck(ctx context.Context, set *schema.Set, test schema.Assertion, tr *TestResult) error {
	table := set.Tables[test.Table]

	dangling := 0
	checked := false
	for _, fk := range table.ForeignKeys {
		if len(fk.Columns) != 1 {
			continue
		}
		if test.Column != "" && fk.Columns[0] != test.Column {
			continue
		}
		checked = true

		query := fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND %s NOT IN (SELECT %s FROM %s)",
			table.Name, fk.Columns[0], fk.Columns[0], fk.RefColumns[0], fk.RefTable,
		)
		var count int
		if err := r.conn.DB.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return fmt.Errorf("failed to spot-check %s.%s: %w", table.Name, fk.Columns[0], err)
		}
		dangling += count
	}

	if !checked {
		return fmt.Errorf("table %q declares no matching foreign key to check", test.Table)
	}

	compareCounts(tr, 0, dangling)
	return nil
}

func compareCounts(tr *TestResult, expected, observed int) {
	tr.Expected = strconv.Itoa(expected)
	tr.Observed = strconv.Itoa(observed)
	if expected == observed {
		tr.Outcome = OutcomePass
	} else {
		tr.Outcome = OutcomeFail
	}
}
