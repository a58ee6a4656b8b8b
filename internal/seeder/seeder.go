// Package seeder applies seed plans in dependency order, one transaction
// per table, with an insert-or-skip policy keyed on the declared primary
// key.
package seeder

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/bypabloc/portfolio-db/internal/db"
	"github.com/bypabloc/portfolio-db/internal/errs"
	"github.com/bypabloc/portfolio-db/internal/graph"
	"github.com/bypabloc/portfolio-db/internal/logger"
	"github.com/bypabloc/portfolio-db/internal/schema"
)

type Executor struct {
	conn    *db.Connection
	log     *logger.Logger
	workers int
}

func New(conn *db.Connection, log *logger.Logger, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{conn: conn, log: log, workers: workers}
}

// Apply seeds every table in the graph's level order and returns one
// Result per table. A failing table rolls back alone; its transitive
// dependents are marked skipped, sibling tables proceed. Cancellation
// lets in-flight transactions finish or roll back and skips the tables
// not yet started.
func (e *Executor) Apply(ctx context.Context, set *schema.Set, g *graph.Graph) map[string]*Result {
	results := make(map[string]*Result, len(set.Tables))

	for _, level := range g.Levels() {
		e.runLevel(ctx, level, set, g, results)
	}
	return results
}

func (e *Executor) seedOne(ctx context.Context, set *schema.Set, g *graph.Graph, done map[string]*Result, name string) *Result {
	for _, dep := range g.Dependencies(name) {
		if r, ok := done[dep]; ok && !r.Completed() {
			return &Result{
				Table:  name,
				Status: StatusSkipped,
				Err:    errs.New(errs.KindDanglingReference, "dependency %q did not complete", dep),
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return &Result{Table: name, Status: StatusSkipped, Err: err}
	}

	plan := set.Seed(name)
	if plan == nil {
		return &Result{Table: name, Status: StatusNoSeed}
	}

	res, err := e.seedTable(ctx, set.Tables[name], plan)
	if err != nil {
		e.log.Error().Str("table", name).Err(err).Msg("seed failed, transaction rolled back")
		return &Result{Table: name, Status: StatusFailed, Err: err}
	}
	e.log.Info().Str("table", name).Int("inserted", res.Inserted).Int("skipped", res.Skipped).Msg("seed applied")
	return res
}

// seedTable applies one plan inside a single transaction: either every row
// is written (or skipped on an existing identity) or none are.
func (e *Executor) seedTable(ctx context.Context, table *schema.Table, plan *schema.SeedPlan) (*Result, error) {
	tx, err := e.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, err, "failed to begin transaction for %q", table.Name)
	}
	defer tx.Rollback()

	res := &Result{Table: table.Name, Status: StatusSeeded}

	if len(plan.Rows) == 0 {
		// Raw statement fallback for seeds that did not decode into rows.
		// No per-row identity is available, so idempotency rests on the
		// statement's own conflict handling.
		r, err := tx.ExecContext(ctx, plan.RawSQL)
		if err != nil {
			return nil, errs.Wrap(classifyInsertErr(err), err, "raw seed statement for %q failed", table.Name)
		}
		if n, err := r.RowsAffected(); err == nil {
			res.Inserted = int(n)
		}
		if err := tx.Commit(); err != nil {
			return nil, errs.Wrap(errs.KindQuery, err, "failed to commit seed for %q", table.Name)
		}
		return res, nil
	}

	if err := e.checkReferences(ctx, tx, table, plan); err != nil {
		return nil, err
	}

	builder := e.conn.Builder()
	for i, row := range plan.Rows {
		args := make([]any, len(row))
		for j, v := range row {
			if v.Kind == schema.ValueExpr {
				args[j] = sq.Expr(v.Text)
			} else {
				args[j] = v.Arg()
			}
		}
		ins := e.conn.SkipConflicts(
			builder.Insert(table.Name).Columns(plan.Columns...).Values(args...),
		)
		r, err := ins.RunWith(tx).ExecContext(ctx)
		if err != nil {
			return nil, errs.Wrap(classifyInsertErr(err), err, "insert into %q failed at row %d", table.Name, i+1)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return nil, errs.Wrap(errs.KindQuery, err, "insert into %q: %v", table.Name, err)
		}
		if n > 0 {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Wrap(errs.KindQuery, err, "failed to commit seed for %q", table.Name)
	}
	return res, nil
}

// checkReferences verifies every foreign-key-bearing value in the plan
// against rows present at execution time, before anything is written. For
// a self-referencing key, rows earlier in the plan count as present, which
// is why seed authors must order self-referential rows parent-first.
func (e *Executor) checkReferences(ctx context.Context, tx *sql.Tx, table *schema.Table, plan *schema.SeedPlan) error {
	for _, fk := range table.ForeignKeys {
		if len(fk.Columns) != 1 {
			if err := e.checkCompositeReference(ctx, tx, table, plan, fk); err != nil {
				return err
			}
			continue
		}

		colIdx := plan.ColumnIndex(fk.Columns[0])
		if colIdx < 0 {
			continue
		}

		values := make([]string, 0, len(plan.Rows))
		seen := make(map[string]bool)
		for _, row := range plan.Rows {
			v := row[colIdx]
			if v.IsNull() || v.Kind == schema.ValueExpr {
				continue
			}
			key := valueKey(v)
			if !seen[key] {
				seen[key] = true
				values = append(values, key)
			}
		}
		if len(values) == 0 {
			continue
		}

		present, err := e.parentKeys(ctx, tx, fk.RefTable, fk.RefColumns[0], plan, colIdx)
		if err != nil {
			return err
		}

		// For a self-reference, the referenced value may also be produced
		// by an earlier row of this same plan.
		selfRefIdx := -1
		if fk.RefTable == table.Name {
			selfRefIdx = plan.ColumnIndex(fk.RefColumns[0])
		}

		for i, row := range plan.Rows {
			v := row[colIdx]
			if !v.IsNull() && v.Kind != schema.ValueExpr && !present[valueKey(v)] {
				return errs.New(errs.KindDanglingReference,
					"seed for %q row %d: column %q value %s has no matching row in %q",
					table.Name, i+1, fk.Columns[0], v, fk.RefTable)
			}
			if selfRefIdx >= 0 {
				ref := row[selfRefIdx]
				if !ref.IsNull() && ref.Kind != schema.ValueExpr {
					present[valueKey(ref)] = true
				}
			}
		}
	}
	return nil
}

// parentKeys fetches which of the plan's referenced values already exist
// in the parent table, within the seeding transaction so parents committed
// by earlier levels are visible.
func (e *Executor) parentKeys(ctx context.Context, tx *sql.Tx, refTable, refColumn string, plan *schema.SeedPlan, colIdx int) (map[string]bool, error) {
	args := make([]any, 0, len(plan.Rows))
	dedup := make(map[string]bool)
	for _, row := range plan.Rows {
		v := row[colIdx]
		if v.IsNull() || v.Kind == schema.ValueExpr {
			continue
		}
		key := valueKey(v)
		if !dedup[key] {
			dedup[key] = true
			args = append(args, v.Arg())
		}
	}

	present := make(map[string]bool, len(args))
	if len(args) == 0 {
		return present, nil
	}

	query := e.conn.Builder().
		Select(refColumn).
		From(refTable).
		Where(sq.Eq{refColumn: args})

	rows, err := query.RunWith(tx).QueryContext(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindQuery, err, "failed to probe %s.%s for existing parent rows", refTable, refColumn)
	}
	defer rows.Close()

	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, errs.Wrap(errs.KindQuery, err, "failed to scan parent key from %s", refTable)
		}
		if v.Valid {
			present[strings.ToLower(v.String)] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindQuery, err, "failed to read parent keys from %s", refTable)
	}
	return present, nil
}

// checkCompositeReference probes composite keys row by row; seed sets are
// small fixture data, so the extra round trips do not matter.
func (e *Executor) checkCompositeReference(ctx context.Context, tx *sql.Tx, table *schema.Table, plan *schema.SeedPlan, fk schema.ForeignKey) error {
	idx := make([]int, len(fk.Columns))
	for i, c := range fk.Columns {
		idx[i] = plan.ColumnIndex(c)
		if idx[i] < 0 {
			return nil
		}
	}

	for rowNum, row := range plan.Rows {
		where := sq.Eq{}
		null := false
		for i, c := range fk.RefColumns {
			v := row[idx[i]]
			if v.IsNull() || v.Kind == schema.ValueExpr {
				null = true
				break
			}
			where[c] = v.Arg()
		}
		if null {
			continue
		}

		var count int
		err := e.conn.Builder().
			Select("COUNT(*)").
			From(fk.RefTable).
			Where(where).
			RunWith(tx).
			QueryRowContext(ctx).
			Scan(&count)
		if err != nil {
			return errs.Wrap(errs.KindQuery, err, "failed to probe %q for composite parent row", fk.RefTable)
		}
		if count == 0 {
			return errs.New(errs.KindDanglingReference,
				"seed for %q row %d: foreign key %q has no matching row in %q",
				table.Name, rowNum+1, fk.Name, fk.RefTable)
		}
	}
	return nil
}

func valueKey(v schema.Value) string {
	return strings.ToLower(v.Key())
}

// classifyInsertErr separates constraint violations the conflict policy
// did not absorb (raw statements without their own conflict handling,
// live constraints the reference precheck cannot see) from other
// execution failures. Matched on message text since the three drivers
// expose no shared error type.
func classifyInsertErr(err error) errs.Kind {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "constraint") || strings.Contains(msg, "duplicate") {
		return errs.KindConstraintConflict
	}
	return errs.KindQuery
}
