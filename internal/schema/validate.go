package schema

import (
	"regexp"

	"github.com/bypabloc/portfolio-db/internal/errs"
	"github.com/google/uuid"
)

// validIdentifier guards table and column names used to build SQL text.
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validate runs the loader's local structural checks: each table is checked
// on its own, and each seed against its own column list. Whether a foreign
// key's referenced table exists is a cross-table question and belongs to
// the graph builder.
func (s *Set) validate() error {
	for _, name := range s.TableNames {
		if err := validateTable(s.Tables[name]); err != nil {
			return err
		}
	}

	seedsByTable := make(map[string]string)
	for _, plan := range s.Seeds {
		if prev, dup := seedsByTable[plan.Table]; dup {
			return errs.New(errs.KindSchemaValidation, "%s: table %q already has a seed plan in %s", plan.File, plan.Table, prev)
		}
		seedsByTable[plan.Table] = plan.File
		if err := s.validateSeed(plan); err != nil {
			return err
		}
	}

	return nil
}

func validateTable(t *Table) error {
	if !validIdentifier.MatchString(t.Name) {
		return errs.New(errs.KindSchemaValidation, "%s: invalid table name %q", t.File, t.Name)
	}
	if len(t.Columns) == 0 {
		return errs.New(errs.KindSchemaValidation, "%s: table %q declares no columns", t.File, t.Name)
	}

	seen := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		if !validIdentifier.MatchString(col.Name) {
			return errs.New(errs.KindSchemaValidation, "%s: table %q: invalid column name %q", t.File, t.Name, col.Name)
		}
		if seen[col.Name] {
			return errs.New(errs.KindSchemaValidation, "%s: table %q: duplicate column %q", t.File, t.Name, col.Name)
		}
		seen[col.Name] = true
	}

	for _, pk := range t.PrimaryKey {
		col := t.Column(pk)
		if col == nil {
			return errs.New(errs.KindSchemaValidation, "%s: table %q: primary key names unknown column %q", t.File, t.Name, pk)
		}
		if col.Nullable {
			return errs.New(errs.KindSchemaValidation, "%s: table %q: primary key column %q must not be nullable", t.File, t.Name, pk)
		}
	}

	for _, idx := range t.Indexes {
		for _, c := range idx.Columns {
			if t.Column(c) == nil {
				return errs.New(errs.KindSchemaValidation, "%s: table %q: index %q names unknown column %q", t.File, t.Name, idx.Name, c)
			}
		}
	}

	// Only the local side of a foreign key can be checked here.
	for _, fk := range t.ForeignKeys {
		for _, c := range fk.Columns {
			if t.Column(c) == nil {
				return errs.New(errs.KindSchemaValidation, "%s: table %q: foreign key %q names unknown local column %q", t.File, t.Name, fk.Name, c)
			}
		}
	}

	return nil
}

// validateSeed checks a plan against its target table where the table is
// already loaded; a seed for a table declared elsewhere is caught by the
// graph builder instead.
func (s *Set) validateSeed(plan *SeedPlan) error {
	table, ok := s.Tables[plan.Table]
	if !ok {
		return nil
	}

	for _, colName := range plan.Columns {
		if table.Column(colName) == nil {
			return errs.New(errs.KindSchemaValidation, "%s: seed %q names unknown column %q", plan.File, plan.Table, colName)
		}
	}

	// Seed primary keys are pre-generated UUID literals; a malformed one
	// would defeat the on-conflict idempotency policy, so reject it here.
	for i, colName := range plan.Columns {
		col := table.Column(colName)
		if col == nil || col.Type != "uuid" {
			continue
		}
		for rowIdx, row := range plan.Rows {
			v := row[i]
			if v.Kind != ValueString {
				continue
			}
			if _, err := uuid.Parse(v.Text); err != nil {
				return errs.New(errs.KindSchemaValidation,
					"%s: seed %q row %d: column %q holds %q, which is not a valid UUID",
					plan.File, plan.Table, rowIdx+1, colName, v.Text)
			}
		}
	}

	return nil
}
