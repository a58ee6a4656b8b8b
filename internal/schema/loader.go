// Package schema loads declaration files into typed, immutable table,
// seed and verification definitions.
package schema

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bypabloc/portfolio-db/internal/errs"
)

// LoadDir reads every .hcl declaration file in dir (sorted by name),
// decodes the table, seed, locals and test blocks, and runs local
// per-table validation. Cross-table reference resolution is deferred to
// the dependency graph builder, since a table may legitimately reference
// a table declared in a later file.
func LoadDir(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.KindSchemaValidation, err, "failed to read declarations directory %s", dir)
	}

	set := &Set{Tables: make(map[string]*Table)}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".hcl") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := loadFile(set, path); err != nil {
			return nil, err
		}
	}

	if len(set.Tables) == 0 {
		return nil, errs.New(errs.KindSchemaValidation, "no table declarations found in %s", dir)
	}

	if err := set.validate(); err != nil {
		return nil, err
	}

	set.attachImpliedTests()
	return set, nil
}

func loadFile(set *Set, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(errs.KindSchemaValidation, err, "failed to read %s", path)
	}

	src, heredocs, err := extractHeredocs(string(raw))
	if err != nil {
		return errs.Wrap(errs.KindSchemaValidation, err, "%s", path)
	}
	blocks, err := parseBlocks(stripComments(src))
	if err != nil {
		return errs.Wrap(errs.KindSchemaValidation, err, "%s", path)
	}

	// locals apply to the seed declared in the same file
	var fileSeeds []*SeedPlan
	var fileLocals *Locals

	for _, b := range blocks {
		switch b.kind {
		case "table":
			table, err := decodeTable(b, path)
			if err != nil {
				return err
			}
			if _, dup := set.Tables[table.Name]; dup {
				return errs.New(errs.KindSchemaValidation, "%s: duplicate table declaration %q", path, table.Name)
			}
			set.Tables[table.Name] = table
			set.TableNames = append(set.TableNames, table.Name)

		case "seed":
			plan, err := decodeSeed(b, path, heredocs)
			if err != nil {
				return err
			}
			set.Seeds = append(set.Seeds, plan)
			fileSeeds = append(fileSeeds, plan)

		case "locals":
			locals, err := decodeLocals(b, path)
			if err != nil {
				return err
			}
			if fileLocals != nil {
				return errs.New(errs.KindSchemaValidation, "%s: more than one locals block", path)
			}
			fileLocals = locals

		case "test":
			tests, err := decodeTest(b, path)
			if err != nil {
				return err
			}
			set.Tests = append(set.Tests, tests...)

		default:
			return errs.New(errs.KindSchemaValidation, "%s: unknown block kind %q", path, b.kind)
		}
	}

	if fileLocals != nil {
		if len(fileSeeds) != 1 {
			return errs.New(errs.KindSchemaValidation, "%s: locals block requires exactly one seed block in the same file", path)
		}
		fileSeeds[0].Locals = fileLocals
	}

	return nil
}

func decodeTable(b *block, path string) (*Table, error) {
	if b.label == "" {
		return nil, errs.New(errs.KindSchemaValidation, "%s: table block is missing its name label", path)
	}
	table := &Table{Name: b.label, File: path}

	for _, cb := range b.children("column") {
		if cb.label == "" {
			return nil, errs.New(errs.KindSchemaValidation, "%s: table %q: column block is missing its name label", path, table.Name)
		}
		typ, ok := cb.str("type")
		if !ok {
			return nil, errs.New(errs.KindSchemaValidation, "%s: table %q: column %q has no type", path, table.Name, cb.label)
		}
		nullable, err := cb.boolAttr("null", true)
		if err != nil {
			return nil, errs.New(errs.KindSchemaValidation, "%s: table %q column %q: %v", path, table.Name, cb.label, err)
		}
		def, _ := cb.str("default")
		table.Columns = append(table.Columns, Column{
			Name:     cb.label,
			Type:     strings.ToLower(typ),
			Nullable: nullable,
			Default:  def,
		})
	}

	if pk := b.child("primary_key"); pk != nil {
		cols, ok, err := pk.stringList("columns")
		if err != nil || !ok {
			return nil, errs.New(errs.KindSchemaValidation, "%s: table %q: primary_key needs a columns list", path, table.Name)
		}
		table.PrimaryKey = cols
	}

	for _, ib := range b.children("index") {
		cols, ok, err := ib.stringList("columns")
		if err != nil || !ok {
			return nil, errs.New(errs.KindSchemaValidation, "%s: table %q: index %q needs a columns list", path, table.Name, ib.label)
		}
		unique, err := ib.boolAttr("unique", false)
		if err != nil {
			return nil, errs.New(errs.KindSchemaValidation, "%s: table %q index %q: %v", path, table.Name, ib.label, err)
		}
		table.Indexes = append(table.Indexes, Index{Name: ib.label, Columns: cols, Unique: unique})
	}

	for _, fb := range b.children("foreign_key") {
		cols, ok, err := fb.stringList("columns")
		if err != nil || !ok {
			return nil, errs.New(errs.KindSchemaValidation, "%s: table %q: foreign_key %q needs a columns list", path, table.Name, fb.label)
		}
		refTable, ok := fb.str("ref_table")
		if !ok {
			return nil, errs.New(errs.KindSchemaValidation, "%s: table %q: foreign_key %q has no ref_table", path, table.Name, fb.label)
		}
		refCols, ok, err := fb.stringList("ref_columns")
		if err != nil || !ok {
			return nil, errs.New(errs.KindSchemaValidation, "%s: table %q: foreign_key %q needs a ref_columns list", path, table.Name, fb.label)
		}
		if len(cols) != len(refCols) {
			return nil, errs.New(errs.KindSchemaValidation, "%s: table %q: foreign_key %q has %d local columns but %d referenced columns",
				path, table.Name, fb.label, len(cols), len(refCols))
		}
		onDelete, _ := fb.str("on_delete")
		table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
			Name:       fb.label,
			Columns:    cols,
			RefTable:   refTable,
			RefColumns: refCols,
			OnDelete:   strings.ToUpper(onDelete),
		})
	}

	return table, nil
}

func decodeSeed(b *block, path string, heredocs map[string]string) (*SeedPlan, error) {
	if b.label == "" {
		return nil, errs.New(errs.KindSchemaValidation, "%s: seed block is missing its target table label", path)
	}
	plan := &SeedPlan{Table: b.label, File: path}

	declaredCols, hasCols, err := b.stringList("columns")
	if err != nil {
		return nil, errs.New(errs.KindSchemaValidation, "%s: seed %q: %v", path, plan.Table, err)
	}

	sqlAttr, ok := b.str("sql")
	if !ok {
		return nil, errs.New(errs.KindSchemaValidation, "%s: seed %q has no sql attribute", path, plan.Table)
	}
	sqlText, ok := heredocs[sqlAttr]
	if !ok {
		sqlText = sqlAttr
	}
	plan.RawSQL = strings.TrimSpace(sqlText)

	// Decode the embedded statement text into structured rows. Statements
	// that do not parse as a multi-row VALUES insert stay raw-only.
	for _, stmt := range splitStatements(plan.RawSQL) {
		data, err := parseInsert(stmt)
		if err != nil {
			continue
		}
		if data.Table != plan.Table {
			return nil, errs.New(errs.KindSchemaValidation, "%s: seed %q embeds an INSERT into %q", path, plan.Table, data.Table)
		}
		if len(plan.Rows) > 0 {
			return nil, errs.New(errs.KindSchemaValidation, "%s: seed %q embeds more than one INSERT statement", path, plan.Table)
		}
		plan.Columns = data.Columns
		plan.Rows = data.Rows
	}

	if hasCols {
		if len(plan.Rows) == 0 {
			plan.Columns = declaredCols
		} else if !equalStrings(declaredCols, plan.Columns) {
			return nil, errs.New(errs.KindSchemaValidation,
				"%s: seed %q: declared column list %v does not match the embedded INSERT column list %v",
				path, plan.Table, declaredCols, plan.Columns)
		}
	}

	return plan, nil
}

func decodeLocals(b *block, path string) (*Locals, error) {
	rowCount, ok, err := b.intAttr("row_count")
	if err != nil {
		return nil, errs.New(errs.KindSchemaValidation, "%s: locals: %v", path, err)
	}
	if !ok {
		return nil, errs.New(errs.KindSchemaValidation, "%s: locals block has no row_count", path)
	}
	if rowCount < 0 {
		return nil, errs.New(errs.KindSchemaValidation, "%s: locals: row_count must not be negative", path)
	}
	return &Locals{RowCount: rowCount}, nil
}

func decodeTest(b *block, path string) ([]Assertion, error) {
	if b.label == "" {
		return nil, errs.New(errs.KindSchemaValidation, "%s: test block is missing its target table label", path)
	}

	var tests []Assertion
	for _, ab := range b.children("assert") {
		kind := TestKind(ab.label)
		switch kind {
		case TestSchemaExists, TestColumnCount, TestRowCount, TestReferentialCheck:
		default:
			return nil, errs.New(errs.KindSchemaValidation, "%s: test %q: unknown assert kind %q", path, b.label, ab.label)
		}

		a := Assertion{Kind: kind, Table: b.label, File: path}
		expect, hasExpect, err := ab.intAttr("expect")
		if err != nil {
			return nil, errs.New(errs.KindSchemaValidation, "%s: test %q: %v", path, b.label, err)
		}
		a.Expect = expect
		a.Column, _ = ab.str("column")

		switch kind {
		case TestColumnCount, TestRowCount:
			if !hasExpect {
				return nil, errs.New(errs.KindSchemaValidation, "%s: test %q: assert %q needs an expect value", path, b.label, ab.label)
			}
		case TestSchemaExists:
			if hasExpect {
				return nil, errs.New(errs.KindSchemaValidation, "%s: test %q: assert %q takes no expect value", path, b.label, ab.label)
			}
		}

		tests = append(tests, a)
	}

	if len(tests) == 0 {
		return nil, errs.New(errs.KindSchemaValidation, "%s: test %q declares no assertions", path, b.label)
	}
	return tests, nil
}

// attachImpliedTests turns each seed's declared row_count into a row-count
// assertion when the declaration file did not spell one out.
func (s *Set) attachImpliedTests() {
	explicit := make(map[string]bool)
	for _, t := range s.Tests {
		if t.Kind == TestRowCount {
			explicit[t.Table] = true
		}
	}
	for _, plan := range s.Seeds {
		if plan.Locals == nil || explicit[plan.Table] {
			continue
		}
		s.Tests = append(s.Tests, Assertion{
			Kind:   TestRowCount,
			Table:  plan.Table,
			Expect: plan.Locals.RowCount,
			File:   plan.File,
		})
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
