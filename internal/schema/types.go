package schema

import (
	"strconv"
	"strings"
)

// Table is one declared table: columns, primary key, indexes and foreign
// keys, exactly as written in its declaration file.
type Table struct {
	Name        string
	File        string
	Columns     []Column
	PrimaryKey  []string
	Indexes     []Index
	ForeignKeys []ForeignKey
}

type Column struct {
	Name     string
	Type     string
	Nullable bool
	Default  string
}

type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

type ForeignKey struct {
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   string
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// IsPrimary reports whether name is part of the declared primary key.
func (t *Table) IsPrimary(name string) bool {
	for _, pk := range t.PrimaryKey {
		if pk == name {
			return true
		}
	}
	return false
}

// Dependencies returns the distinct tables this table's foreign keys
// reference, excluding self references.
func (t *Table) Dependencies() []string {
	seen := make(map[string]bool, len(t.ForeignKeys))
	var deps []string
	for _, fk := range t.ForeignKeys {
		if fk.RefTable == t.Name || seen[fk.RefTable] {
			continue
		}
		seen[fk.RefTable] = true
		deps = append(deps, fk.RefTable)
	}
	return deps
}

// SeedPlan is one table's seed declaration. When the embedded statement
// decodes, Columns and Rows hold the structured form and RawSQL is kept
// only for reporting; otherwise Rows is empty and RawSQL is executed as
// written.
type SeedPlan struct {
	Table   string
	Columns []string
	Rows    [][]Value
	RawSQL  string
	Locals  *Locals
	File    string
}

// ColumnIndex returns the position of name in the plan's column list, or -1.
func (p *SeedPlan) ColumnIndex(name string) int {
	for i, c := range p.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Locals carries the per-file constants a seed declaration exposes to its
// implied assertions.
type Locals struct {
	RowCount int
}

// ValueKind discriminates the decoded SQL literal forms.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
	ValueExpr // verbatim SQL expression, e.g. NOW()
)

// Value is one decoded scalar from a seed row. Numbers stay textual until
// bound as query arguments, so declaration files never lose precision.
type Value struct {
	Kind ValueKind
	Text string
	Bool bool
}

func (v Value) IsNull() bool { return v.Kind == ValueNull }

// Arg returns the value in the form the database driver expects. Integral
// numbers bind as int64, everything else with a decimal point as float64.
func (v Value) Arg() any {
	switch v.Kind {
	case ValueNull:
		return nil
	case ValueBool:
		return v.Bool
	case ValueNumber:
		if n, err := strconv.ParseInt(v.Text, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v.Text, 64); err == nil {
			return f
		}
		return v.Text
	default:
		return v.Text
	}
}

// Key returns a canonical comparison key for reference checking.
func (v Value) Key() string {
	switch v.Kind {
	case ValueNull:
		return ""
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Text
	}
}

// String renders the value back as a SQL literal, for error messages and
// the plan listing.
func (v Value) String() string {
	switch v.Kind {
	case ValueNull:
		return "NULL"
	case ValueBool:
		return strings.ToUpper(strconv.FormatBool(v.Bool))
	case ValueString:
		return "'" + strings.ReplaceAll(v.Text, "'", "''") + "'"
	default:
		return v.Text
	}
}

// TestKind names one verification assertion form.
type TestKind string

const (
	TestSchemaExists     TestKind = "schema-exists"
	TestColumnCount      TestKind = "column-count"
	TestRowCount         TestKind = "row-count"
	TestReferentialCheck TestKind = "referential-check"
)

// Assertion is one declared verification test against one table. Column
// narrows a referential-check to a single foreign-key column; Expect is
// the count the count-based kinds compare against.
type Assertion struct {
	Kind   TestKind
	Table  string
	Column string
	Expect int
	File   string
}

// Set is the fully loaded declaration set for one run.
type Set struct {
	Tables     map[string]*Table
	TableNames []string // declaration order
	Seeds      []*SeedPlan
	Tests      []Assertion
}

// Seed returns the plan targeting table, or nil when the table declares no
// seed.
func (s *Set) Seed(table string) *SeedPlan {
	for _, plan := range s.Seeds {
		if plan.Table == table {
			return plan
		}
	}
	return nil
}
