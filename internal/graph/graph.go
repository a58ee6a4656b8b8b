// Package graph derives a safe application order from the foreign-key
// references between loaded table declarations.
package graph

import (
	"sort"

	"github.com/bypabloc/portfolio-db/internal/errs"
	"github.com/bypabloc/portfolio-db/internal/schema"
)

// Graph holds the derived ordering for one run: one node per table, one
// edge per foreign key from the referencing table to the referenced table.
// Self-referencing keys are same-node edges and do not participate in
// ordering.
type Graph struct {
	order  []string
	levels [][]string
	deps   map[string][]string // table -> tables it references
	rdeps  map[string][]string // table -> tables referencing it
}

// Build resolves every foreign-key reference against the loaded set and
// produces the topological order. A reference to a missing table or column
// is a validation failure; a reference cycle across distinct tables is a
// CyclicDependency failure naming the minimal cycle.
func Build(set *schema.Set) (*Graph, error) {
	if err := resolveReferences(set); err != nil {
		return nil, err
	}

	g := &Graph{
		deps:  make(map[string][]string, len(set.Tables)),
		rdeps: make(map[string][]string, len(set.Tables)),
	}

	names := make([]string, 0, len(set.Tables))
	for name := range set.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		deps := set.Tables[name].Dependencies()
		sort.Strings(deps)
		g.deps[name] = deps
		for _, dep := range deps {
			g.rdeps[dep] = append(g.rdeps[dep], name)
		}
	}

	if err := g.sort(names); err != nil {
		return nil, err
	}
	g.buildLevels()
	return g, nil
}

// resolveReferences checks the cross-table half of every declaration:
// foreign-key targets, seed targets and test targets must all name tables
// (and columns) present in the loaded set.
func resolveReferences(set *schema.Set) error {
	for _, name := range set.TableNames {
		t := set.Tables[name]
		for _, fk := range t.ForeignKeys {
			ref, ok := set.Tables[fk.RefTable]
			if !ok {
				return errs.New(errs.KindSchemaValidation,
					"table %q: foreign key %q references unknown table %q", t.Name, fk.Name, fk.RefTable)
			}
			for _, c := range fk.RefColumns {
				if ref.Column(c) == nil {
					return errs.New(errs.KindSchemaValidation,
						"table %q: foreign key %q references unknown column %s.%s", t.Name, fk.Name, fk.RefTable, c)
				}
			}
		}
	}

	for _, plan := range set.Seeds {
		if _, ok := set.Tables[plan.Table]; !ok {
			return errs.New(errs.KindSchemaValidation, "%s: seed targets undeclared table %q", plan.File, plan.Table)
		}
	}
	for _, test := range set.Tests {
		if _, ok := set.Tables[test.Table]; !ok {
			return errs.New(errs.KindSchemaValidation, "%s: test targets undeclared table %q", test.File, test.Table)
		}
		if test.Kind == schema.TestReferentialCheck && test.Column != "" {
			if !hasForeignKeyColumn(set.Tables[test.Table], test.Column) {
				return errs.New(errs.KindSchemaValidation,
					"%s: referential-check on %s.%s, which is not a foreign-key column", test.File, test.Table, test.Column)
			}
		}
	}

	return nil
}

func hasForeignKeyColumn(t *schema.Table, column string) bool {
	for _, fk := range t.ForeignKeys {
		for _, c := range fk.Columns {
			if c == column {
				return true
			}
		}
	}
	return false
}

// sort runs a depth-first topological sort with cycle detection. The
// resulting order places every referenced table before its referencing
// tables.
func (g *Graph) sort(names []string) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(names))
	var stack []string

	var visit func(string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return errs.New(errs.KindCyclicDependency, "foreign keys form a cycle: %s", cyclePath(stack, name))
		}

		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range g.deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		g.order = append(g.order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// cyclePath trims the DFS stack down to the minimal cycle and renders it.
func cyclePath(stack []string, repeat string) string {
	start := 0
	for i, name := range stack {
		if name == repeat {
			start = i
			break
		}
	}
	path := ""
	for _, name := range stack[start:] {
		path += name + " -> "
	}
	return path + repeat
}

// buildLevels groups tables whose relative order does not matter. A
// table's level is one past the deepest table it references, so every
// level only depends on earlier ones and can be seeded concurrently.
func (g *Graph) buildLevels() {
	depth := make(map[string]int, len(g.order))
	maxDepth := 0
	for _, name := range g.order { // dependencies sort earlier, so depths are ready
		d := 0
		for _, dep := range g.deps[name] {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[name] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	g.levels = make([][]string, maxDepth+1)
	for _, name := range g.order {
		d := depth[name]
		g.levels[d] = append(g.levels[d], name)
	}
	for _, level := range g.levels {
		sort.Strings(level)
	}
}

// Order returns the full topological order, referenced tables first.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Levels returns the tables grouped by dependency depth. Tables within one
// level have no edges between them.
func (g *Graph) Levels() [][]string {
	out := make([][]string, len(g.levels))
	for i, level := range g.levels {
		out[i] = append([]string(nil), level...)
	}
	return out
}

// Dependencies returns the tables that name directly references.
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.deps[name]...)
}

// Dependents returns every table that transitively references name.
func (g *Graph) Dependents(name string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, r := range g.rdeps[n] {
			if !seen[r] {
				seen[r] = true
				walk(r)
			}
		}
	}
	walk(name)

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
