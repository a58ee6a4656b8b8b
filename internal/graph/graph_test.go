package graph

import (
	"strings"
	"testing"

	"github.com/bypabloc/portfolio-db/internal/errs"
	"github.com/bypabloc/portfolio-db/internal/schema"
)

// buildSet assembles a loaded declaration set from table -> referenced
// tables, giving every table an id column and one foreign key per edge.
func buildSet(edges map[string][]string) *schema.Set {
	set := &schema.Set{Tables: make(map[string]*schema.Table)}
	for name, refs := range edges {
		t := &schema.Table{
			Name:       name,
			Columns:    []schema.Column{{Name: "id", Type: "uuid"}},
			PrimaryKey: []string{"id"},
		}
		for _, ref := range refs {
			col := ref + "_id"
			t.Columns = append(t.Columns, schema.Column{Name: col, Type: "uuid", Nullable: true})
			t.ForeignKeys = append(t.ForeignKeys, schema.ForeignKey{
				Name:       name + "_" + col + "_fkey",
				Columns:    []string{col},
				RefTable:   ref,
				RefColumns: []string{"id"},
			})
		}
		set.Tables[name] = t
		set.TableNames = append(set.TableNames, name)
	}
	return set
}

func indexOf(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestBuildOrdersReferencedTablesFirst(t *testing.T) {
	set := buildSet(map[string][]string{
		"users":       nil,
		"employers":   {"users"},
		"projects":    {"users"},
		"assignments": {"employers", "projects"},
	})

	g, err := Build(set)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	order := g.Order()
	if len(order) != 4 {
		t.Fatalf("expected 4 tables in order, got %v", order)
	}
	for name, refs := range map[string][]string{
		"employers":   {"users"},
		"projects":    {"users"},
		"assignments": {"employers", "projects"},
	} {
		for _, ref := range refs {
			if indexOf(order, ref) > indexOf(order, name) {
				t.Errorf("order %v places %s after %s", order, ref, name)
			}
		}
	}
}

func TestBuildLevels(t *testing.T) {
	set := buildSet(map[string][]string{
		"users":       nil,
		"tags":        nil,
		"employers":   {"users"},
		"projects":    {"users"},
		"assignments": {"employers", "projects"},
	})

	g, err := Build(set)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := [][]string{
		{"tags", "users"},
		{"employers", "projects"},
		{"assignments"},
	}
	levels := g.Levels()
	if len(levels) != len(want) {
		t.Fatalf("expected %d levels, got %v", len(want), levels)
	}
	for i := range want {
		if strings.Join(levels[i], ",") != strings.Join(want[i], ",") {
			t.Errorf("level %d: expected %v, got %v", i, want[i], levels[i])
		}
	}
}

func TestBuildDetectsCycle(t *testing.T) {
	set := buildSet(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	})

	_, err := Build(set)
	if !errs.IsCyclicDependency(err) {
		t.Fatalf("expected CyclicDependency error, got %v", err)
	}
	// The message names the minimal cycle, ending where it starts.
	msg := err.Error()
	if !strings.Contains(msg, " -> ") {
		t.Errorf("cycle error does not render a path: %s", msg)
	}
	for _, name := range []string{"a", "b", "c"} {
		if !strings.Contains(msg, name) {
			t.Errorf("cycle error does not mention %q: %s", name, msg)
		}
	}
}

func TestSelfReferenceIsNotACycle(t *testing.T) {
	set := buildSet(map[string][]string{
		"users":      nil,
		"categories": {"categories", "users"},
	})

	g, err := Build(set)
	if err != nil {
		t.Fatalf("self reference must not count as a cycle: %v", err)
	}
	if deps := g.Dependencies("categories"); len(deps) != 1 || deps[0] != "users" {
		t.Errorf("self edge must not appear in dependencies, got %v", deps)
	}
}

func TestBuildRejectsUnknownReferences(t *testing.T) {
	set := buildSet(map[string][]string{"employers": {"users"}})
	if _, err := Build(set); !errs.IsSchemaValidation(err) {
		t.Errorf("expected SchemaValidation error for unknown ref table, got %v", err)
	}

	set = buildSet(map[string][]string{"users": nil})
	set.Tests = []schema.Assertion{{Kind: schema.TestRowCount, Table: "ghost", Expect: 1}}
	if _, err := Build(set); !errs.IsSchemaValidation(err) {
		t.Errorf("expected SchemaValidation error for test on unknown table, got %v", err)
	}

	set = buildSet(map[string][]string{"users": nil})
	set.Tests = []schema.Assertion{{Kind: schema.TestReferentialCheck, Table: "users", Column: "id"}}
	if _, err := Build(set); !errs.IsSchemaValidation(err) {
		t.Errorf("expected SchemaValidation error for referential check on non-FK column, got %v", err)
	}
}

func TestDependents(t *testing.T) {
	set := buildSet(map[string][]string{
		"users":       nil,
		"employers":   {"users"},
		"assignments": {"employers"},
	})

	g, err := Build(set)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	got := g.Dependents("users")
	if strings.Join(got, ",") != "assignments,employers" {
		t.Errorf("expected transitive dependents of users, got %v", got)
	}
	if deps := g.Dependents("assignments"); len(deps) != 0 {
		t.Errorf("expected no dependents for a leaf, got %v", deps)
	}
}
