package verify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bypabloc/portfolio-db/internal/db"
	"github.com/bypabloc/portfolio-db/internal/logger"
	"github.com/bypabloc/portfolio-db/internal/schema"
	"github.com/bypabloc/portfolio-db/internal/seeder"
)

func openSQLite(t *testing.T, ddl ...string) *db.Connection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "verify_test.db")
	conn, err := db.Open(context.Background(), "sqlite", path, 1)
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	for _, stmt := range ddl {
		if _, err := conn.DB.Exec(stmt); err != nil {
			t.Fatalf("ddl failed: %v\n%s", err, stmt)
		}
	}
	return conn
}

func fixtureSet() *schema.Set {
	users := &schema.Table{
		Name:       "users",
		Columns:    []schema.Column{{Name: "id", Type: "uuid"}, {Name: "email", Type: "text"}},
		PrimaryKey: []string{"id"},
	}
	employers := &schema.Table{
		Name: "employers",
		Columns: []schema.Column{
			{Name: "id", Type: "uuid"},
			{Name: "user_id", Type: "uuid"},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []schema.ForeignKey{{
			Name:       "employers_user_id_fkey",
			Columns:    []string{"user_id"},
			RefTable:   "users",
			RefColumns: []string{"id"},
		}},
	}
	return &schema.Set{
		Tables:     map[string]*schema.Table{"users": users, "employers": employers},
		TableNames: []string{"users", "employers"},
	}
}

func outcomeByKind(results []TestResult, kind string, table string) *TestResult {
	for i := range results {
		if results[i].Kind == kind && results[i].Table == table {
			return &results[i]
		}
	}
	return nil
}

func TestRunEvaluatesAllKinds(t *testing.T) {
	conn := openSQLite(t,
		`CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL)`,
		`CREATE TABLE employers (id TEXT PRIMARY KEY, user_id TEXT NOT NULL)`,
		`INSERT INTO users VALUES ('u1', 'pablo@example.dev'), ('u2', 'ada@example.dev')`,
		`INSERT INTO employers VALUES ('e1', 'u1')`,
	)

	set := fixtureSet()
	set.Tests = []schema.Assertion{
		{Kind: schema.TestSchemaExists, Table: "users"},
		{Kind: schema.TestColumnCount, Table: "users", Expect: 2},
		{Kind: schema.TestRowCount, Table: "users", Expect: 2},
		{Kind: schema.TestReferentialCheck, Table: "employers", Column: "user_id"},
	}

	results := NewRunner(conn, logger.Nop()).Run(context.Background(), set, nil)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Outcome != OutcomePass {
			t.Errorf("%s on %s: expected pass, got %s (%s)", r.Kind, r.Table, r.Outcome, r.Detail)
		}
	}
}

func TestRunReportsMismatchAsFail(t *testing.T) {
	conn := openSQLite(t,
		`CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL)`,
		`INSERT INTO users VALUES ('u1', 'pablo@example.dev')`,
	)

	set := fixtureSet()
	set.Tests = []schema.Assertion{
		{Kind: schema.TestRowCount, Table: "users", Expect: 5},
		{Kind: schema.TestSchemaExists, Table: "employers"},
	}

	results := NewRunner(conn, logger.Nop()).Run(context.Background(), set, nil)

	rc := outcomeByKind(results, "row-count", "users")
	if rc == nil || rc.Outcome != OutcomeFail {
		t.Fatalf("expected row-count fail, got %+v", rc)
	}
	if rc.Expected != "5" || rc.Observed != "1" {
		t.Errorf("expected 5 vs observed 1, got %q vs %q", rc.Expected, rc.Observed)
	}

	se := outcomeByKind(results, "schema-exists", "employers")
	if se == nil || se.Outcome != OutcomeFail || se.Observed != "absent" {
		t.Errorf("expected schema-exists fail with observed absent, got %+v", se)
	}
}

func TestRunDetectsDanglingRows(t *testing.T) {
	conn := openSQLite(t,
		`CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL)`,
		`CREATE TABLE employers (id TEXT PRIMARY KEY, user_id TEXT NOT NULL)`,
		`INSERT INTO users VALUES ('u1', 'pablo@example.dev')`,
		`INSERT INTO employers VALUES ('e1', 'u1'), ('e2', 'ghost')`,
	)

	set := fixtureSet()
	set.Tests = []schema.Assertion{
		{Kind: schema.TestReferentialCheck, Table: "employers"},
	}

	results := NewRunner(conn, logger.Nop()).Run(context.Background(), set, nil)
	r := results[0]
	if r.Outcome != OutcomeFail || r.Observed != "1" {
		t.Errorf("expected 1 dangling row to fail the check, got %+v", r)
	}
}

func TestRunUnseededTableIsError(t *testing.T) {
	conn := openSQLite(t,
		`CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL)`,
	)

	set := fixtureSet()
	set.Tests = []schema.Assertion{
		{Kind: schema.TestRowCount, Table: "users", Expect: 2},
		{Kind: schema.TestRowCount, Table: "employers", Expect: 1},
	}
	seeded := map[string]*seeder.Result{
		"users":     {Table: "users", Status: seeder.StatusSeeded},
		"employers": {Table: "employers", Status: seeder.StatusFailed},
	}

	results := NewRunner(conn, logger.Nop()).Run(context.Background(), set, seeded)

	emp := outcomeByKind(results, "row-count", "employers")
	if emp == nil || emp.Outcome != OutcomeError {
		t.Fatalf("expected error outcome for an unseeded table, got %+v", emp)
	}
	// The seeded table is still evaluated on its own merits.
	if u := outcomeByKind(results, "row-count", "users"); u == nil || u.Outcome == OutcomeError {
		t.Errorf("seeded table must still be evaluated, got %+v", u)
	}
}

func TestReportAggregation(t *testing.T) {
	r := &Report{
		Tables: []TableResult{
			{Table: "users", Status: "seeded", Inserted: 2},
			{Table: "tags", Status: "no-seed"},
		},
		Tests: []TestResult{
			{Kind: "row-count", Table: "users", Outcome: OutcomePass},
		},
	}
	if !r.SeedingOK() || !r.VerificationOK() || !r.OK() {
		t.Errorf("expected a fully green report, got %+v", r)
	}

	r.Tables = append(r.Tables, TableResult{Table: "employers", Status: "failed", Error: "boom"})
	if r.SeedingOK() || r.OK() {
		t.Error("a failed table must fail the report")
	}

	r.Tests = append(r.Tests, TestResult{Kind: "row-count", Table: "users", Outcome: OutcomeFail})
	if r.VerificationOK() {
		t.Error("a failed test must fail verification")
	}

	path := filepath.Join(t.TempDir(), "report.yaml")
	if err := r.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	for _, want := range []string{"tables:", "tests:", "status: failed", "outcome: fail"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("report is missing %q:\n%s", want, data)
		}
	}
}
