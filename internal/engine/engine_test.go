package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bypabloc/portfolio-db/internal/config"
	"github.com/bypabloc/portfolio-db/internal/db"
	"github.com/bypabloc/portfolio-db/internal/errs"
	"github.com/bypabloc/portfolio-db/internal/logger"
	"github.com/bypabloc/portfolio-db/internal/verify"
)

const usersFile = `
table "users" {
  column "id"    { type = "uuid" null = false }
  column "email" { type = "varchar(255)" null = false }
  primary_key { columns = ["id"] }
}

seed "users" {
  sql = <<-SQL
    INSERT INTO users (id, email) VALUES
    ('4b4e2f5d-0001-4f5e-8a3c-9d2e6b7c8d9e', 'pablo@example.dev'),
    ('4b4e2f5d-0002-4f5e-8a3c-9d2e6b7c8d9e', 'ada@example.dev');
  SQL
}

locals { row_count = 2 }

test "users" {
  assert "schema-exists" { }
}
`

const employersFile = `
table "employers" {
  column "id"      { type = "uuid" null = false }
  column "user_id" { type = "uuid" null = false }
  column "name"    { type = "varchar(120)" null = false }
  primary_key { columns = ["id"] }
  foreign_key "employers_user_id_fkey" {
    columns     = ["user_id"]
    ref_table   = "users"
    ref_columns = ["id"]
  }
}

seed "employers" {
  sql = <<-SQL
    INSERT INTO employers (id, user_id, name) VALUES
    ('7c1d2e3f-0001-4a5b-9c8d-1e2f3a4b5c6d', '%s', 'Acme');
  SQL
}

locals { row_count = 1 }

test "employers" {
  assert "referential-check" { column = "user_id" }
}
`

// newFixture lays out a declarations dir, a sqlite database with the
// matching tables, and a config pointing at both through the env var.
func newFixture(t *testing.T, employerUser string) *config.Config {
	t.Helper()
	root := t.TempDir()
	decls := filepath.Join(root, "declarations")
	if err := os.Mkdir(decls, 0755); err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		"001_users.hcl":     usersFile,
		"002_employers.hcl": fmt.Sprintf(employersFile, employerUser),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(decls, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	dbPath := filepath.Join(root, "portfolio.db")
	seedDDL(t, dbPath)
	t.Setenv("PORTFOLIO_E2E_DB_URL", dbPath)

	return &config.Config{
		DeclarationsDir: decls,
		Workers:         1,
		Database:        config.Database{Provider: "sqlite", URLEnv: "PORTFOLIO_E2E_DB_URL"},
	}
}

func seedDDL(t *testing.T, dbPath string) {
	t.Helper()
	conn, err := db.Open(context.Background(), "sqlite", dbPath, 1)
	if err != nil {
		t.Fatalf("failed to open fixture database: %v", err)
	}
	defer conn.Close()
	for _, stmt := range []string{
		`CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL)`,
		`CREATE TABLE employers (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, name TEXT NOT NULL)`,
	} {
		if _, err := conn.DB.Exec(stmt); err != nil {
			t.Fatalf("ddl failed: %v", err)
		}
	}
}

func TestRunSeedsAndVerifies(t *testing.T) {
	cfg := newFixture(t, "4b4e2f5d-0001-4f5e-8a3c-9d2e6b7c8d9e")
	eng := New(cfg, logger.Nop())

	report, err := eng.Run(context.Background(), Options{Seed: true, Verify: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !report.OK() {
		t.Fatalf("expected a green report, got %+v", report)
	}
	if len(report.Tables) != 2 {
		t.Errorf("expected 2 table results, got %+v", report.Tables)
	}
	// schema-exists + referential-check + 2 implied row-counts.
	if len(report.Tests) != 4 {
		t.Errorf("expected 4 test results, got %+v", report.Tests)
	}
	for _, tr := range report.Tests {
		if tr.Outcome != verify.OutcomePass {
			t.Errorf("%s on %s: %s (%s)", tr.Kind, tr.Table, tr.Outcome, tr.Detail)
		}
	}

	// Re-running must skip every row and still verify green.
	report, err = eng.Run(context.Background(), Options{Seed: true, Verify: true})
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !report.OK() {
		t.Fatalf("second run must be green, got %+v", report)
	}
	for _, tr := range report.Tables {
		if tr.Inserted != 0 {
			t.Errorf("second run must insert nothing, got %+v", tr)
		}
	}
}

func TestRunScopesDanglingReferenceFailure(t *testing.T) {
	cfg := newFixture(t, "ffffffff-0000-4000-8000-000000000000")
	eng := New(cfg, logger.Nop())

	report, err := eng.Run(context.Background(), Options{Seed: true, Verify: true})
	if err != nil {
		t.Fatalf("Run must not fail as a whole: %v", err)
	}

	byTable := make(map[string]verify.TableResult)
	for _, tr := range report.Tables {
		byTable[tr.Table] = tr
	}
	if byTable["users"].Status != "seeded" {
		t.Errorf("users must seed, got %+v", byTable["users"])
	}
	if byTable["employers"].Status != "failed" {
		t.Errorf("employers must fail, got %+v", byTable["employers"])
	}
	if report.SeedingOK() {
		t.Error("a failed table must fail the seeding summary")
	}

	// Tests against the failed table are errors, not failures.
	for _, tr := range report.Tests {
		if tr.Table == "employers" && tr.Outcome != verify.OutcomeError {
			t.Errorf("employers test should be error, got %+v", tr)
		}
		if tr.Table == "users" && tr.Outcome != verify.OutcomePass {
			t.Errorf("users test should still pass, got %+v", tr)
		}
	}
}

func TestRunVerifyOnly(t *testing.T) {
	cfg := newFixture(t, "4b4e2f5d-0001-4f5e-8a3c-9d2e6b7c8d9e")
	eng := New(cfg, logger.Nop())

	// Seed first, then verify in a separate run with seeding off.
	if _, err := eng.Run(context.Background(), Options{Seed: true}); err != nil {
		t.Fatalf("seed run failed: %v", err)
	}

	report, err := eng.Run(context.Background(), Options{Verify: true})
	if err != nil {
		t.Fatalf("verify run failed: %v", err)
	}
	if len(report.Tables) != 0 {
		t.Errorf("verify-only run must not report seed results, got %+v", report.Tables)
	}
	if len(report.Tests) == 0 || !report.VerificationOK() {
		t.Errorf("expected green verification, got %+v", report.Tests)
	}
}

func TestRunFailsFastOnBadDeclarations(t *testing.T) {
	root := t.TempDir()
	decls := filepath.Join(root, "declarations")
	if err := os.Mkdir(decls, 0755); err != nil {
		t.Fatal(err)
	}
	bad := `
table "a" {
  column "id"   { type = "uuid" null = false }
  column "b_id" { type = "uuid" null = false }
  foreign_key "fk" { columns = ["b_id"] ref_table = "b" ref_columns = ["id"] }
}
table "b" {
  column "id"   { type = "uuid" null = false }
  column "a_id" { type = "uuid" null = false }
  foreign_key "fk" { columns = ["a_id"] ref_table = "a" ref_columns = ["id"] }
}
`
	if err := os.WriteFile(filepath.Join(decls, "cycle.hcl"), []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		DeclarationsDir: decls,
		Workers:         1,
		Database:        config.Database{Provider: "sqlite", URLEnv: "PORTFOLIO_E2E_DB_URL"},
	}

	_, err := New(cfg, logger.Nop()).Run(context.Background(), Options{Seed: true})
	if !errs.IsCyclicDependency(err) {
		t.Errorf("expected CyclicDependency error before any connection, got %v", err)
	}
}
