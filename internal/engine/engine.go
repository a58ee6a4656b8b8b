// Package engine drives one run through its phases: Loading,
// GraphBuilding, Seeding, Verifying, Reported.
package engine

import (
	"context"
	"time"

	"github.com/bypabloc/portfolio-db/internal/config"
	"github.com/bypabloc/portfolio-db/internal/db"
	"github.com/bypabloc/portfolio-db/internal/graph"
	"github.com/bypabloc/portfolio-db/internal/logger"
	"github.com/bypabloc/portfolio-db/internal/schema"
	"github.com/bypabloc/portfolio-db/internal/seeder"
	"github.com/bypabloc/portfolio-db/internal/verify"
)

// Phase names the engine's run states.
type Phase string

const (
	PhaseLoading       Phase = "loading"
	PhaseGraphBuilding Phase = "graph-building"
	PhaseSeeding       Phase = "seeding"
	PhaseVerifying     Phase = "verifying"
	PhaseReported      Phase = "reported"
)

// Options selects which phases a command runs. Loading and graph building
// always happen; plan stops there, apply adds Seeding, verify adds
// Verifying, run adds both.
type Options struct {
	Seed   bool
	Verify bool
}

type Engine struct {
	cfg *config.Config
	log *logger.Logger
}

func New(cfg *config.Config, log *logger.Logger) *Engine {
	return &Engine{cfg: cfg, log: log}
}

// Plan loads the declarations and derives the application order without
// touching the datastore.
func (e *Engine) Plan() (*schema.Set, *graph.Graph, error) {
	e.log.Debug().Str("phase", string(PhaseLoading)).Str("dir", e.cfg.DeclarationsDir).Msg("loading declarations")
	set, err := schema.LoadDir(e.cfg.DeclarationsDir)
	if err != nil {
		return nil, nil, err
	}

	e.log.Debug().Str("phase", string(PhaseGraphBuilding)).Int("tables", len(set.Tables)).Msg("building dependency graph")
	g, err := graph.Build(set)
	if err != nil {
		return nil, nil, err
	}

	return set, g, nil
}

// Run executes the state machine. A fatal error in Loading or
// GraphBuilding (or connecting) aborts before any write; seed failures are
// scoped to their table and recorded in the report, never returned as an
// error. The returned report is non-nil whenever err is nil.
func (e *Engine) Run(ctx context.Context, opts Options) (*verify.Report, error) {
	report := &verify.Report{StartedAt: time.Now().UTC()}

	set, g, err := e.Plan()
	if err != nil {
		return nil, err
	}

	dbURL, err := e.cfg.GetDatabaseURL()
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(ctx, e.cfg.Database.Provider, dbURL, e.cfg.Workers)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var seeded map[string]*seeder.Result
	if opts.Seed {
		e.log.Info().Str("phase", string(PhaseSeeding)).Int("workers", e.cfg.Workers).Msg("applying seed plans")
		exec := seeder.New(conn, e.log, e.cfg.Workers)
		seeded = exec.Apply(ctx, set, g)

		for _, name := range g.Order() {
			res := seeded[name]
			tr := verify.TableResult{
				Table:    name,
				Status:   string(res.Status),
				Inserted: res.Inserted,
				Skipped:  res.Skipped,
			}
			if res.Err != nil {
				tr.Error = res.Err.Error()
			}
			report.Tables = append(report.Tables, tr)
		}
	}

	// Verification never starts on a cancelled run; in-flight seed
	// transactions have already finished or rolled back by this point.
	if opts.Verify && ctx.Err() == nil {
		e.log.Info().Str("phase", string(PhaseVerifying)).Int("tests", len(set.Tests)).Msg("running verification tests")
		runner := verify.NewRunner(conn, e.log)
		report.Tests = runner.Run(ctx, set, seeded)
	}

	report.FinishedAt = time.Now().UTC()
	e.log.Debug().Str("phase", string(PhaseReported)).Msg("run finished")
	return report, nil
}
