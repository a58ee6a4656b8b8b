package seeder

import (
	"context"
	"sync"

	"github.com/bypabloc/portfolio-db/internal/graph"
	"github.com/bypabloc/portfolio-db/internal/schema"
)

// runLevel seeds the tables of one dependency level with a bounded worker
// pool. Tables within a level have no edges between them, so their
// relative order does not matter; the pool size caps concurrent
// transactions at the configured connection limit.
func (e *Executor) runLevel(ctx context.Context, level []string, set *schema.Set, g *graph.Graph, results map[string]*Result) {
	// A table's dependencies all live in earlier, fully finished levels.
	// Workers read their outcomes from this pre-spawn snapshot, never from
	// the live map the level is concurrently writing into.
	done := make(map[string]*Result, len(results))
	for name, res := range results {
		done[name] = res
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, name := range level {
		wg.Add(1)
		sem <- struct{}{}
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()

			res := e.seedOne(ctx, set, g, done, name)

			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name)
	}

	wg.Wait()
}
