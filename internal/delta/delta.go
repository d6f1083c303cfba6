// Package delta implements the incremental discovery front-end: on a
// single-entity mutation it restricts the SCC / cycle-enumeration /
// dedup / scoring pipeline to the subgraph reachable from the mutated
// entity's wallet(s) within max_depth undirected hops, instead of
// re-running discovery over the whole graph.
package delta

import (
	"context"
	"time"

	"github.com/rawblock/tradeloop-engine/internal/cycles"
	"github.com/rawblock/tradeloop-engine/internal/dedup"
	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
	"github.com/rawblock/tradeloop-engine/internal/scc"
	"github.com/rawblock/tradeloop-engine/internal/scorer"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// AffectedWallets returns every wallet reachable from seeds within maxDepth
// undirected hops, seeds included. Edge direction is ignored: a want
// relation can propagate a trade opportunity in either direction across a
// reassignment.
func AffectedWallets(g *graphbuild.Graph, seeds []models.WalletID, maxDepth int) []models.WalletID {
	undirected := buildUndirectedAdjacency(g)

	visited := make(map[int]int) // index -> depth first seen at
	var frontier []int
	for _, s := range seeds {
		if i, ok := g.IndexOf(s); ok {
			if _, seen := visited[i]; !seen {
				visited[i] = 0
				frontier = append(frontier, i)
			}
		}
	}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []int
		for _, u := range frontier {
			for _, v := range undirected[u] {
				if _, seen := visited[v]; !seen {
					visited[v] = depth + 1
					next = append(next, v)
				}
			}
		}
		frontier = next
	}

	out := make([]models.WalletID, 0, len(visited))
	for i := range visited {
		out = append(out, g.WalletAt(i))
	}
	return out
}

func buildUndirectedAdjacency(g *graphbuild.Graph) [][]int {
	adj := make([][]int, g.NumNodes())
	for i := 0; i < g.NumNodes(); i++ {
		for _, e := range g.OutEdges(i) {
			adj[i] = append(adj[i], e.To)
			adj[e.To] = append(adj[e.To], i)
		}
	}
	return adj
}

// Config bundles the tunables the subgraph re-run needs from the core
// configuration.
type Config struct {
	MaxDepth           int
	MaxBundleSize      int
	CyclesCap          int
	DenseDensityThresh float64
	DenseAvgOutDegree  float64
	Deadline           time.Time
	ScorerConfig       scorer.Config
}

// Result is what one delta recomputation produces: newly discovered
// canonical loops (already deduplicated against dedupState) plus the
// wallets the recomputation touched and run statistics for the caller's
// cumulative per-tenant counters.
type Result struct {
	NewLoops               []models.TradeLoop
	Affected               []models.WalletID
	CyclesFound            int
	PermutationsEliminated int
	TimedOut               bool
}

// Recompute runs SCC decomposition -> cycle enumeration -> canonical
// dedup -> scoring over the subgraph reachable from seeds, against
// dedupState which callers should scope per-tenant so insert/skip
// decisions are consistent with what is already stored.
func Recompute(ctx context.Context, snap *models.Snapshot, seeds []models.WalletID, dedupState *dedup.Deduplicator, cfg Config) Result {
	if ctx.Err() != nil {
		return Result{}
	}
	full := graphbuild.BuildFull(snap)
	affected := AffectedWallets(full, seeds, cfg.MaxDepth)
	sub := graphbuild.BuildInduced(full, affected)

	allIndices := make([]int, sub.NumNodes())
	for i := range allIndices {
		allIndices[i] = i
	}

	sccResult := scc.Find(sub, allIndices, scc.Config{DeadlineAt: cfg.Deadline, Prune: true})

	wanters := scorer.BuildWantersIndex(snap)

	var newLoops []models.TradeLoop
	cyclesFound, permsEliminated := 0, 0
	timedOut := sccResult.Metadata.TimedOut
	for _, component := range sccResult.SCCs {
		idxSet := make([]int, 0, len(component))
		for _, w := range component {
			if i, ok := sub.IndexOf(w); ok {
				idxSet = append(idxSet, i)
			}
		}
		if len(idxSet) < 2 {
			continue
		}

		cycleResult := cycles.Enumerate(sub, idxSet, cycles.Config{
			MaxDepth:           cfg.MaxDepth,
			CyclesCap:          cfg.CyclesCap,
			CyclesCapDense:     cfg.CyclesCap,
			DenseDensityThresh: cfg.DenseDensityThresh,
			DenseAvgOutDegree:  cfg.DenseAvgOutDegree,
			DeadlineAt:         cfg.Deadline,
		})
		cyclesFound += len(cycleResult.Cycles)
		permsEliminated += cycleResult.PermutationsEliminated
		if cycleResult.TimedOut {
			timedOut = true
		}

		for _, cycle := range cycleResult.Cycles {
			loop, ok := cycles.BuildLoop(sub, snap, cycle, cfg.MaxBundleSize)
			if !ok {
				continue
			}
			// Dedup by the loop's full id (participants+items), not the
			// wallet-only canonical key: two loops over the same wallets
			// with different chosen items are legitimately distinct trades
			// and must not collide.
			if !dedupState.Insert(loop.ID) {
				continue
			}
			quality, ok := scorer.Score(loop, snap, wanters, cfg.ScorerConfig)
			if !ok {
				continue
			}
			loop.Quality = quality
			newLoops = append(newLoops, *loop)
		}
	}

	return Result{
		NewLoops:               newLoops,
		Affected:               affected,
		CyclesFound:            cyclesFound,
		PermutationsEliminated: permsEliminated,
		TimedOut:               timedOut,
	}
}
