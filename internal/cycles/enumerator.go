// Package cycles implements the bounded-DFS elementary-cycle enumerator:
// one canonical-start, deadline- and cap-guarded depth-first search per
// strongly connected component.
//
// Explicit guard checks run before every recursive step, with a hard cap on
// total work and a clean early return that leaves partial output
// well-formed rather than an exception-based abort.
package cycles

import (
	"log"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rawblock/tradeloop-engine/internal/canon"
	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Config tunes one enumerator invocation over a single SCC.
type Config struct {
	MaxDepth           int
	CyclesCap          int
	CyclesCapDense     int
	DenseDensityThresh float64
	DenseAvgOutDegree  float64
	DeadlineAt         time.Time
}

// Result is the enumerator's output for one SCC.
type Result struct {
	Cycles                 [][]models.WalletID
	PermutationsEliminated int
	TimedOut               bool
}

// Enumerate finds the elementary cycles within sccNodes (dense indices,
// all belonging to one SCC of g) that pass through the SCC's
// lexicographically smallest wallet, up to cfg.MaxDepth participants,
// honoring cfg.CyclesCap (or the reduced dense-SCC cap) and cfg.DeadlineAt.
// Cycles of the SCC that do not pass through that wallet are not
// enumerated.
//
// Algorithm:
//  1. s = lexicographically smallest wallet in the SCC — the unique start
//     point, which alone eliminates every rotational duplicate a
//     multi-start DFS would otherwise emit.
//  2. DFS from s over the induced subgraph, maintaining a path stack and a
//     visited set.
//  3. Returning to s with path length >= 2 yields a cycle; its canonical
//     key is checked against this SCC's dedup set before emission.
//  4. Guards — deadline, cycles-cap, max_depth — are checked before every
//     recursive step and fire a clean early return.
func Enumerate(g *graphbuild.Graph, sccNodes []int, cfg Config) Result {
	if len(sccNodes) < 2 {
		return Result{}
	}

	inSCC := make(map[int]bool, len(sccNodes))
	for _, n := range sccNodes {
		inSCC[n] = true
	}

	cap := cfg.CyclesCap
	if isDense(g, sccNodes, cfg) {
		cap = cfg.CyclesCapDense
		log.Printf("[Cycles] dense SCC (%d nodes) detected, cycles_cap reduced to %d", len(sccNodes), cap)
	}

	start := smallestWallet(g, sccNodes)

	e := &enumerator{
		g:       g,
		inSCC:   inSCC,
		maxDep:  cfg.MaxDepth,
		cap:     cap,
		deadAt:  cfg.DeadlineAt,
		start:   start,
		visited: make(map[int]bool, len(sccNodes)),
		seen:    make(map[chainhash.Hash]bool),
	}
	e.path = append(e.path, start)
	e.visited[start] = true
	e.dfs(start)

	return Result{
		Cycles:                 e.cycles,
		PermutationsEliminated: e.permsEliminated,
		TimedOut:               e.timedOut,
	}
}

func isDense(g *graphbuild.Graph, nodes []int, cfg Config) bool {
	n := len(nodes)
	if n < 2 {
		return false
	}
	edges := 0
	for _, i := range nodes {
		edges += len(g.OutEdges(i))
	}
	density := float64(edges) / float64(n*(n-1))
	avgOut := float64(edges) / float64(n)
	return density > cfg.DenseDensityThresh || avgOut > cfg.DenseAvgOutDegree
}

func smallestWallet(g *graphbuild.Graph, nodes []int) int {
	best := nodes[0]
	for _, n := range nodes[1:] {
		if g.WalletAt(n) < g.WalletAt(best) {
			best = n
		}
	}
	return best
}

type enumerator struct {
	g      *graphbuild.Graph
	inSCC  map[int]bool
	maxDep int
	cap    int
	deadAt time.Time
	start  int

	path    []int
	visited map[int]bool
	seen    map[chainhash.Hash]bool

	cycles          [][]models.WalletID
	permsEliminated int
	timedOut        bool
	aborted         bool
}

func (e *enumerator) guardsFail() bool {
	if e.aborted {
		return true
	}
	if !e.deadAt.IsZero() && time.Now().After(e.deadAt) {
		e.timedOut = true
		e.aborted = true
		log.Printf("[Cycles] deadline exceeded after emitting %d cycles", len(e.cycles))
		return true
	}
	if e.cap > 0 && len(e.cycles) >= e.cap {
		e.aborted = true
		log.Printf("[Cycles] cycles_cap (%d) reached", e.cap)
		return true
	}
	return false
}

func (e *enumerator) dfs(v int) {
	if e.guardsFail() {
		return
	}

	neighbors := append([]graphbuild.Edge(nil), e.g.OutEdges(v)...)
	sort.Slice(neighbors, func(i, j int) bool {
		return e.g.WalletAt(neighbors[i].To) < e.g.WalletAt(neighbors[j].To)
	})

	for _, edge := range neighbors {
		if e.guardsFail() {
			return
		}
		w := edge.To
		if !e.inSCC[w] {
			continue
		}

		if w == e.start && len(e.path) >= 2 {
			e.emit(append([]int(nil), e.path...))
			continue
		}
		if e.visited[w] || len(e.path) >= e.maxDep {
			continue
		}

		e.path = append(e.path, w)
		e.visited[w] = true
		e.dfs(w)
		e.visited[w] = false
		e.path = e.path[:len(e.path)-1]
	}
}

func (e *enumerator) emit(pathIdx []int) {
	walletPath := make([]models.WalletID, len(pathIdx))
	for i, idx := range pathIdx {
		walletPath[i] = e.g.WalletAt(idx)
	}
	key := canon.Of(walletPath)
	if e.seen[key.Hash] {
		e.permsEliminated++
		return
	}
	e.seen[key.Hash] = true
	e.cycles = append(e.cycles, walletPath)
}
