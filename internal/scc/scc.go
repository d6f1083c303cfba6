// Package scc finds strongly connected components of a wants-graph using an
// iterative Tarjan's algorithm, with non-cyclic node pruning and a
// deadline-checked batch loop so arbitrarily large graphs degrade to
// partial results instead of hanging.
//
// State is dense and int-indexed with one allocation per pass, and
// iteration replaces recursion so component depth never blows the
// goroutine stack.
package scc

import (
	"log"
	"time"

	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Config tunes one SCC-finder invocation.
type Config struct {
	DeadlineAt time.Time
	BatchSize  int
	Prune      bool
}

// Find decomposes the graph into SCCs, restricted to nodes (or all nodes if
// nodes is nil). Never raises: exhausting the deadline yields partial
// results with Metadata.TimedOut = true.
func Find(g *graphbuild.Graph, nodes []int, cfg Config) models.SCCResult {
	start := time.Now()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if nodes == nil {
		nodes = allNodes(g)
	}

	working := nodes
	if cfg.Prune {
		working = prune(g, nodes)
	}

	allowed := make(map[int]bool, len(working))
	for _, n := range working {
		allowed[n] = true
	}
	finder := &tarjan{
		g:       g,
		allowed: allowed,
		index:   make(map[int]int),
		lowlink: make(map[int]int),
		onStack: make(map[int]bool),
	}

	timedOut := false
	processed := 0
batches:
	for start := 0; start < len(working); start += cfg.BatchSize {
		if !cfg.DeadlineAt.IsZero() && time.Now().After(cfg.DeadlineAt) {
			timedOut = true
			log.Printf("[SCC] deadline exceeded after processing %d/%d seed nodes", processed, len(working))
			break batches
		}
		end := start + cfg.BatchSize
		if end > len(working) {
			end = len(working)
		}
		for _, n := range working[start:end] {
			if !finder.visited(n) {
				finder.strongConnect(n)
			}
			processed++
		}
	}

	sccs := postFilter(g, finder.components)

	return models.SCCResult{
		SCCs: toWalletIDs(g, sccs),
		Metadata: models.SCCMetadata{
			Processed: processed,
			TimedOut:  timedOut,
			ElapsedMs: time.Since(start).Milliseconds(),
		},
	}
}

func allNodes(g *graphbuild.Graph) []int {
	out := make([]int, g.NumNodes())
	for i := range out {
		out[i] = i
	}
	return out
}

// prune performs two linear passes: keep only nodes that have
// both at least one out-edge and at least one in-edge (within the restricted
// node set), iterating to a fixed point. In practice this converges in one
// pass given the induced-subgraph inputs this package receives.
func prune(g *graphbuild.Graph, nodes []int) []int {
	inSet := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		inSet[n] = true
	}

	for {
		hasOut := make(map[int]bool)
		hasIn := make(map[int]bool)
		for _, n := range nodes {
			if !inSet[n] {
				continue
			}
			for _, e := range g.OutEdges(n) {
				if inSet[e.To] {
					hasOut[n] = true
					hasIn[e.To] = true
				}
			}
		}
		changed := false
		var next []int
		for _, n := range nodes {
			if !inSet[n] {
				continue
			}
			if hasOut[n] && hasIn[n] {
				next = append(next, n)
			} else {
				changed = true
			}
		}
		nodes = next
		if !changed {
			return nodes
		}
		inSet = make(map[int]bool, len(nodes))
		for _, n := range nodes {
			inSet[n] = true
		}
	}
}

// postFilter discards components that cannot contain a cycle: singletons
// without a self-loop.
func postFilter(g *graphbuild.Graph, components [][]int) [][]int {
	var out [][]int
	for _, comp := range components {
		if len(comp) >= 2 {
			out = append(out, comp)
			continue
		}
		if len(comp) == 1 && hasSelfLoop(g, comp[0]) {
			out = append(out, comp)
		}
	}
	return out
}

func hasSelfLoop(g *graphbuild.Graph, n int) bool {
	for _, e := range g.OutEdges(n) {
		if e.To == n {
			return true
		}
	}
	return false
}

func toWalletIDs(g *graphbuild.Graph, comps [][]int) [][]models.WalletID {
	out := make([][]models.WalletID, len(comps))
	for i, comp := range comps {
		ids := make([]models.WalletID, len(comp))
		for j, n := range comp {
			ids[j] = g.WalletAt(n)
		}
		out[i] = ids
	}
	return out
}

// tarjan is an iterative (stack-based) Tarjan's SCC implementation. Standard
// recursive Tarjan is avoided on purpose: wants-graphs up to ~1e5 wallets
// can produce DFS chains deeper than a goroutine's default stack comfortably
// absorbs, and a recursive implementation has no deadline checkpoint between
// individual node visits.
type tarjan struct {
	g       *graphbuild.Graph
	allowed map[int]bool // node set the traversal is restricted to
	index   map[int]int
	lowlink map[int]int
	onStack map[int]bool
	stack   []int
	counter int

	components [][]int
}

func (t *tarjan) visited(n int) bool {
	_, ok := t.index[n]
	return ok
}

type frame struct {
	node    int
	edgeIdx int
}

func (t *tarjan) strongConnect(root int) {
	work := []frame{{node: root, edgeIdx: 0}}
	t.counter++
	t.index[root] = t.counter
	t.lowlink[root] = t.counter
	t.stack = append(t.stack, root)
	t.onStack[root] = true

	for len(work) > 0 {
		top := &work[len(work)-1]
		v := top.node
		edges := t.g.OutEdges(v)

		if top.edgeIdx < len(edges) {
			w := edges[top.edgeIdx].To
			top.edgeIdx++
			if !t.allowed[w] {
				continue
			}

			if !t.visited(w) {
				t.counter++
				t.index[w] = t.counter
				t.lowlink[w] = t.counter
				t.stack = append(t.stack, w)
				t.onStack[w] = true
				work = append(work, frame{node: w, edgeIdx: 0})
				continue
			} else if t.onStack[w] {
				if t.index[w] < t.lowlink[v] {
					t.lowlink[v] = t.index[w]
				}
			}
			continue
		}

		// All of v's edges are processed; pop and propagate lowlink.
		work = work[:len(work)-1]
		if len(work) > 0 {
			parent := &work[len(work)-1]
			if t.lowlink[v] < t.lowlink[parent.node] {
				t.lowlink[parent.node] = t.lowlink[v]
			}
		}

		if t.lowlink[v] == t.index[v] {
			var comp []int
			for {
				n := len(t.stack) - 1
				w := t.stack[n]
				t.stack = t.stack[:n]
				t.onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			t.components = append(t.components, comp)
		}
	}
}
