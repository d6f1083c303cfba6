// Package partition implements the community partitioner: a
// Louvain-style modularity optimization over the undirected projection of
// the wants-graph, used to bound the effective graph size handed to the
// SCC finder and cycle enumerator when the full graph is large.
package partition

import (
	"log"
	"sort"

	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Config tunes partitioning.
type Config struct {
	MaxCommunitySize int
	SkipBelow        int // skip partitioning entirely when wallets <= this
}

// Partition splits g into communities. Graphs at or below
// cfg.SkipBelow wallets are returned as a single community — partitioning a
// handful of wallets only adds overhead.
func Partition(g *graphbuild.Graph, cfg Config) []models.Community {
	if cfg.SkipBelow <= 0 {
		cfg.SkipBelow = 10
	}
	if cfg.MaxCommunitySize <= 0 {
		cfg.MaxCommunitySize = 75
	}

	n := g.NumNodes()
	if n <= cfg.SkipBelow {
		return []models.Community{{ID: 0, Wallets: allWallets(g)}}
	}

	weights := undirectedWeights(g)
	assignment := localMoving(n, weights)

	byCommunity := make(map[int][]int)
	for node := 0; node < n; node++ {
		comm := assignment[node]
		byCommunity[comm] = append(byCommunity[comm], node)
	}

	var out []models.Community
	id := 0
	for _, nodes := range byCommunity {
		wallets := toWalletIDs(g, nodes)
		if len(wallets) > cfg.MaxCommunitySize {
			log.Printf("[Partition] community of %d exceeds max_community_size %d, re-partitioning recursively", len(wallets), cfg.MaxCommunitySize)
			sub := graphbuild.BuildInduced(g, wallets)
			for _, c := range partitionBounded(sub, cfg, 0) {
				out = append(out, models.Community{ID: id, Wallets: c.Wallets})
				id++
			}
			continue
		}
		out = append(out, models.Community{ID: id, Wallets: wallets})
		id++
	}
	return out
}

// partitionBounded is Partition's recursive entry point, with a depth cap
// so a pathological, maximally-dense subgraph cannot recurse forever: past
// depth 5 the remaining oversized community is chunked deterministically by
// wallet id instead of being split on modularity.
func partitionBounded(g *graphbuild.Graph, cfg Config, depth int) []models.Community {
	n := g.NumNodes()
	if n <= cfg.MaxCommunitySize || depth >= 5 {
		return chunk(allWallets(g), cfg.MaxCommunitySize)
	}

	weights := undirectedWeights(g)
	assignment := localMoving(n, weights)

	byCommunity := make(map[int][]int)
	for node := 0; node < n; node++ {
		comm := assignment[node]
		byCommunity[comm] = append(byCommunity[comm], node)
	}
	if len(byCommunity) <= 1 {
		// Local moving made no progress: fall back to deterministic chunking.
		return chunk(allWallets(g), cfg.MaxCommunitySize)
	}

	var out []models.Community
	for _, nodes := range byCommunity {
		wallets := toWalletIDs(g, nodes)
		if len(wallets) > cfg.MaxCommunitySize {
			sub := graphbuild.BuildInduced(g, wallets)
			out = append(out, partitionBounded(sub, cfg, depth+1)...)
			continue
		}
		out = append(out, models.Community{Wallets: wallets})
	}
	return out
}

func chunk(wallets []models.WalletID, size int) []models.Community {
	sort.Slice(wallets, func(i, j int) bool { return wallets[i] < wallets[j] })
	var out []models.Community
	for i := 0; i < len(wallets); i += size {
		end := i + size
		if end > len(wallets) {
			end = len(wallets)
		}
		out = append(out, models.Community{Wallets: append([]models.WalletID(nil), wallets[i:end]...)})
	}
	return out
}

func allWallets(g *graphbuild.Graph) []models.WalletID {
	out := make([]models.WalletID, g.NumNodes())
	for i := range out {
		out[i] = g.WalletAt(i)
	}
	return out
}

func toWalletIDs(g *graphbuild.Graph, nodes []int) []models.WalletID {
	out := make([]models.WalletID, len(nodes))
	for i, n := range nodes {
		out[i] = g.WalletAt(n)
	}
	return out
}

// undirectedWeights projects the directed wants-graph onto an undirected
// weighted adjacency: weight(u,v) = (edges u->v) + (edges v->u), each
// counted once as a direction with >=1 item.
func undirectedWeights(g *graphbuild.Graph) map[[2]int]float64 {
	w := make(map[[2]int]float64)
	for u := 0; u < g.NumNodes(); u++ {
		for _, e := range g.OutEdges(u) {
			key := pairKey(u, e.To)
			w[key]++
		}
	}
	return w
}

func pairKey(a, b int) [2]int {
	if a < b {
		return [2]int{a, b}
	}
	return [2]int{b, a}
}

// localMoving runs the Louvain local-moving phase until a pass moves no node
// or 20 passes have run: every
// node starts in its own community, and on each pass is moved to whichever
// neighboring community (including its own) maximizes the simplified
// modularity-gain criterion
//
//	gain(C) = k_i_in_C - (degree_sum(C) * k_i) / (2*m)
//
// Multi-level aggregation (collapsing communities into super-nodes and
// repeating) is intentionally not implemented; recursive re-partitioning
// of oversized communities stands in for it.
func localMoving(n int, weights map[[2]int]float64) map[int]int {
	degree := make([]float64, n)
	totalWeight := 0.0
	adj := make([]map[int]float64, n)
	for i := range adj {
		adj[i] = make(map[int]float64)
	}
	for pair, w := range weights {
		a, b := pair[0], pair[1]
		adj[a][b] += w
		adj[b][a] += w
		degree[a] += w
		degree[b] += w
		totalWeight += w
	}
	if totalWeight == 0 {
		totalWeight = 1
	}

	community := make([]int, n)
	for i := range community {
		community[i] = i
	}
	commDegree := append([]float64(nil), degree...)

	improved := true
	for pass := 0; improved && pass < 20; pass++ {
		improved = false
		for i := 0; i < n; i++ {
			current := community[i]

			neighborWeight := make(map[int]float64)
			for j, w := range adj[i] {
				neighborWeight[community[j]] += w
			}

			commDegree[current] -= degree[i]

			best := current
			bestGain := neighborWeight[current] - commDegree[current]*degree[i]/(2*totalWeight)
			candidates := make([]int, 0, len(neighborWeight))
			for c := range neighborWeight {
				candidates = append(candidates, c)
			}
			sort.Ints(candidates)
			for _, c := range candidates {
				if c == current {
					continue
				}
				gain := neighborWeight[c] - commDegree[c]*degree[i]/(2*totalWeight)
				if gain > bestGain {
					bestGain = gain
					best = c
				}
			}

			commDegree[best] += degree[i]
			if best != current {
				community[i] = best
				improved = true
			}
		}
	}

	// Renumber communities densely from 0.
	renum := make(map[int]int)
	out := make(map[int]int, n)
	next := 0
	for i, c := range community {
		id, ok := renum[c]
		if !ok {
			id = next
			renum[c] = id
			next++
		}
		out[i] = id
	}
	return out
}
