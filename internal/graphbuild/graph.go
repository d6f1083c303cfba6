// Package graphbuild materializes the wants-graph from wallet/item/want
// relations into a dense, integer-indexed adjacency structure.
//
// The graph is never a dynamic map-of-maps keyed by opaque wallet strings
// on the hot path: every wallet is assigned a small
// int id once at build time, and all SCC/DFS/partition work below walks flat
// int-indexed slices. The opaque-id side table lives only at the edges
// (input and output translation).
package graphbuild

import "github.com/rawblock/tradeloop-engine/pkg/models"

// Edge is one out-edge in the dense adjacency: owner -> wanter, carrying
// every item the owner holds that the wanter desires.
type Edge struct {
	To    int
	Items []models.ItemID
}

// Graph is the immutable, dense wants-graph for one discovery call.
type Graph struct {
	ids     map[models.WalletID]int
	wallets []models.WalletID
	out     [][]Edge
}

// NumNodes returns the number of wallets present in the graph (including
// isolated ones with no edges).
func (g *Graph) NumNodes() int { return len(g.wallets) }

// WalletAt returns the opaque id for dense index i.
func (g *Graph) WalletAt(i int) models.WalletID { return g.wallets[i] }

// IndexOf returns the dense index for a wallet id, or (-1, false) if the
// wallet never appeared in any edge or node list.
func (g *Graph) IndexOf(w models.WalletID) (int, bool) {
	i, ok := g.ids[w]
	if !ok {
		return -1, false
	}
	return i, true
}

// OutEdges returns the out-edges from dense index i.
func (g *Graph) OutEdges(i int) []Edge { return g.out[i] }

// NumEdges returns the total number of directed edges in the graph.
func (g *Graph) NumEdges() int {
	n := 0
	for _, es := range g.out {
		n += len(es)
	}
	return n
}

// EdgeItems returns the item set carried by the owner->wanter edge, or nil
// if no such edge exists.
func (g *Graph) EdgeItems(owner, wanter models.WalletID) []models.ItemID {
	oi, ok := g.IndexOf(owner)
	if !ok {
		return nil
	}
	wi, ok := g.IndexOf(wanter)
	if !ok {
		return nil
	}
	for _, e := range g.out[oi] {
		if e.To == wi {
			return e.Items
		}
	}
	return nil
}

// builder accumulates edges before freezing them into a Graph.
type builder struct {
	ids     map[models.WalletID]int
	wallets []models.WalletID
	out     [][]Edge
	index   []map[int]int // out[i] -> (dest index -> position in out[i])
}

func newBuilder() *builder {
	return &builder{ids: make(map[models.WalletID]int)}
}

func (b *builder) nodeIndex(w models.WalletID) int {
	if i, ok := b.ids[w]; ok {
		return i
	}
	i := len(b.wallets)
	b.ids[w] = i
	b.wallets = append(b.wallets, w)
	b.out = append(b.out, nil)
	b.index = append(b.index, make(map[int]int))
	return i
}

func (b *builder) addItem(owner, wanter models.WalletID, item models.ItemID) {
	oi := b.nodeIndex(owner)
	wi := b.nodeIndex(wanter)
	if oi == wi {
		// No self-loops (invariant 3).
		return
	}
	if pos, ok := b.index[oi][wi]; ok {
		b.out[oi][pos].Items = append(b.out[oi][pos].Items, item)
		return
	}
	b.index[oi][wi] = len(b.out[oi])
	b.out[oi] = append(b.out[oi], Edge{To: wi, Items: []models.ItemID{item}})
}

func (b *builder) freeze() *Graph {
	return &Graph{ids: b.ids, wallets: b.wallets, out: b.out}
}

// ensureWallet registers w in the graph even if it has no edges, so it is
// visible to consumers that enumerate all nodes (e.g. isolated-wallet
// handling in the delta front-end).
func (b *builder) ensureWallet(w models.WalletID) { b.nodeIndex(w) }
