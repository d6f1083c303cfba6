package graphbuild

import "github.com/rawblock/tradeloop-engine/pkg/models"

// BuildFull materializes the full wants-graph from a snapshot.
//
// The per-wallet want sets are first inverted into an item -> wanters
// index, so edge construction is linear in the number of want relations
// rather than |items| x |wallets|: for every item i with owner o, for each
// wallet w in i's wanter set (w != o), if neither w's item-rejection nor
// wallet-rejection excludes the pairing, record that o can give i to w. No
// errors are ever raised; an item whose owner is unknown to the snapshot
// (data drift) simply contributes no edges.
//
// The edge direction convention is fixed: owner -> wanter, i.e. the edge
// follows the direction an item flows in a realized trade. Every
// downstream component assumes this; there is exactly one
// edge-construction path, so there is no second convention to drift.
func BuildFull(snap *models.Snapshot) *Graph {
	b := newBuilder()
	for _, w := range snap.Wallets {
		b.ensureWallet(w.ID)
	}

	wantersByItem := wantersIndex(snap)

	for itemID, item := range snap.Items {
		if item.Owner == "" {
			continue
		}
		if _, ok := snap.Wallets[item.Owner]; !ok {
			// Owner not present in this snapshot: no edges from an item
			// whose owning wallet we cannot validate rejections against.
			continue
		}
		for _, wid := range wantersByItem[itemID] {
			if wid == item.Owner {
				continue
			}
			w := snap.Wallets[wid]
			if w.Rejections.RejectsItem(itemID) || w.Rejections.RejectsWallet(item.Owner) {
				continue
			}
			b.addItem(item.Owner, wid, itemID)
		}
	}

	return b.freeze()
}

// wantersIndex inverts the per-wallet want sets into item -> wanter
// wallets, expanding collection wants through the snapshot's
// item-to-collection mapping. Each wanter appears at most once per item
// even when it wants the item both directly and via its collection.
func wantersIndex(snap *models.Snapshot) map[models.ItemID][]models.WalletID {
	itemsByCollection := make(map[models.CollectionID][]models.ItemID)
	for id, item := range snap.Items {
		if item.Collection != "" {
			itemsByCollection[item.Collection] = append(itemsByCollection[item.Collection], id)
		}
	}

	idx := make(map[models.ItemID][]models.WalletID)
	seen := make(map[models.ItemID]map[models.WalletID]struct{})
	add := func(item models.ItemID, w models.WalletID) {
		s, ok := seen[item]
		if !ok {
			s = make(map[models.WalletID]struct{})
			seen[item] = s
		}
		if _, dup := s[w]; dup {
			return
		}
		s[w] = struct{}{}
		idx[item] = append(idx[item], w)
	}

	for _, w := range snap.Wallets {
		for item := range w.WantedItems {
			add(item, w.ID)
		}
		for coll := range w.WantedCollections {
			for _, item := range itemsByCollection[coll] {
				add(item, w.ID)
			}
		}
	}
	return idx
}

// BuildInduced restricts an existing graph to the given wallet subset,
// keeping only edges whose endpoints both lie in the subset. Used by the
// community partitioner to hand each partition an induced subgraph, and by
// the delta front-end to restrict work to an affected subgraph.
func BuildInduced(g *Graph, subset []models.WalletID) *Graph {
	b := newBuilder()
	keep := make(map[int]bool, len(subset))
	for _, w := range subset {
		if i, ok := g.IndexOf(w); ok {
			keep[i] = true
			b.ensureWallet(w)
		}
	}
	for i := range g.wallets {
		if !keep[i] {
			continue
		}
		from := g.wallets[i]
		for _, e := range g.out[i] {
			if !keep[e.To] {
				continue
			}
			to := g.wallets[e.To]
			for _, item := range e.Items {
				b.addItem(from, to, item)
			}
		}
	}
	return b.freeze()
}
