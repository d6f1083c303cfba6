package scc

import (
	"testing"
	"time"

	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func snapOfCycle(ids ...models.WalletID) *models.Snapshot {
	snap := models.NewSnapshot()
	for _, id := range ids {
		snap.Wallets[id] = models.NewWallet(id)
	}
	n := len(ids)
	for i, id := range ids {
		item := models.ItemID(string(id) + "-item")
		snap.Wallets[id].Owned[item] = struct{}{}
		snap.Items[item] = &models.Item{ID: item, Owner: id}
		next := ids[(i+1)%n]
		snap.Wallets[next].WantedItems[item] = struct{}{}
	}
	return snap
}

func TestFind_ThreeCycle(t *testing.T) {
	g := graphbuild.BuildFull(snapOfCycle("A", "B", "C"))
	res := Find(g, nil, Config{Prune: true})

	if res.Metadata.TimedOut {
		t.Fatalf("did not expect timeout")
	}
	if len(res.SCCs) != 1 || len(res.SCCs[0]) != 3 {
		t.Fatalf("expected a single 3-node SCC, got %v", res.SCCs)
	}
}

func TestFind_IsolatedNodesPruned(t *testing.T) {
	snap := snapOfCycle("A", "B", "C")
	snap.Wallets["D"] = models.NewWallet("D") // no edges at all
	g := graphbuild.BuildFull(snap)

	res := Find(g, nil, Config{Prune: true})
	if len(res.SCCs) != 1 {
		t.Fatalf("expected isolated node to be pruned, got %d SCCs", len(res.SCCs))
	}
}

func TestFind_TwoDisjointCycles(t *testing.T) {
	snap := snapOfCycle("A", "B", "C")
	other := snapOfCycle("X", "Y")
	for id, w := range other.Wallets {
		snap.Wallets[id] = w
	}
	for id, it := range other.Items {
		snap.Items[id] = it
	}
	g := graphbuild.BuildFull(snap)

	res := Find(g, nil, Config{Prune: true})
	if len(res.SCCs) != 2 {
		t.Fatalf("expected 2 SCCs, got %d", len(res.SCCs))
	}
}

func TestFind_DeadlineYieldsPartialTimedOut(t *testing.T) {
	snap := snapOfCycle("A", "B", "C")
	g := graphbuild.BuildFull(snap)

	res := Find(g, nil, Config{Prune: true, BatchSize: 1, DeadlineAt: time.Now().Add(-time.Second)})
	if !res.Metadata.TimedOut {
		t.Fatalf("expected timed_out=true for an already-past deadline")
	}
}

func TestFind_SingletonWithoutSelfLoopDropped(t *testing.T) {
	snap := models.NewSnapshot()
	snap.Wallets["A"] = models.NewWallet("A")
	snap.Wallets["B"] = models.NewWallet("B")
	snap.Wallets["A"].Owned["x"] = struct{}{}
	snap.Wallets["B"].WantedItems["x"] = struct{}{}
	snap.Items["x"] = &models.Item{ID: "x", Owner: "A"}
	g := graphbuild.BuildFull(snap)

	res := Find(g, nil, Config{Prune: true})
	if len(res.SCCs) != 0 {
		t.Fatalf("a 2-node DAG with no back-edge should yield no cyclic SCCs, got %v", res.SCCs)
	}
}
