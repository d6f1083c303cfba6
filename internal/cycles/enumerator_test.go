package cycles

import (
	"testing"

	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func ring(ids ...models.WalletID) *models.Snapshot {
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

func allIndices(g *graphbuild.Graph) []int {
	idx := make([]int, g.NumNodes())
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func defaultConfig() Config {
	return Config{MaxDepth: 10, CyclesCap: 10000, CyclesCapDense: 500, DenseDensityThresh: 0.2, DenseAvgOutDegree: 5}
}

func TestEnumerate_ThreeCycleSingleResult(t *testing.T) {
	g := graphbuild.BuildFull(ring("A", "B", "C"))
	res := Enumerate(g, allIndices(g), defaultConfig())

	if len(res.Cycles) != 1 {
		t.Fatalf("expected exactly 1 cycle, got %d: %v", len(res.Cycles), res.Cycles)
	}
	if len(res.Cycles[0]) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(res.Cycles[0]))
	}
}

func TestEnumerate_MaxDepthExcludesLongerCycle(t *testing.T) {
	g := graphbuild.BuildFull(ring("A", "B", "C", "D", "E", "F"))
	cfg := defaultConfig()
	cfg.MaxDepth = 2

	res := Enumerate(g, allIndices(g), cfg)
	if len(res.Cycles) != 0 {
		t.Fatalf("expected the 6-cycle to be excluded at max_depth=2, got %v", res.Cycles)
	}
}

func TestEnumerate_TwoPartyDirect(t *testing.T) {
	g := graphbuild.BuildFull(ring("A", "B"))
	res := Enumerate(g, allIndices(g), defaultConfig())

	if len(res.Cycles) != 1 || len(res.Cycles[0]) != 2 {
		t.Fatalf("expected one 2-party cycle, got %v", res.Cycles)
	}
}

func TestBuildLoop_TwoPartyTrade(t *testing.T) {
	snap := ring("A", "B")
	g := graphbuild.BuildFull(snap)
	res := Enumerate(g, allIndices(g), defaultConfig())

	loop, ok := BuildLoop(g, snap, res.Cycles[0], 1)
	if !ok {
		t.Fatalf("expected loop construction to succeed")
	}
	if loop.Participants != 2 {
		t.Errorf("expected 2 participants, got %d", loop.Participants)
	}
	if loop.Steps[len(loop.Steps)-1].To != loop.Steps[0].From {
		t.Errorf("expected the loop to close: last.To == first.From")
	}
}

func TestBuildLoop_OwnershipDriftRejectsLoop(t *testing.T) {
	snap := ring("A", "B")
	g := graphbuild.BuildFull(snap)
	res := Enumerate(g, allIndices(g), defaultConfig())

	// Simulate drift: the item A was going to give away changed owner.
	for id, item := range snap.Items {
		if item.Owner == "A" {
			snap.Items[id].Owner = "C"
		}
	}

	_, ok := BuildLoop(g, snap, res.Cycles[0], 1)
	if ok {
		t.Fatalf("expected ownership drift to reject the loop")
	}
}

func TestBuildLoop_BundleSelectsMultipleItems(t *testing.T) {
	snap := models.NewSnapshot()
	snap.Wallets["A"] = models.NewWallet("A")
	snap.Wallets["B"] = models.NewWallet("B")
	snap.Wallets["A"].Owned["x1"] = struct{}{}
	snap.Wallets["A"].Owned["x2"] = struct{}{}
	snap.Wallets["B"].Owned["y"] = struct{}{}
	snap.Wallets["B"].WantedItems["x1"] = struct{}{}
	snap.Wallets["B"].WantedItems["x2"] = struct{}{}
	snap.Wallets["A"].WantedItems["y"] = struct{}{}
	snap.Items["x1"] = &models.Item{ID: "x1", Owner: "A"}
	snap.Items["x2"] = &models.Item{ID: "x2", Owner: "A"}
	snap.Items["y"] = &models.Item{ID: "y", Owner: "B"}

	g := graphbuild.BuildFull(snap)
	res := Enumerate(g, allIndices(g), defaultConfig())
	loop, ok := BuildLoop(g, snap, res.Cycles[0], 2)
	if !ok {
		t.Fatalf("expected loop construction to succeed")
	}

	found := false
	for _, s := range loop.Steps {
		if s.From == "A" && len(s.Items) == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the A->B step to bundle both items, got %+v", loop.Steps)
	}
}
