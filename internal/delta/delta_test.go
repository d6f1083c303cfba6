package delta

import (
	"context"
	"testing"

	"github.com/rawblock/tradeloop-engine/internal/dedup"
	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
	"github.com/rawblock/tradeloop-engine/internal/scorer"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// chainSnapshotWithIsland builds an n-wallet ring A->B->C->...->A plus a wholly
// disconnected pair that should never be touched by a delta seeded at A.
func chainSnapshotWithIsland(n int) *models.Snapshot {
	snap := models.NewSnapshot()
	for i := 0; i < n; i++ {
		id := models.WalletID(rune('A' + i))
		snap.Wallets[id] = models.NewWallet(id)
	}
	for i := 0; i < n; i++ {
		from := models.WalletID(rune('A' + i))
		to := models.WalletID(rune('A' + (i+1)%n))
		item := models.ItemID(string(from) + "-item")
		snap.Wallets[from].Owned[item] = struct{}{}
		snap.Wallets[to].WantedItems[item] = struct{}{}
		snap.Items[item] = &models.Item{ID: item, Owner: from}
	}

	snap.Wallets["Island1"] = models.NewWallet("Island1")
	snap.Wallets["Island2"] = models.NewWallet("Island2")
	snap.Wallets["Island1"].Owned["island-item"] = struct{}{}
	snap.Wallets["Island2"].WantedItems["island-item"] = struct{}{}
	snap.Items["island-item"] = &models.Item{ID: "island-item", Owner: "Island1"}

	return snap
}

func TestAffectedWallets_ExcludesUnreachableIsland(t *testing.T) {
	snap := chainSnapshotWithIsland(3)
	g := graphbuild.BuildFull(snap)

	affected := AffectedWallets(g, []models.WalletID{"A"}, 10)

	seen := map[models.WalletID]bool{}
	for _, w := range affected {
		seen[w] = true
	}
	if !seen["A"] || !seen["B"] || !seen["C"] {
		t.Fatalf("expected the 3-cycle wallets all reachable, got %v", affected)
	}
	if seen["Island1"] || seen["Island2"] {
		t.Errorf("expected the disconnected island to be excluded, got %v", affected)
	}
}

func TestAffectedWallets_RespectsMaxDepth(t *testing.T) {
	snap := chainSnapshotWithIsland(6)
	g := graphbuild.BuildFull(snap)

	affected := AffectedWallets(g, []models.WalletID{"A"}, 1)

	seen := map[models.WalletID]bool{}
	for _, w := range affected {
		seen[w] = true
	}
	// A (depth 0) is adjacent to B (out-edge) and F (in-edge, undirected).
	if !seen["A"] || !seen["B"] || !seen["F"] {
		t.Fatalf("expected depth-1 neighbors reachable, got %v", affected)
	}
	if seen["D"] {
		t.Errorf("expected far wallet D to be excluded at max_depth=1, got %v", affected)
	}
}

func TestRecompute_FindsLoopAndSkipsDuplicateOnSecondCall(t *testing.T) {
	snap := chainSnapshotWithIsland(3)
	dedupState := dedup.New(0, 0)
	cfg := Config{
		MaxDepth:           10,
		MaxBundleSize:      1,
		CyclesCap:          1000,
		DenseDensityThresh: 0.2,
		DenseAvgOutDegree:  5,
		ScorerConfig:       scorer.Config{},
	}

	first := Recompute(context.Background(), snap, []models.WalletID{"A"}, dedupState, cfg)
	if len(first.NewLoops) != 1 {
		t.Fatalf("expected exactly one loop from the 3-cycle, got %d", len(first.NewLoops))
	}

	second := Recompute(context.Background(), snap, []models.WalletID{"A"}, dedupState, cfg)
	if len(second.NewLoops) != 0 {
		t.Errorf("expected the duplicate cycle to be skipped on re-recompute, got %d", len(second.NewLoops))
	}
}
