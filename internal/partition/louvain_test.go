package partition

import (
	"testing"

	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func chainSnapshot(n int) *models.Snapshot {
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
	return snap
}

func TestPartition_SkipsSmallGraphs(t *testing.T) {
	g := graphbuild.BuildFull(chainSnapshot(5))
	out := Partition(g, Config{SkipBelow: 10, MaxCommunitySize: 75})

	if len(out) != 1 {
		t.Fatalf("expected a single community for a small graph, got %d", len(out))
	}
	if len(out[0].Wallets) != 5 {
		t.Fatalf("expected all 5 wallets in the single community, got %d", len(out[0].Wallets))
	}
}

func TestPartition_UnionCoversAllWallets(t *testing.T) {
	g := graphbuild.BuildFull(chainSnapshot(40))
	out := Partition(g, Config{SkipBelow: 10, MaxCommunitySize: 12})

	total := 0
	for _, c := range out {
		total += len(c.Wallets)
	}
	if total != 40 {
		t.Fatalf("expected partitions to cover all 40 wallets, got %d", total)
	}
}

func TestPartition_RespectsMaxCommunitySize(t *testing.T) {
	g := graphbuild.BuildFull(chainSnapshot(60))
	out := Partition(g, Config{SkipBelow: 10, MaxCommunitySize: 10})

	for _, c := range out {
		if len(c.Wallets) > 10 {
			t.Errorf("community exceeds max_community_size: %d", len(c.Wallets))
		}
	}
}
