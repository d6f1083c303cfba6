package canon

import (
	"testing"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func wids(ss ...string) []models.WalletID {
	out := make([]models.WalletID, len(ss))
	for i, s := range ss {
		out[i] = models.WalletID(s)
	}
	return out
}

func TestOf_RotationInvariant(t *testing.T) {
	k1 := Of(wids("A", "B", "C"))
	k2 := Of(wids("B", "C", "A"))
	k3 := Of(wids("C", "A", "B"))

	if k1.Hash != k2.Hash || k1.Hash != k3.Hash {
		t.Fatalf("expected all rotations to share a canonical key")
	}
}

func TestOf_ReversalInvariant(t *testing.T) {
	k1 := Of(wids("A", "B", "C"))
	k2 := Of(wids("C", "B", "A"))

	if k1.Hash != k2.Hash {
		t.Fatalf("expected reversal to share a canonical key")
	}
}

func TestOf_DistinctCyclesDiffer(t *testing.T) {
	k1 := Of(wids("A", "B", "C"))
	k2 := Of(wids("A", "B", "D"))

	if k1.Hash == k2.Hash {
		t.Fatalf("expected distinct participant sets to produce distinct keys")
	}
}

func TestOfLoopID_DifferentItemsDifferentIDs(t *testing.T) {
	participants := wids("A", "B")
	id1 := OfLoopID(participants, []models.ItemID{"x"})
	id2 := OfLoopID(participants, []models.ItemID{"y"})

	if id1 == id2 {
		t.Fatalf("expected different item selections to produce different loop ids")
	}
}

func TestOfLoopID_OrderIndependent(t *testing.T) {
	id1 := OfLoopID(wids("A", "B"), []models.ItemID{"x", "y"})
	id2 := OfLoopID(wids("B", "A"), []models.ItemID{"y", "x"})

	if id1 != id2 {
		t.Fatalf("expected participant/item order to not affect loop id")
	}
}
