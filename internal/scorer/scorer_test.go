package scorer

import (
	"testing"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func twoPartyLoop() (*models.TradeLoop, *models.Snapshot) {
	snap := models.NewSnapshot()
	snap.Wallets["A"] = models.NewWallet("A")
	snap.Wallets["B"] = models.NewWallet("B")
	snap.Wallets["A"].WantedItems["y"] = struct{}{}
	snap.Wallets["B"].WantedItems["x"] = struct{}{}
	snap.Items["x"] = &models.Item{ID: "x", Owner: "A"}
	snap.Items["y"] = &models.Item{ID: "y", Owner: "B"}

	loop := &models.TradeLoop{
		Participants: 2,
		Steps: []models.TradeLoopStep{
			{From: "A", To: "B", Items: []models.ItemID{"x"}},
			{From: "B", To: "A", Items: []models.ItemID{"y"}},
		},
	}
	return loop, snap
}

func TestScore_TwoPartyTradeMeetsFloor(t *testing.T) {
	loop, snap := twoPartyLoop()
	wanters := BuildWantersIndex(snap)

	quality, ok := Score(loop, snap, wanters, Config{})
	if !ok {
		t.Fatalf("expected loop to survive min_efficiency filter")
	}
	if quality < 0.5 {
		t.Errorf("expected quality >= min_quality (0.5), got %v", quality)
	}
}

func TestScore_MissingFloorPriceFallsBackNotZero(t *testing.T) {
	loop, snap := twoPartyLoop()
	wanters := BuildWantersIndex(snap)

	quality, ok := Score(loop, snap, wanters, Config{})
	if !ok {
		t.Fatalf("expected loop to be scored")
	}
	if quality <= 0 {
		t.Errorf("missing floor-price data must not zero the score, got %v", quality)
	}
}

func TestScore_BelowMinEfficiencyFiltered(t *testing.T) {
	loop := &models.TradeLoop{
		Participants: 3,
		Steps: []models.TradeLoopStep{
			{From: "A", To: "B", Items: []models.ItemID{"x"}},
			{From: "B", To: "A", Items: []models.ItemID{"y"}}, // repeats A: not distinct
		},
	}
	snap := models.NewSnapshot()

	_, ok := Score(loop, snap, WantersIndex{}, Config{MinEfficiency: 0.99})
	if ok {
		t.Fatalf("expected a loop with a repeated participant to fail the efficiency floor")
	}
}

func TestScore_HigherDemandScoresHigher(t *testing.T) {
	loop, snap := twoPartyLoop()
	price := 1.0
	snap.Items["x"].FloorPrice = &price
	snap.Items["y"].FloorPrice = &price

	low := BuildWantersIndex(snap)

	// Add more wanters for x to raise its demand signal.
	for i := 0; i < 5; i++ {
		id := models.WalletID("extra" + string(rune('0'+i)))
		snap.Wallets[id] = models.NewWallet(id)
		snap.Wallets[id].WantedItems["x"] = struct{}{}
	}
	high := BuildWantersIndex(snap)

	qLow, _ := Score(loop, snap, low, Config{})
	qHigh, _ := Score(loop, snap, high, Config{})
	if qHigh < qLow {
		t.Errorf("expected higher wanter count to not decrease quality: low=%v high=%v", qLow, qHigh)
	}
}
