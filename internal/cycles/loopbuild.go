package cycles

import (
	"sort"
	"time"

	"github.com/rawblock/tradeloop-engine/internal/canon"
	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// BuildLoop materializes a TradeLoop from an open wallet cycle, choosing
// the item(s) each step actually transfers.
//
// For each step (w_i -> w_i+1): start from the candidate items the graph
// recorded for that edge, then re-validate each one against the live
// snapshot — ownership[x] must still equal w_i and x must still be wanted
// by w_i+1. This catches ownership drift (an item changed hands between
// graph-build time and loop-materialization time); if a step's candidate
// set re-validates to empty, the whole cycle is rejected with no
// externally visible error.
//
// Up to maxBundleSize items are selected per step, in item-id order, so
// the chosen set (and therefore the loop id) is reproducible; maxBundleSize
// of 1 recovers the single-item-per-step behavior.
func BuildLoop(g *graphbuild.Graph, snap *models.Snapshot, cycle []models.WalletID, maxBundleSize int) (*models.TradeLoop, bool) {
	if maxBundleSize <= 0 {
		maxBundleSize = 1
	}
	n := len(cycle)
	steps := make([]models.TradeLoopStep, 0, n)
	var allItems []models.ItemID

	for i := 0; i < n; i++ {
		from := cycle[i]
		to := cycle[(i+1)%n]

		candidates := g.EdgeItems(from, to)
		chosen := validateAndChoose(snap, from, to, candidates, maxBundleSize)
		if len(chosen) == 0 {
			return nil, false
		}

		steps = append(steps, models.TradeLoopStep{From: from, To: to, Items: chosen})
		allItems = append(allItems, chosen...)
	}

	id := canon.OfLoopID(cycle, allItems)
	loop := &models.TradeLoop{
		ID:           id,
		Steps:        steps,
		Participants: n,
		Efficiency:   1.0, // simple cycles: every participant is distinct
		CreatedAt:    time.Now(),
	}
	return loop, true
}

func validateAndChoose(snap *models.Snapshot, from, to models.WalletID, candidates []models.ItemID, maxBundleSize int) []models.ItemID {
	toWallet, ok := snap.Wallets[to]
	if !ok {
		return nil
	}

	valid := make([]models.ItemID, 0, len(candidates))
	for _, item := range candidates {
		rec, ok := snap.Items[item]
		if !ok || rec.Owner != from {
			continue // ownership drift: item no longer owned by from
		}
		if _, wants := toWallet.WantedItems[item]; !wants {
			continue
		}
		valid = append(valid, item)
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i] < valid[j] })
	if len(valid) > maxBundleSize {
		valid = valid[:maxBundleSize]
	}
	return valid
}
