// Package scorer computes the per-loop quality score: a weighted sum of
// normalized sub-scores over a fixed metric bundle. Scoring is pure —
// floor-price lookups read directly from the already-loaded snapshot, so
// nothing on the discovery path blocks on I/O; the snapshot itself is the
// price cache for one discovery call.
package scorer

import (
	"math"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Weights controls how much each sub-score contributes to quality.
type Weights struct {
	Efficiency       float64
	Fairness         float64
	Demand           float64
	PriceDataQuality float64
	Diversity        float64
}

// DefaultWeights are the production defaults.
var DefaultWeights = Weights{
	Efficiency:       0.40,
	Fairness:         0.30,
	Demand:           0.10,
	PriceDataQuality: 0.10,
	Diversity:        0.10,
}

// Config tunes scoring.
type Config struct {
	Weights       Weights
	MinQuality    float64
	MinEfficiency float64
}

// WantersIndex maps an item to the number of wallets listing it among their
// wanted items (collection wants are not counted), precomputed once per
// snapshot so scoring never rescans every wallet per loop.
type WantersIndex map[models.ItemID]int

// BuildWantersIndex derives a reverse want-count index from a snapshot.
func BuildWantersIndex(snap *models.Snapshot) WantersIndex {
	idx := make(WantersIndex)
	for _, w := range snap.Wallets {
		for item := range w.WantedItems {
			idx[item]++
		}
	}
	return idx
}

// Score computes quality for one loop and reports whether it survives the
// min_efficiency pre-filter; loops below the floor are discarded before
// any further scoring work.
func Score(loop *models.TradeLoop, snap *models.Snapshot, wanters WantersIndex, cfg Config) (float64, bool) {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights
	}
	if cfg.MinQuality <= 0 {
		cfg.MinQuality = 0.5
	}
	if cfg.MinEfficiency <= 0 {
		cfg.MinEfficiency = 0.6
	}

	efficiency := efficiencyScore(loop)
	if efficiency < cfg.MinEfficiency {
		return 0, false
	}

	fairness, priceQuality := fairnessAndPriceQuality(loop, snap)
	demand := demandScore(loop, wanters)
	diversity := diversityScore(loop, snap)

	raw := cfg.Weights.Efficiency*clamp01(efficiency) +
		cfg.Weights.Fairness*clamp01(fairness) +
		cfg.Weights.Demand*clamp01(demand) +
		cfg.Weights.PriceDataQuality*clamp01(priceQuality) +
		cfg.Weights.Diversity*clamp01(diversity)

	quality := raw
	if quality < cfg.MinQuality {
		quality = cfg.MinQuality
	}
	if quality > 1 {
		quality = 1
	}
	return quality, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// efficiencyScore is unique_participants/k, always 1.0 for the elementary
// (duplicate-free) cycles this engine produces.
func efficiencyScore(loop *models.TradeLoop) float64 {
	seen := make(map[models.WalletID]bool, loop.Participants)
	for _, s := range loop.Steps {
		seen[s.From] = true
	}
	if loop.Participants == 0 {
		return 0
	}
	return float64(len(seen)) / float64(loop.Participants)
}

// fairnessAndPriceQuality computes the statistical evenness of per-step
// floor-price values (coefficient of variation, inverted and clamped) with
// a graduated penalty for missing price data. If no item in the loop has
// floor-price data at all, fairness falls back to a fixed 0.7 and
// price_data_quality reflects the missing fraction rather than zeroing the
// overall score.
func fairnessAndPriceQuality(loop *models.TradeLoop, snap *models.Snapshot) (fairness, priceQuality float64) {
	var stepValues []float64
	total, withPrice := 0, 0

	for _, s := range loop.Steps {
		stepValue := 0.0
		for _, item := range s.Items {
			total++
			if rec, ok := snap.Items[item]; ok && rec.FloorPrice != nil {
				withPrice++
				stepValue += *rec.FloorPrice
			}
		}
		stepValues = append(stepValues, stepValue)
	}

	if total == 0 {
		return 0.7, 0
	}
	priceQuality = float64(withPrice) / float64(total)
	if withPrice == 0 {
		return 0.7, priceQuality
	}

	cov := coefficientOfVariation(stepValues)
	// Lower CoV (more even value distribution across steps) means higher
	// fairness. CoV of 0 -> fairness 1.0; CoV >= 1 -> fairness floor 0.
	evenness := 1 - cov
	// Graduated completeness penalty: missing price data pulls the raw
	// evenness estimate toward the neutral 0.7 fallback.
	fairness = priceQuality*evenness + (1-priceQuality)*0.7
	return fairness, priceQuality
}

func coefficientOfVariation(values []float64) float64 {
	n := float64(len(values))
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= n
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= n
	stddev := math.Sqrt(variance)
	cov := stddev / mean
	if cov > 1 {
		cov = 1
	}
	return cov
}

// demandScore averages a saturating demand ratio (wanters per item, since
// every item has exactly one owner) across every item the loop moves.
func demandScore(loop *models.TradeLoop, wanters WantersIndex) float64 {
	items := loop.Items()
	if len(items) == 0 {
		return 0
	}
	sum := 0.0
	for _, item := range items {
		n := float64(wanters[item])
		sum += n / (n + 2) // saturates toward 1 as wanter count grows
	}
	return sum / float64(len(items))
}

// diversityScore is the unique-collection fraction among the loop's items.
func diversityScore(loop *models.TradeLoop, snap *models.Snapshot) float64 {
	items := loop.Items()
	if len(items) == 0 {
		return 0
	}
	collections := make(map[models.CollectionID]bool)
	for _, item := range items {
		if rec, ok := snap.Items[item]; ok && rec.Collection != "" {
			collections[rec.Collection] = true
		}
	}
	if len(collections) == 0 {
		return 0
	}
	return float64(len(collections)) / float64(len(items))
}
