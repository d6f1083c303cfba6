package partition

import (
	"math"
	"sort"

	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// CommunityLabels flattens a partition into one int label per wallet,
// ordered by g's dense wallet index, so two partitions of the same graph
// (e.g. consecutive discovery calls, or before/after a delta-triggered
// re-partition) can be compared label-by-label with AdjustedRandIndex or
// VariationOfInformation. Wallets absent from every community (never
// happens for a partition covering the full graph) get label -1.
func CommunityLabels(g *graphbuild.Graph, communities []models.Community) []int {
	labels := make([]int, g.NumNodes())
	for i := range labels {
		labels[i] = -1
	}
	for _, c := range communities {
		for _, w := range c.Wallets {
			if i, ok := g.IndexOf(w); ok {
				labels[i] = c.ID
			}
		}
	}
	return labels
}

// AdjustedRandIndex compares two wallet-label assignments over the same
// graph (e.g. this call's partition vs. the previous call's) and reports
// how much they agree, corrected for chance. Used to flag partition
// instability: edge-crossing cycles are only found by the delta front-end,
// so communities that reshuffle heavily between calls widen that blind
// spot and are a signal to tune max_community_size.
//
// Values range from -1 (worse than random) to 1 (perfect agreement); 0 is
// what random labeling would produce.
func AdjustedRandIndex(a, b []int) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0.0
	}

	aLabels := uniqueLabels(a)
	bLabels := uniqueLabels(b)
	aIdx := labelIndex(aLabels)
	bIdx := labelIndex(bLabels)

	nij := make([][]int, len(aLabels))
	for i := range nij {
		nij[i] = make([]int, len(bLabels))
	}
	for k := 0; k < n; k++ {
		nij[aIdx[a[k]]][bIdx[b[k]]]++
	}

	rowSums := make([]int, len(aLabels))
	colSums := make([]int, len(bLabels))
	for i := range nij {
		for j := range nij[i] {
			rowSums[i] += nij[i][j]
			colSums[j] += nij[i][j]
		}
	}

	sumNijC2 := 0.0
	for i := range nij {
		for j := range nij[i] {
			sumNijC2 += comb2(nij[i][j])
		}
	}
	sumAiC2, sumBjC2 := 0.0, 0.0
	for _, v := range rowSums {
		sumAiC2 += comb2(v)
	}
	for _, v := range colSums {
		sumBjC2 += comb2(v)
	}

	nC2 := comb2(n)
	if nC2 == 0 {
		return 0.0
	}

	expectedIndex := (sumAiC2 * sumBjC2) / nC2
	maxIndex := 0.5 * (sumAiC2 + sumBjC2)
	denominator := maxIndex - expectedIndex
	if math.Abs(denominator) < 1e-12 {
		return 1.0
	}
	return (sumNijC2 - expectedIndex) / denominator
}

// VariationOfInformation is the information-theoretic distance between two
// label assignments: 0 for identical partitions, growing with disagreement.
func VariationOfInformation(a, b []int) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0.0
	}
	nf := float64(n)

	aLabels := uniqueLabels(a)
	bLabels := uniqueLabels(b)
	aIdx := labelIndex(aLabels)
	bIdx := labelIndex(bLabels)

	nij := make([][]int, len(aLabels))
	for i := range nij {
		nij[i] = make([]int, len(bLabels))
	}
	for k := 0; k < n; k++ {
		nij[aIdx[a[k]]][bIdx[b[k]]]++
	}

	rowSums := make([]int, len(aLabels))
	colSums := make([]int, len(bLabels))
	for i := range nij {
		for j := range nij[i] {
			rowSums[i] += nij[i][j]
			colSums[j] += nij[i][j]
		}
	}

	hAgivenB := 0.0
	for i := range nij {
		for j := range nij[i] {
			if nij[i][j] > 0 && colSums[j] > 0 {
				pij := float64(nij[i][j]) / nf
				hAgivenB -= pij * math.Log2(float64(nij[i][j])/float64(colSums[j]))
			}
		}
	}
	hBgivenA := 0.0
	for i := range nij {
		for j := range nij[i] {
			if nij[i][j] > 0 && rowSums[i] > 0 {
				pij := float64(nij[i][j]) / nf
				hBgivenA -= pij * math.Log2(float64(nij[i][j])/float64(rowSums[i]))
			}
		}
	}
	return hAgivenB + hBgivenA
}

func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}

func uniqueLabels(labels []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}

func labelIndex(labels []int) map[int]int {
	idx := make(map[int]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}
	return idx
}
