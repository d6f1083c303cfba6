package partition

import (
	"math"
	"testing"

	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
)

func TestAdjustedRandIndex_PerfectAgreement(t *testing.T) {
	a := []int{0, 0, 1, 1, 2, 2}
	b := []int{0, 0, 1, 1, 2, 2}

	if ari := AdjustedRandIndex(a, b); math.Abs(ari-1.0) > 0.01 {
		t.Errorf("expected ARI=1.0 for identical assignments, got %f", ari)
	}
}

func TestAdjustedRandIndex_DissimilarPartitionsScoreLow(t *testing.T) {
	a := []int{0, 0, 0, 1, 1, 1}
	b := []int{0, 1, 0, 1, 0, 1}

	if ari := AdjustedRandIndex(a, b); ari > 0.5 {
		t.Errorf("expected ARI near 0 for dissimilar assignments, got %f", ari)
	}
}

func TestVariationOfInformation_IdenticalIsZero(t *testing.T) {
	a := []int{0, 0, 1, 1, 2, 2}
	b := []int{0, 0, 1, 1, 2, 2}

	if vi := VariationOfInformation(a, b); vi > 0.01 {
		t.Errorf("expected VI=0.0 for identical assignments, got %f", vi)
	}
}

func TestVariationOfInformation_DifferentIsPositive(t *testing.T) {
	a := []int{0, 0, 0, 1, 1, 1}
	b := []int{0, 1, 0, 1, 0, 1}

	if vi := VariationOfInformation(a, b); vi < 0.1 {
		t.Errorf("expected VI > 0 for different assignments, got %f", vi)
	}
}

func TestCommunityLabels_StableAcrossRepeatedPartitioning(t *testing.T) {
	g := graphbuild.BuildFull(chainSnapshot(40))
	cfg := Config{SkipBelow: 10, MaxCommunitySize: 12}

	first := CommunityLabels(g, Partition(g, cfg))
	second := CommunityLabels(g, Partition(g, cfg))

	if ari := AdjustedRandIndex(first, second); ari < 0.99 {
		t.Errorf("expected the deterministic partitioner to reproduce the same assignment (ARI=%f)", ari)
	}
}
