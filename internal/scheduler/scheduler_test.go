package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func communities(sizes ...int) []models.Community {
	out := make([]models.Community, len(sizes))
	id := 0
	for i, n := range sizes {
		wallets := make([]models.WalletID, n)
		for j := range wallets {
			wallets[j] = models.WalletID(rune('a' + id))
			id++
		}
		out[i] = models.Community{ID: i, Wallets: wallets}
	}
	return out
}

func TestRun_AggregatesAcrossPartitions(t *testing.T) {
	parts := communities(3, 3, 3)
	cfg := Config{ParallelWorkers: 4}

	result, err := Run(context.Background(), parts, cfg, func(_ context.Context, p models.Community, budget int) (PartitionResult, error) {
		return PartitionResult{
			Loops:       []models.TradeLoop{{ID: string(p.Wallets[0])}},
			CyclesFound: 1,
		}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Loops) != 3 {
		t.Fatalf("expected one loop per partition, got %d", len(result.Loops))
	}
	if result.Stats.CyclesFound != 3 {
		t.Errorf("expected cycles found summed across partitions, got %d", result.Stats.CyclesFound)
	}
	if result.Stats.PartitionsProcessed != 3 {
		t.Errorf("expected all 3 partitions processed, got %d", result.Stats.PartitionsProcessed)
	}
}

func TestRun_StopsAtResultCap(t *testing.T) {
	parts := communities(2, 2, 2, 2)
	cfg := Config{ParallelWorkers: 1, MaxResults: 2}

	result, err := Run(context.Background(), parts, cfg, func(_ context.Context, p models.Community, budget int) (PartitionResult, error) {
		return PartitionResult{Loops: []models.TradeLoop{{ID: string(p.Wallets[0])}, {ID: string(p.Wallets[1])}}}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.PartitionsProcessed >= len(parts) {
		t.Errorf("expected early stop before processing every partition, processed %d of %d", result.Stats.PartitionsProcessed, len(parts))
	}
}

func TestRun_GlobalDeadlineMarksTimedOut(t *testing.T) {
	parts := communities(1, 1, 1, 1, 1)
	cfg := Config{ParallelWorkers: 1, GlobalDeadline: time.Now().Add(-time.Second)}

	result, err := Run(context.Background(), parts, cfg, func(_ context.Context, p models.Community, budget int) (PartitionResult, error) {
		return PartitionResult{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Stats.TimedOut {
		t.Errorf("expected a deadline already in the past to mark timed_out")
	}
	if result.Stats.PartitionsProcessed != 0 {
		t.Errorf("expected zero partitions processed when the deadline has already passed, got %d", result.Stats.PartitionsProcessed)
	}
}

func TestAdaptiveBatchSize_ReducesUnderPressure(t *testing.T) {
	cases := []struct {
		name     string
		cpu, mem float64
		base     int
		want     int
	}{
		{"low pressure keeps base", 0.1, 0.1, 8, 8},
		{"60pct halves", 0.6, 0.1, 8, 4},
		{"80pct quarters", 0.1, 0.8, 8, 2},
		{"never below one", 0.9, 0.9, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := adaptiveBatchSize(tc.base, fixedSampler{cpu: tc.cpu, mem: tc.mem})
			if got != tc.want {
				t.Errorf("adaptiveBatchSize(%d, cpu=%.1f mem=%.1f) = %d, want %d", tc.base, tc.cpu, tc.mem, got, tc.want)
			}
		})
	}
}

type fixedSampler struct{ cpu, mem float64 }

func (f fixedSampler) CPUPressure() float64 { return f.cpu }
func (f fixedSampler) MemPressure() float64 { return f.mem }

func TestPrioritize_FavorsSizeNearThirty(t *testing.T) {
	small := models.Community{ID: 0, Wallets: make([]models.WalletID, 3)}
	optimal := models.Community{ID: 1, Wallets: make([]models.WalletID, 30)}

	ordered := prioritize([]models.Community{small, optimal}, nil)
	if ordered[0].ID != optimal.ID {
		t.Errorf("expected the near-30 community prioritized first, got order %v", []int{ordered[0].ID, ordered[1].ID})
	}
}

func TestPrioritize_DensityBreaksSizeTies(t *testing.T) {
	sparse := models.Community{ID: 0, Wallets: make([]models.WalletID, 10), Density: 0.05}
	dense := models.Community{ID: 1, Wallets: make([]models.WalletID, 10), Density: 0.8}

	ordered := prioritize([]models.Community{sparse, dense}, nil)
	if ordered[0].ID != dense.ID {
		t.Errorf("expected the denser community prioritized first, got order %v", []int{ordered[0].ID, ordered[1].ID})
	}
}

func TestPrioritize_DiversityBreaksSizeTies(t *testing.T) {
	uniform := models.Community{ID: 0, Wallets: make([]models.WalletID, 10), Diversity: 0.1}
	diverse := models.Community{ID: 1, Wallets: make([]models.WalletID, 10), Diversity: 0.9}

	ordered := prioritize([]models.Community{uniform, diverse}, nil)
	if ordered[0].ID != diverse.ID {
		t.Errorf("expected the more diverse community prioritized first, got order %v", []int{ordered[0].ID, ordered[1].ID})
	}
}
