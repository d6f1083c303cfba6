// Package scheduler runs a set of graph partitions through bounded-
// concurrency worker batches under a global deadline. Concurrency is
// implemented with golang.org/x/sync's errgroup and semaphore, the idiomatic
// choice for bounded fan-out.
package scheduler

import (
	"context"
	"log"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// HostSampler reports host resource pressure in [0, 1] for CPU and memory.
// The default implementation is a coarse stdlib-only proxy; callers running
// in a managed environment may supply a more accurate sampler.
type HostSampler interface {
	CPUPressure() float64
	MemPressure() float64
}

type runtimeSampler struct{}

func (runtimeSampler) CPUPressure() float64 {
	// Goroutine count relative to GOMAXPROCS is a crude proxy for
	// scheduler contention; it is not a real CPU utilization reading.
	g := float64(runtime.NumGoroutine())
	p := float64(runtime.GOMAXPROCS(0))
	pressure := g / (p * 50)
	if pressure > 1 {
		pressure = 1
	}
	return pressure
}

func (runtimeSampler) MemPressure() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.Sys == 0 {
		return 0
	}
	pressure := float64(ms.HeapAlloc) / float64(ms.Sys)
	if pressure > 1 {
		pressure = 1
	}
	return pressure
}

// DefaultHostSampler is the stdlib-only HostSampler used when none is
// configured.
var DefaultHostSampler HostSampler = runtimeSampler{}

// PartitionResult is what one worker produces for one community.
type PartitionResult struct {
	Loops                  []models.TradeLoop
	CyclesFound            int
	PermutationsEliminated int
	TimedOut               bool
	SCCMs                  int64
	CycleMs                int64
	DedupMs                int64
}

// WorkFunc processes a single partition under the given per-partition
// cycles budget, honoring ctx cancellation at its own checkpoints.
type WorkFunc func(ctx context.Context, partition models.Community, cyclesBudget int) (PartitionResult, error)

// Config tunes the scheduler.
type Config struct {
	ParallelWorkers int
	GlobalDeadline  time.Time
	CyclesCap       int
	MaxResults      int
	Sampler         HostSampler
	// Activity optionally categorizes wallets for fair scheduling. Nil
	// drops the new-user term from prioritization (size-optimality, density
	// and diversity still apply) and disables the fairness early stop.
	Activity map[models.WalletID]models.ActivityTier
}

// Run orders partitions by priority, dispatches them in adaptively-sized
// concurrent batches, and applies the early-stop policy.
func Run(ctx context.Context, partitions []models.Community, cfg Config, work WorkFunc) (models.DiscoveryResult, error) {
	if cfg.Sampler == nil {
		cfg.Sampler = DefaultHostSampler
	}
	if cfg.ParallelWorkers <= 0 {
		cfg.ParallelWorkers = 4
	}

	ordered := prioritize(partitions, cfg.Activity)
	budget := perPartitionBudget(cfg.CyclesCap, ordered)

	var allLoops []models.TradeLoop
	var cyclesFound, permsEliminated, partitionsProcessed int
	var sccMs, cycleMs, dedupMs int64
	timedOut := false
	categoriesSeen := map[models.ActivityTier]bool{}

	for start := 0; start < len(ordered); {
		if !cfg.GlobalDeadline.IsZero() && time.Now().After(cfg.GlobalDeadline) {
			timedOut = true
			log.Printf("[Scheduler] global deadline reached with %d/%d partitions processed", start, len(ordered))
			break
		}

		batchSize := adaptiveBatchSize(cfg.ParallelWorkers, cfg.Sampler)
		end := start + batchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		batch := ordered[start:end]

		results, err := runBatch(ctx, batch, budget[start:end], work, cfg.ParallelWorkers)
		if err != nil {
			return models.DiscoveryResult{}, err
		}

		for i, r := range results {
			allLoops = append(allLoops, r.Loops...)
			cyclesFound += r.CyclesFound
			permsEliminated += r.PermutationsEliminated
			sccMs += r.SCCMs
			cycleMs += r.CycleMs
			dedupMs += r.DedupMs
			if r.TimedOut {
				timedOut = true
			}
			categoriesSeen[dominantTier(batch[i], cfg.Activity)] = true
		}
		partitionsProcessed += len(batch)

		start = end

		if cfg.MaxResults > 0 && len(allLoops) >= cfg.MaxResults {
			log.Printf("[Scheduler] result cap (%d) reached, stopping early", cfg.MaxResults)
			break
		}
		if earlyStopOnFairness(categoriesSeen, len(allLoops), cfg.MaxResults) {
			log.Printf("[Scheduler] fairness early-stop: all wallet categories represented and 30%% of cap met")
			break
		}
	}

	return models.DiscoveryResult{
		Loops: allLoops,
		Stats: models.DiscoveryStats{
			SCCMs:                  sccMs,
			CycleMs:                cycleMs,
			DedupMs:                dedupMs,
			CyclesFound:            cyclesFound,
			PermutationsEliminated: permsEliminated,
			TimedOut:               timedOut,
			PartitionsProcessed:    partitionsProcessed,
		},
	}, nil
}

func runBatch(ctx context.Context, batch []models.Community, budget []int, work WorkFunc, maxWorkers int) ([]PartitionResult, error) {
	results := make([]PartitionResult, len(batch))
	sem := semaphore.NewWeighted(int64(maxWorkers))
	g, gctx := errgroup.WithContext(ctx)

	for i := range batch {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			r, err := work(gctx, batch[i], budget[i])
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// adaptiveBatchSize reduces effective concurrency by fixed multipliers at
// 60% and 80% host-pressure thresholds, never below 1.
func adaptiveBatchSize(base int, sampler HostSampler) int {
	pressure := math.Max(sampler.CPUPressure(), sampler.MemPressure())
	size := base
	switch {
	case pressure >= 0.8:
		size = int(math.Ceil(float64(base) * 0.25))
	case pressure >= 0.6:
		size = int(math.Ceil(float64(base) * 0.5))
	}
	if size < 1 {
		size = 1
	}
	return size
}

// perPartitionBudget derives each partition's cycles budget proportional to
// its size out of the global cap.
func perPartitionBudget(globalCap int, partitions []models.Community) []int {
	total := 0
	for _, p := range partitions {
		total += len(p.Wallets)
	}
	if total == 0 {
		total = 1
	}
	out := make([]int, len(partitions))
	for i, p := range partitions {
		share := int(math.Ceil(float64(globalCap) * float64(len(p.Wallets)) / float64(total)))
		if share < 1 {
			share = 1
		}
		out[i] = share
	}
	return out
}

// prioritize orders partitions by a weighted score combining size-
// optimality (bell curve centered at 30), connection density (internal
// edges / possible), item diversity (unique collections / size), and (when
// activity data is supplied) new-user inclusion fairness. Higher score
// first. Density and Diversity ride in on the Community records, filled by
// whichever caller holds the built graph.
func prioritize(partitions []models.Community, activity map[models.WalletID]models.ActivityTier) []models.Community {
	scores := make([]float64, len(partitions))
	order := make([]int, len(partitions))
	for i, p := range partitions {
		scores[i] = score(p, activity)
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })
	out := make([]models.Community, len(partitions))
	for i, idx := range order {
		out[i] = partitions[idx]
	}
	return out
}

func score(p models.Community, activity map[models.WalletID]models.ActivityTier) float64 {
	n := float64(len(p.Wallets))
	if n == 0 {
		return 0
	}
	sizeOptimality := math.Exp(-math.Pow(n-30, 2) / (2 * 15 * 15))

	newRatio := 0.0
	if activity != nil {
		newCount := 0
		for _, w := range p.Wallets {
			if activity[w] == models.ActivityNew {
				newCount++
			}
		}
		newRatio = float64(newCount) / n
	}

	return 0.35*sizeOptimality + 0.25*clampUnit(p.Density) + 0.2*clampUnit(p.Diversity) + 0.2*newRatio
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dominantTier(p models.Community, activity map[models.WalletID]models.ActivityTier) models.ActivityTier {
	if activity == nil {
		return models.ActivityUnknown
	}
	counts := map[models.ActivityTier]int{}
	for _, w := range p.Wallets {
		counts[activity[w]]++
	}
	best := models.ActivityUnknown
	bestCount := -1
	for tier, c := range counts {
		if c > bestCount {
			bestCount = c
			best = tier
		}
	}
	return best
}

func earlyStopOnFairness(seen map[models.ActivityTier]bool, loopsSoFar, maxResults int) bool {
	if maxResults <= 0 {
		return false
	}
	if len(seen) == 0 {
		return false
	}
	allCategories := seen[models.ActivityNew] && seen[models.ActivityStandard] && seen[models.ActivityPower]
	if !allCategories {
		return false
	}
	return float64(loopsSoFar) >= 0.3*float64(maxResults)
}
