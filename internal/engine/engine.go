// Package engine wires the graph builder, SCC finder, cycle enumerator,
// canonical deduplicator, partitioner, scheduler, scorer, delta front-end,
// loop store, and notifier into one explicit context struct.
//
// Every dependency is constructed once by the caller and threaded in
// explicitly, rather than living behind package-level singletons, so
// multiple engines (e.g. one per test, or one per region in a sharded
// deployment) can coexist without shared global state.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/tradeloop-engine/internal/cycles"
	"github.com/rawblock/tradeloop-engine/internal/dedup"
	"github.com/rawblock/tradeloop-engine/internal/delta"
	"github.com/rawblock/tradeloop-engine/internal/graphbuild"
	"github.com/rawblock/tradeloop-engine/internal/notify"
	"github.com/rawblock/tradeloop-engine/internal/partition"
	"github.com/rawblock/tradeloop-engine/internal/scc"
	"github.com/rawblock/tradeloop-engine/internal/scheduler"
	"github.com/rawblock/tradeloop-engine/internal/scorer"
	"github.com/rawblock/tradeloop-engine/internal/store"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Engine is the explicit context struct that owns every subsystem for one
// tenant population. It is safe for concurrent use.
type Engine struct {
	cfg    models.Config
	store  store.Store
	notify *notify.Registry

	// deltaMu serializes delta-discovery per tenant: at most one
	// delta-discovery is in flight for a given tenant at any time. Reads of
	// the store are unaffected — they never take this lock.
	deltaMu sync.Map // models.TenantID -> *sync.Mutex

	// perTenantDedup is each tenant's cross-call set of loop ids for delta
	// calls, so a loop already emitted by one delta call is never re-emitted
	// by a later one for the same tenant. Discover does not use it; each
	// Discover call deduplicates against its own fresh set.
	dedupMu        sync.Mutex
	perTenantDedup map[models.TenantID]*dedup.Deduplicator

	// perTenantMetrics accumulates cumulative counters across calls
	// (cycles found, permutations eliminated, timeouts, partitions
	// processed) per tenant, exposed via Metrics.
	metricsMu        sync.Mutex
	perTenantMetrics map[models.TenantID]*TenantMetrics
}

// New constructs an Engine. cfg is completed with WithDefaults if any field
// is unset; st is typically a *store.MemoryStore, optionally wrapped or
// replaced by *store.PostgresStore; notifier may be nil.
func New(cfg models.Config, st store.Store, notifier *notify.Registry) *Engine {
	if notifier == nil {
		notifier = notify.NewRegistry()
	}
	return &Engine{
		cfg:              cfg.WithDefaults(),
		store:            st,
		notify:           notifier,
		perTenantDedup:   make(map[models.TenantID]*dedup.Deduplicator),
		perTenantMetrics: make(map[models.TenantID]*TenantMetrics),
	}
}

func (e *Engine) tenantDedup(tenant models.TenantID) *dedup.Deduplicator {
	e.dedupMu.Lock()
	defer e.dedupMu.Unlock()
	d, ok := e.perTenantDedup[tenant]
	if !ok {
		d = dedup.New(e.bloomCapacity(), e.cfg.BloomFPRate)
		e.perTenantDedup[tenant] = d
	}
	return d
}

// bloomCapacity is 0 (probabilistic tier disabled, exact tier only) when
// enable_probabilistic_dedup is off.
func (e *Engine) bloomCapacity() uint64 {
	if e.cfg.EnableBloomDedup != nil && !*e.cfg.EnableBloomDedup {
		return 0
	}
	return e.cfg.BloomCapacity
}

func (e *Engine) tenantDeltaLock(tenant models.TenantID) *sync.Mutex {
	v, _ := e.deltaMu.LoadOrStore(tenant, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Discover runs full-graph discovery: build the graph,
// optionally partition it, run C3-C4-C5/C6-C9 per partition under the
// scheduler's budget, and return the combined, deduplicated, scored
// result. It does not touch the loop store — callers decide whether and
// how to persist the returned loops.
func (e *Engine) Discover(ctx context.Context, snap *models.Snapshot) (models.DiscoveryResult, error) {
	requestID := uuid.NewString()
	deadline := time.Now().Add(time.Duration(e.cfg.TimeoutMs) * time.Millisecond)
	sccDeadline := time.Now().Add(time.Duration(e.cfg.SCCTimeoutMs) * time.Millisecond)
	log.Printf("[Engine] discover request=%s wallets=%d items=%d", requestID, len(snap.Wallets), len(snap.Items))

	g := graphbuild.BuildFull(snap)
	wanters := scorer.BuildWantersIndex(snap)
	dedupState := dedup.New(e.bloomCapacity(), e.cfg.BloomFPRate)

	var communities []models.Community
	if e.cfg.EnablePartition != nil && *e.cfg.EnablePartition {
		communities = partition.Partition(g, partition.Config{MaxCommunitySize: e.cfg.MaxCommunitySize})
	} else {
		all := make([]models.WalletID, g.NumNodes())
		for i := 0; i < g.NumNodes(); i++ {
			all[i] = g.WalletAt(i)
		}
		communities = []models.Community{{ID: 0, Wallets: all}}
	}
	annotateCommunities(g, snap, communities)

	work := func(ctx context.Context, community models.Community, cyclesBudget int) (scheduler.PartitionResult, error) {
		return e.runPartition(g, snap, community, cyclesBudget, dedupState, wanters, sccDeadline, deadline)
	}

	result, err := scheduler.Run(ctx, communities, scheduler.Config{
		ParallelWorkers: e.cfg.ParallelWorkers,
		GlobalDeadline:  deadline,
		CyclesCap:       e.cfg.CyclesCap,
		MaxResults:      e.cfg.MaxResults,
	}, work)
	if err != nil {
		return models.DiscoveryResult{}, err
	}

	sortByQualityDesc(result.Loops)
	if e.cfg.MaxResults > 0 && len(result.Loops) > e.cfg.MaxResults {
		result.Loops = result.Loops[:e.cfg.MaxResults]
	}
	return result, nil
}

// annotateCommunities fills each community's connection-density and
// item-diversity prioritization signals from the built graph and snapshot,
// so the scheduler can rank partitions without re-deriving graph structure.
func annotateCommunities(g *graphbuild.Graph, snap *models.Snapshot, communities []models.Community) {
	for i := range communities {
		c := &communities[i]
		n := len(c.Wallets)
		if n == 0 {
			continue
		}

		member := make(map[int]bool, n)
		for _, w := range c.Wallets {
			if idx, ok := g.IndexOf(w); ok {
				member[idx] = true
			}
		}
		internal := 0
		for idx := range member {
			for _, e := range g.OutEdges(idx) {
				if member[e.To] {
					internal++
				}
			}
		}
		if n > 1 {
			c.Density = float64(internal) / float64(n*(n-1))
		}

		collections := make(map[models.CollectionID]bool)
		for _, wid := range c.Wallets {
			w, ok := snap.Wallets[wid]
			if !ok {
				continue
			}
			for item := range w.Owned {
				if rec, ok := snap.Items[item]; ok && rec.Collection != "" {
					collections[rec.Collection] = true
				}
			}
		}
		c.Diversity = float64(len(collections)) / float64(n)
		if c.Diversity > 1 {
			c.Diversity = 1
		}
	}
}

// RecordDiscovery folds one Discover call's stats into tenant's cumulative
// counters. Discover itself is tenant-agnostic; callers that scope
// discovery to a tenant (e.g. the HTTP layer's per-tenant route) opt into
// attribution by calling this explicitly instead of the engine doing it
// implicitly.
func (e *Engine) RecordDiscovery(tenant models.TenantID, result models.DiscoveryResult) {
	e.recordDiscoveryStats(tenant, result.Stats, len(result.Loops))
}

func (e *Engine) runPartition(
	g *graphbuild.Graph,
	snap *models.Snapshot,
	community models.Community,
	cyclesBudget int,
	dedupState *dedup.Deduplicator,
	wanters scorer.WantersIndex,
	sccDeadline, deadline time.Time,
) (scheduler.PartitionResult, error) {
	sub := graphbuild.BuildInduced(g, community.Wallets)
	allIndices := make([]int, sub.NumNodes())
	for i := range allIndices {
		allIndices[i] = i
	}

	sccResult := scc.Find(sub, allIndices, scc.Config{
		DeadlineAt: sccDeadline,
		BatchSize:  e.cfg.SCCBatchSize,
		Prune:      true,
	})

	var loops []models.TradeLoop
	cyclesFound, permsEliminated := 0, 0
	var cycleMs, dedupMs int64
	timedOut := sccResult.Metadata.TimedOut

	for _, component := range sccResult.SCCs {
		idxSet := make([]int, 0, len(component))
		for _, w := range component {
			if i, ok := sub.IndexOf(w); ok {
				idxSet = append(idxSet, i)
			}
		}
		if len(idxSet) < 2 {
			continue
		}

		cycleStart := time.Now()
		cycleResult := cycles.Enumerate(sub, idxSet, cycles.Config{
			MaxDepth:           e.cfg.MaxDepth,
			CyclesCap:          cyclesBudget,
			CyclesCapDense:     e.cfg.CyclesCapDense,
			DenseDensityThresh: e.cfg.DenseDensityThresh,
			DenseAvgOutDegree:  e.cfg.DenseAvgOutDegree,
			DeadlineAt:         deadline,
		})
		cycleMs += time.Since(cycleStart).Milliseconds()
		cyclesFound += len(cycleResult.Cycles)
		permsEliminated += cycleResult.PermutationsEliminated
		if cycleResult.TimedOut {
			timedOut = true
		}

		for _, cycle := range cycleResult.Cycles {
			loop, ok := cycles.BuildLoop(sub, snap, cycle, e.cfg.MaxBundleSize)
			if !ok {
				continue
			}
			dedupStart := time.Now()
			fresh := dedupState.Insert(loop.ID)
			dedupMs += time.Since(dedupStart).Milliseconds()
			if !fresh {
				continue
			}
			quality, ok := scorer.Score(loop, snap, wanters, scorer.Config{MinEfficiency: e.cfg.MinEfficiency})
			if !ok {
				continue
			}
			loop.Quality = quality
			loops = append(loops, *loop)
		}
	}

	return scheduler.PartitionResult{
		Loops:                  loops,
		CyclesFound:            cyclesFound,
		PermutationsEliminated: permsEliminated,
		TimedOut:               timedOut,
		SCCMs:                  sccResult.Metadata.ElapsedMs,
		CycleMs:                cycleMs,
		DedupMs:                dedupMs,
	}, nil
}

func sortByQualityDesc(loops []models.TradeLoop) {
	sort.SliceStable(loops, func(i, j int) bool {
		if loops[i].Quality != loops[j].Quality {
			return loops[i].Quality > loops[j].Quality
		}
		return loops[i].ID < loops[j].ID
	})
}

func (e *Engine) deltaDeadline() time.Time {
	return time.Now().Add(time.Duration(e.cfg.TimeoutMs) * time.Millisecond)
}

// OnItemAdded handles ItemAdded(item, owner): recomputes the affected
// subgraph from owner, inserts newly discovered canonical loops into the
// store, and fires loop_discovered for each.
func (e *Engine) OnItemAdded(ctx context.Context, tenant models.TenantID, snap *models.Snapshot, item models.ItemID) ([]models.TradeLoop, error) {
	rec, ok := snap.Items[item]
	if !ok {
		return nil, fmt.Errorf("engine: item %s not found in snapshot", item)
	}
	return e.runDelta(ctx, tenant, snap, []models.WalletID{rec.Owner}, models.TriggerItemAdded)
}

// OnWantAdded handles WantAdded(wallet, item).
func (e *Engine) OnWantAdded(ctx context.Context, tenant models.TenantID, snap *models.Snapshot, wallet models.WalletID) ([]models.TradeLoop, error) {
	return e.runDelta(ctx, tenant, snap, []models.WalletID{wallet}, models.TriggerWantAdded)
}

func (e *Engine) runDelta(ctx context.Context, tenant models.TenantID, snap *models.Snapshot, seeds []models.WalletID, trigger models.EventTrigger) ([]models.TradeLoop, error) {
	lock := e.tenantDeltaLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	result := delta.Recompute(ctx, snap, seeds, e.tenantDedup(tenant), delta.Config{
		MaxDepth:           e.cfg.MaxDepth,
		MaxBundleSize:      e.cfg.MaxBundleSize,
		CyclesCap:          e.cfg.CyclesCap,
		DenseDensityThresh: e.cfg.DenseDensityThresh,
		DenseAvgOutDegree:  e.cfg.DenseAvgOutDegree,
		Deadline:           e.deltaDeadline(),
		ScorerConfig:       scorer.Config{MinEfficiency: e.cfg.MinEfficiency},
	})

	var inserted []models.TradeLoop
	for _, loop := range result.NewLoops {
		if !e.store.Insert(tenant, loop) {
			continue // duplicate id already present, silently skipped
		}
		inserted = append(inserted, loop)
		e.notify.FireDiscovered(models.LoopDiscoveredEvent{Tenant: tenant, Trigger: trigger, Loop: loop})
	}
	e.recordDiscoveryStats(tenant, models.DiscoveryStats{
		CyclesFound:            result.CyclesFound,
		PermutationsEliminated: result.PermutationsEliminated,
		TimedOut:               result.TimedOut,
		PartitionsProcessed:    1,
	}, len(inserted))
	return inserted, nil
}

// OnItemRemoved handles ItemRemoved(item): invalidates every stored loop
// referencing it and fires loop_invalidated for each.
func (e *Engine) OnItemRemoved(tenant models.TenantID, item models.ItemID) {
	lock := e.tenantDeltaLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	ids := e.store.InvalidateReferencing(tenant, item, string(models.TriggerItemRemove))
	for _, id := range ids {
		e.notify.FireInvalidated(models.LoopInvalidatedEvent{Tenant: tenant, LoopID: id, Reason: string(models.TriggerItemRemove)})
	}
	e.recordInvalidations(tenant, len(ids))
	log.Printf("[Engine] item_removed(%s): invalidated %d loops for tenant %s", item, len(ids), tenant)
}

// OnWantRemoved handles WantRemoved(wallet, item): only loops in which
// wallet actually receives item depend on that want, so invalidation is
// restricted to those. Loops delivering item to some other wallet stay
// valid.
func (e *Engine) OnWantRemoved(tenant models.TenantID, wallet models.WalletID, item models.ItemID) {
	lock := e.tenantDeltaLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	invalidated := 0
	for _, loop := range e.store.LoopsForWallet(tenant, wallet) {
		if !loopDelivers(loop, wallet, item) {
			continue
		}
		if e.store.Invalidate(tenant, loop.ID, string(models.TriggerWantRemove)) {
			e.notify.FireInvalidated(models.LoopInvalidatedEvent{Tenant: tenant, LoopID: loop.ID, Reason: string(models.TriggerWantRemove)})
			invalidated++
		}
	}
	e.recordInvalidations(tenant, invalidated)
	log.Printf("[Engine] want_removed(%s, %s): invalidated %d loops for tenant %s", wallet, item, invalidated, tenant)
}

// loopDelivers reports whether loop contains a step handing item to wallet.
func loopDelivers(loop models.TradeLoop, wallet models.WalletID, item models.ItemID) bool {
	for _, step := range loop.Steps {
		if step.To != wallet {
			continue
		}
		for _, it := range step.Items {
			if it == item {
				return true
			}
		}
	}
	return false
}

// LoopsForWallet reads from the store; sorted by quality desc.
func (e *Engine) LoopsForWallet(tenant models.TenantID, wallet models.WalletID) []models.TradeLoop {
	return e.store.LoopsForWallet(tenant, wallet)
}

// ActiveLoopCount reads from the store.
func (e *Engine) ActiveLoopCount(tenant models.TenantID) int {
	return e.store.ActiveCount(tenant)
}
