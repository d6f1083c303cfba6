// Package models defines the shared data types for the trade-loop discovery
// engine: wallets, items, derived wants-edges, discovered trade loops, and
// the configuration/result envelopes the core API exchanges with callers.
package models

import "time"

// WalletID identifies a wallet. Opaque to the engine.
type WalletID string

// ItemID identifies a single non-fungible item. Opaque to the engine.
type ItemID string

// CollectionID identifies a grouping of items (e.g. an NFT collection).
type CollectionID string

// TenantID scopes a graph, loop store, and delta serialization to one
// caller. The core never inspects tenant contents; it only uses the id to
// key per-tenant state (store entries, in-flight delta locks).
type TenantID string

// RejectionSet holds a wallet's hard exclusions: items it refuses to
// receive and wallets it refuses to trade with, regardless of want.
type RejectionSet struct {
	Items   map[ItemID]struct{}
	Wallets map[WalletID]struct{}
}

// RejectsItem reports whether the wallet has rejected item i.
func (r *RejectionSet) RejectsItem(i ItemID) bool {
	if r == nil {
		return false
	}
	_, ok := r.Items[i]
	return ok
}

// RejectsWallet reports whether the wallet has rejected counterparty w.
func (r *RejectionSet) RejectsWallet(w WalletID) bool {
	if r == nil {
		return false
	}
	_, ok := r.Wallets[w]
	return ok
}

// Wallet is a participant in the wants-graph: a bundle of owned items and
// a set of desires (items, and collections of items).
type Wallet struct {
	ID                WalletID
	Owned             map[ItemID]struct{}
	WantedItems       map[ItemID]struct{}
	WantedCollections map[CollectionID]struct{}
	Rejections        *RejectionSet
}

// NewWallet returns an empty wallet ready for population.
func NewWallet(id WalletID) *Wallet {
	return &Wallet{
		ID:                id,
		Owned:             make(map[ItemID]struct{}),
		WantedItems:       make(map[ItemID]struct{}),
		WantedCollections: make(map[CollectionID]struct{}),
	}
}

// Item is a single tradeable unit with exactly one current owner.
type Item struct {
	ID         ItemID
	Owner      WalletID
	Collection CollectionID
	FloorPrice *float64
}

// WantsEdge records that Owner can give items in Items to Wanter, following
// the fixed "owner -> wanter" direction convention: the edge follows the
// direction an item would flow in a realized trade.
type WantsEdge struct {
	Owner  WalletID
	Wanter WalletID
	Items  []ItemID
}

// ActivityTier is the optional fair-scheduling category for a wallet.
// Absent activity data, the scheduler prioritizes partitions without the
// new-user term.
type ActivityTier int

const (
	ActivityUnknown ActivityTier = iota
	ActivityNew
	ActivityStandard
	ActivityPower
)

// TradeLoopStep is one leg of a trade loop: From gives the listed Items to
// To. Items is always non-empty.
type TradeLoopStep struct {
	From  WalletID `json:"from"`
	To    WalletID `json:"to"`
	Items []ItemID `json:"items"`
}

// TradeLoop is a closed, canonical cycle of steps. Every wallet in the loop
// both gives and receives exactly once.
type TradeLoop struct {
	ID             string          `json:"id"`
	Steps          []TradeLoopStep `json:"steps"`
	Participants   int             `json:"participants"`
	Efficiency     float64         `json:"efficiency"`
	Quality        float64         `json:"quality"`
	EstimatedValue float64         `json:"estimatedValue"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Wallets returns the ordered participant list [w0, w1, ..., w(k-1)].
func (l *TradeLoop) Wallets() []WalletID {
	out := make([]WalletID, len(l.Steps))
	for i, s := range l.Steps {
		out[i] = s.From
	}
	return out
}

// Items returns every item moved by the loop, in step order.
func (l *TradeLoop) Items() []ItemID {
	var out []ItemID
	for _, s := range l.Steps {
		out = append(out, s.Items...)
	}
	return out
}

// Community is a disjoint wallet subset produced by the partitioner.
// Density (internal directed edges / possible) and Diversity (unique owned
// collections / size) are prioritization signals filled in by the caller
// that holds the built graph; they are never required for correctness, and
// zero values simply contribute nothing to the scheduler's weighting.
type Community struct {
	ID      int
	Wallets []WalletID

	Density   float64
	Diversity float64
}

// SCCMetadata carries run information about one SCC-finder invocation.
type SCCMetadata struct {
	Processed int
	TimedOut  bool
	ElapsedMs int64
}

// SCCResult is the output of the SCC finder.
type SCCResult struct {
	SCCs     [][]WalletID
	Metadata SCCMetadata
}

// DiscoveryStats reports timing and volume counters for one discovery call.
type DiscoveryStats struct {
	SCCMs                  int64 `json:"sccMs"`
	CycleMs                int64 `json:"cycleMs"`
	DedupMs                int64 `json:"dedupMs"`
	CyclesFound            int   `json:"cyclesFound"`
	PermutationsEliminated int   `json:"permutationsEliminated"`
	TimedOut               bool  `json:"timedOut"`
	PartitionsProcessed    int   `json:"partitionsProcessed"`
}

// DiscoveryResult is the full-graph discovery response.
type DiscoveryResult struct {
	Loops []TradeLoop
	Stats DiscoveryStats
}

// EventTrigger names what caused a loop to be discovered or invalidated.
type EventTrigger string

const (
	TriggerItemAdded  EventTrigger = "item_added"
	TriggerItemRemove EventTrigger = "item_removed"
	TriggerWantAdded  EventTrigger = "want_added"
	TriggerWantRemove EventTrigger = "want_removed"
	TriggerFull       EventTrigger = "full"
)

// LoopDiscoveredEvent is emitted when a new canonical loop is inserted.
type LoopDiscoveredEvent struct {
	Tenant  TenantID     `json:"tenant"`
	Trigger EventTrigger `json:"trigger"`
	Loop    TradeLoop    `json:"loop"`
}

// LoopInvalidatedEvent is emitted when a stored loop is removed because an
// item or want it depended on disappeared.
type LoopInvalidatedEvent struct {
	Tenant TenantID `json:"tenant"`
	LoopID string   `json:"loopId"`
	Reason string   `json:"reason"`
}

// Config holds every tunable the engine exposes. Zero-value fields are
// replaced by WithDefaults.
type Config struct {
	MaxDepth      int
	MinEfficiency float64
	MaxResults    int

	TimeoutMs    int64
	SCCTimeoutMs int64

	CyclesCap      int
	CyclesCapDense int

	MaxCommunitySize int
	ParallelWorkers  int
	EnablePartition  *bool
	EnableBloomDedup *bool

	BloomCapacity uint64
	BloomFPRate   float64

	MaxCacheEntries    int
	CacheTTLMs         int64
	ExtendedCacheTTLMs int64
	MaxBundleSize      int
	DenseDensityThresh float64
	DenseAvgOutDegree  float64
	SCCBatchSize       int
}

// WithDefaults returns a copy of c with every unset field replaced by its
// default.
func (c Config) WithDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 10
	}
	if c.MinEfficiency <= 0 {
		c.MinEfficiency = 0.6
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 100
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 30000
	}
	if c.SCCTimeoutMs <= 0 {
		c.SCCTimeoutMs = 30000
	}
	if c.CyclesCap <= 0 {
		c.CyclesCap = 10000
	}
	if c.CyclesCapDense <= 0 {
		c.CyclesCapDense = 500
	}
	if c.MaxCommunitySize <= 0 {
		c.MaxCommunitySize = 75
	}
	if c.ParallelWorkers <= 0 {
		c.ParallelWorkers = 4
	}
	if c.EnablePartition == nil {
		t := true
		c.EnablePartition = &t
	}
	if c.EnableBloomDedup == nil {
		t := true
		c.EnableBloomDedup = &t
	}
	if c.BloomCapacity <= 0 {
		c.BloomCapacity = 100000
	}
	if c.BloomFPRate <= 0 {
		c.BloomFPRate = 0.01
	}
	if c.MaxCacheEntries <= 0 {
		c.MaxCacheEntries = 1000
	}
	if c.CacheTTLMs <= 0 {
		c.CacheTTLMs = 300000
	}
	if c.ExtendedCacheTTLMs <= 0 {
		c.ExtendedCacheTTLMs = 1800000
	}
	if c.MaxBundleSize <= 0 {
		c.MaxBundleSize = 8
	}
	if c.DenseDensityThresh <= 0 {
		c.DenseDensityThresh = 0.2
	}
	if c.DenseAvgOutDegree <= 0 {
		c.DenseAvgOutDegree = 5
	}
	if c.SCCBatchSize <= 0 {
		c.SCCBatchSize = 1000
	}
	return c
}

// Snapshot is a consistent view of wallets and item ownership the engine
// consumes for one discovery call or one delta-event evaluation. The graph
// built from it is immutable for the duration of the call that holds it.
type Snapshot struct {
	Wallets map[WalletID]*Wallet
	Items   map[ItemID]*Item
}

// NewSnapshot returns an empty, ready-to-populate snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Wallets: make(map[WalletID]*Wallet),
		Items:   make(map[ItemID]*Item),
	}
}
