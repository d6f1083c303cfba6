// Package dedup implements the two-tier deduplicator: an exact
// canonical-key set for correctness, and an optional Bloom-style
// probabilistic pre-check that lets callers skip expensive loop
// materialization before the exact check, without ever dropping a cycle on
// a probabilistic answer alone.
package dedup

import "sync"

// Deduplicator tracks canonical keys seen so far within one scope (an SCC,
// a partition, or a whole tenant's cross-call dedup set, depending on what
// the caller constructs it for).
type Deduplicator struct {
	mu    sync.Mutex
	exact map[string]struct{}
	bloom *Bloom
}

// New constructs a Deduplicator. If bloomCapacity is 0 the probabilistic
// tier is disabled and every check goes straight to the exact set.
func New(bloomCapacity uint64, bloomFPRate float64) *Deduplicator {
	d := &Deduplicator{exact: make(map[string]struct{})}
	if bloomCapacity > 0 {
		d.bloom = NewBloom(bloomCapacity, bloomFPRate)
	}
	return d
}

// MightBeNew is the cheap pre-check tier: a true return means
// the key is certainly new (the bloom filter has no false negatives, so
// "definitely absent" is a hard guarantee); a false return is inconclusive
// — the key is probably already present, but a confirmed positive requires
// going through Insert against the exact tier.
func (d *Deduplicator) MightBeNew(key string) bool {
	if d.bloom == nil {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.bloom.MightContain(key)
}

// Insert records key as seen and returns true iff this is the first time it
// has been seen (i.e. it should be emitted). This is the sole authority —
// a Bloom false positive is silently corrected here, never surfaced.
func (d *Deduplicator) Insert(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.exact[key]; seen {
		return false
	}
	d.exact[key] = struct{}{}
	if d.bloom != nil {
		d.bloom.Add(key)
	}
	return true
}

// Len returns the number of distinct keys recorded so far.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.exact)
}
