package dedup

import (
	"hash/maphash"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// Bloom is a Kirsch-Mitzenmacher double-hashing Bloom filter backed by a
// bits-and-blooms/bitset bit array. It is a cheap, never-authoritative
// pre-check: a negative answer is certain, a positive answer must be
// rechecked against an exact set before anything is dropped.
type Bloom struct {
	bits *bitset.BitSet
	m    uint64
	k    uint64
	seed maphash.Seed
}

// NewBloom sizes a filter for expected capacity n at false-positive rate
// fp: m = ceil(-n*ln(fp) / ln(2)^2), k = max(1, round((m/n) * ln(2))).
func NewBloom(n uint64, fp float64) *Bloom {
	if n == 0 {
		n = 1
	}
	if fp <= 0 || fp >= 1 {
		fp = 0.01
	}
	m := uint64(math.Ceil(-float64(n) * math.Log(fp) / (math.Ln2 * math.Ln2)))
	if m == 0 {
		m = 1
	}
	k := uint64(math.Round((float64(m) / float64(n)) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return &Bloom{
		bits: bitset.New(uint(m)),
		m:    m,
		k:    k,
		seed: maphash.MakeSeed(),
	}
}

// hashes derives k independent-enough bit positions from two base hashes via
// double hashing: h_i(x) = h1(x) + i*h2(x) mod m.
func (b *Bloom) hashes(key string) (uint64, uint64) {
	var h maphash.Hash
	h.SetSeed(b.seed)
	h.WriteString(key)
	h1 := h.Sum64()

	h.Reset()
	h.WriteString(key)
	h.WriteByte(0xFF)
	h2 := h.Sum64()
	if h2%b.m == 0 {
		h2++
	}
	return h1, h2
}

// Add inserts key into the filter.
func (b *Bloom) Add(key string) {
	h1, h2 := b.hashes(key)
	for i := uint64(0); i < b.k; i++ {
		pos := (h1 + i*h2) % b.m
		b.bits.Set(uint(pos))
	}
}

// MightContain returns false only when key is certainly absent. A true
// result may be a false positive and must be rechecked exactly.
func (b *Bloom) MightContain(key string) bool {
	h1, h2 := b.hashes(key)
	for i := uint64(0); i < b.k; i++ {
		pos := (h1 + i*h2) % b.m
		if !b.bits.Test(uint(pos)) {
			return false
		}
	}
	return true
}
