// Package canon computes the rotation- and reversal-invariant canonical key
// of a trade-loop cycle. Two cycles that are the same ring of wallets,
// entered at different start points or walked in either direction, collapse
// to the same key.
package canon

import (
	"encoding/binary"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Key is a canonical fingerprint: a fixed-size, comparable digest (Hash)
// plus the canonical wallet ordering it was computed from (kept around so
// callers can still read back participants without a second pass). Key
// itself holds a slice and is not comparable; compare or map on Hash.
type Key struct {
	Hash         chainhash.Hash
	Participants []models.WalletID
}

// String returns the digest as a hex string, suitable as a map key or log
// field.
func (k Key) String() string { return k.Hash.String() }

// Of computes the canonical key of an open cycle [w0, ..., wk-1].
//
// Algorithm:
//  1. compute all k rotations; R = lexicographically smallest
//  2. R' = lexicographically smallest rotation of the reversed cycle
//  3. canonical key = min(R, R') under element-wise lexicographic order
//
// The O(k^2) rotation scan is fine here: k <= max_depth, which defaults
// to 10.
func Of(cycle []models.WalletID) Key {
	r := smallestRotation(cycle)
	rPrime := smallestRotation(reversed(cycle))
	best := r
	if less(rPrime, r) {
		best = rPrime
	}
	return Key{Hash: hashSequence(best), Participants: best}
}

func smallestRotation(cycle []models.WalletID) []models.WalletID {
	n := len(cycle)
	if n == 0 {
		return nil
	}
	best := rotate(cycle, 0)
	for i := 1; i < n; i++ {
		candidate := rotate(cycle, i)
		if less(candidate, best) {
			best = candidate
		}
	}
	return best
}

func rotate(cycle []models.WalletID, start int) []models.WalletID {
	n := len(cycle)
	out := make([]models.WalletID, n)
	for i := 0; i < n; i++ {
		out[i] = cycle[(start+i)%n]
	}
	return out
}

func reversed(s []models.WalletID) []models.WalletID {
	n := len(s)
	out := make([]models.WalletID, n)
	for i := 0; i < n; i++ {
		out[i] = s[n-1-i]
	}
	return out
}

// less compares two equal-length wallet sequences element-wise
// lexicographically.
func less(a, b []models.WalletID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// hashSequence digests a canonical wallet sequence with a single
// double-SHA256 pass (chainhash.HashH). Each element is length-prefixed so
// no concatenation of distinct wallet ids can collide with a different
// split of the same bytes.
func hashSequence(seq []models.WalletID) chainhash.Hash {
	var buf []byte
	for _, id := range seq {
		var lenBytes [4]byte
		binary.BigEndian.PutUint32(lenBytes[:], uint32(len(id)))
		buf = append(buf, lenBytes[:]...)
		buf = append(buf, []byte(id)...)
	}
	return chainhash.HashH(buf)
}

// OfLoopID computes the loop id: a stable digest over the sorted
// participant set and the sorted chosen items, so two loops with identical
// participants but different chosen items get different ids.
func OfLoopID(participants []models.WalletID, items []models.ItemID) string {
	sortedParticipants := append([]models.WalletID(nil), participants...)
	sort.Slice(sortedParticipants, func(i, j int) bool { return sortedParticipants[i] < sortedParticipants[j] })
	sortedItems := append([]models.ItemID(nil), items...)
	sort.Slice(sortedItems, func(i, j int) bool { return sortedItems[i] < sortedItems[j] })

	var buf []byte
	for _, p := range sortedParticipants {
		buf = append(buf, []byte(p)...)
		buf = append(buf, '|')
	}
	buf = append(buf, '#')
	for _, it := range sortedItems {
		buf = append(buf, []byte(it)...)
		buf = append(buf, '|')
	}
	h := chainhash.HashH(buf)
	return h.String()
}
