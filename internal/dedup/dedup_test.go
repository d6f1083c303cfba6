package dedup

import "testing"

func TestDeduplicator_FirstInsertWins(t *testing.T) {
	d := New(1000, 0.01)

	if !d.Insert("k1") {
		t.Fatalf("expected first insert of k1 to report new")
	}
	if d.Insert("k1") {
		t.Fatalf("expected second insert of k1 to report duplicate")
	}
	if !d.Insert("k2") {
		t.Fatalf("expected first insert of distinct key to report new")
	}
	if d.Len() != 2 {
		t.Fatalf("expected 2 distinct keys tracked, got %d", d.Len())
	}
}

func TestDeduplicator_BloomNeverCausesFalseDrop(t *testing.T) {
	d := New(8, 0.5) // tiny, deliberately high false-positive rate
	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	seen := map[string]bool{}
	for _, k := range keys {
		if d.Insert(k) {
			seen[k] = true
		}
	}
	if len(seen) != len(keys) {
		t.Fatalf("exact tier must admit every distinct key regardless of bloom collisions, got %d/%d", len(seen), len(keys))
	}
}

func TestDeduplicator_DisabledBloomStillExact(t *testing.T) {
	d := New(0, 0)
	if !d.MightBeNew("anything") {
		t.Fatalf("disabled bloom tier should always defer to exact check")
	}
	d.Insert("x")
	if d.Insert("x") {
		t.Fatalf("exact tier alone must still catch duplicates")
	}
}
