package notify

import (
	"testing"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func TestRegistry_FireDiscoveredReachesAllObservers(t *testing.T) {
	r := NewRegistry()
	var gotA, gotB bool
	r.Register(ObserverFuncs{Discovered: func(models.LoopDiscoveredEvent) { gotA = true }})
	r.Register(ObserverFuncs{Discovered: func(models.LoopDiscoveredEvent) { gotB = true }})

	r.FireDiscovered(models.LoopDiscoveredEvent{Loop: models.TradeLoop{ID: "loop-1"}})

	if !gotA || !gotB {
		t.Fatalf("expected both observers to receive the event, got a=%v b=%v", gotA, gotB)
	}
}

func TestRegistry_FireInvalidatedOnlyCallsInvalidatedHook(t *testing.T) {
	r := NewRegistry()
	var discoveredCalled, invalidatedCalled bool
	r.Register(ObserverFuncs{
		Discovered:  func(models.LoopDiscoveredEvent) { discoveredCalled = true },
		Invalidated: func(models.LoopInvalidatedEvent) { invalidatedCalled = true },
	})

	r.FireInvalidated(models.LoopInvalidatedEvent{LoopID: "loop-1", Reason: "item_removed"})

	if discoveredCalled {
		t.Errorf("expected discovered hook to stay untouched")
	}
	if !invalidatedCalled {
		t.Fatalf("expected invalidated hook to fire")
	}
}
