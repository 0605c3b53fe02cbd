package rotation

import (
	"testing"
	"time"
)

func scenarioRegistry() *FeatureRegistry {
	score50 := 50
	return NewFeatureRegistry(1, []FeatureRequirement{
		{ID: "chat.basic", Scope: ScopeChat, RequiredTier: TierFree},
		{ID: "chat.mcp", Scope: ScopeChat, RequiredTier: TierPro, RequiresBridge: true},
		{ID: "build.goo-field", Scope: ScopeBuild, RequiredTier: TierDev, MinHardwareScore: &score50, RequiresBridge: true},
	})
}

func tierPtr(t Tier) *Tier { return &t }
func scorePtr(s HardwareScore) *HardwareScore { return &s }
func boolPtr(b bool) *bool { return &b }

// TestRotationState_E1_TierRotationDelta mirrors spec scenario E1.
func TestRotationState_E1_TierRotationDelta(t *testing.T) {
	reg := scenarioRegistry()
	gate := NewTierGate(reg, nil)
	disp := NewDispatcher(nil)

	var events []Event
	disp.Subscribe(func(e Event) { events = append(events, e) })

	rs := NewRotationState(gate, disp, Snapshot{Tier: TierPro, HardwareScore: 30, BridgeOnline: true}, 2*time.Second)

	rs.Update(PartialUpdate{Tier: tierPtr(TierDev)})
	if _, eff := rs.State(); eff != TierPro {
		t.Fatalf("expected effective tier capped at pro, got %s", eff)
	}
	if len(events) != 0 {
		t.Fatalf("expected no delta from the first update, got %d events", len(events))
	}

	rs.Update(PartialUpdate{HardwareScore: scorePtr(60)})
	if _, eff := rs.State(); eff != TierDev {
		t.Fatalf("expected effective tier to reach dev, got %s", eff)
	}

	if len(events) != 2 {
		t.Fatalf("expected tier_change followed by rotate, got %d events", len(events))
	}
	if events[0].Kind != EventTierChange {
		t.Fatalf("expected first event to be tier_change, got %s", events[0].Kind)
	}
	if events[1].Kind != EventRotate {
		t.Fatalf("expected second event to be rotate, got %s", events[1].Kind)
	}
	if len(events[1].Delta.Added) != 1 || events[1].Delta.Added[0] != "build.goo-field" {
		t.Fatalf("expected added=[build.goo-field], got %+v", events[1].Delta)
	}
}

// TestRotationState_E2_BridgeDebounceSuppressesShortFlip mirrors spec
// scenario E2's first case: a flip shorter than stable_ms produces no delta.
func TestRotationState_E2_BridgeDebounceSuppressesShortFlip(t *testing.T) {
	reg := scenarioRegistry()
	gate := NewTierGate(reg, nil)
	disp := NewDispatcher(nil)

	var events []Event
	disp.Subscribe(func(e Event) { events = append(events, e) })

	rs := NewRotationState(gate, disp, Snapshot{Tier: TierPro, HardwareScore: 100, BridgeOnline: true}, 80*time.Millisecond)

	rs.Update(PartialUpdate{Bridge: boolPtr(false)})
	time.Sleep(30 * time.Millisecond)
	rs.Update(PartialUpdate{Bridge: boolPtr(true)})
	time.Sleep(120 * time.Millisecond)

	if len(events) != 0 {
		t.Fatalf("expected no delta from a sub-threshold bridge flip, got %d events", len(events))
	}
}

// TestRotationState_E2_BridgeDebounceCommitsAfterStableWindow mirrors spec
// scenario E2's second case: a flip held past stable_ms produces a delta.
func TestRotationState_E2_BridgeDebounceCommitsAfterStableWindow(t *testing.T) {
	reg := scenarioRegistry()
	gate := NewTierGate(reg, nil)
	disp := NewDispatcher(nil)

	var events []Event
	disp.Subscribe(func(e Event) { events = append(events, e) })

	rs := NewRotationState(gate, disp, Snapshot{Tier: TierPro, HardwareScore: 100, BridgeOnline: true}, 50*time.Millisecond)

	rs.Update(PartialUpdate{Bridge: boolPtr(false)})
	time.Sleep(150 * time.Millisecond)

	if len(events) == 0 {
		t.Fatalf("expected a delta once the bridge stayed offline past stable_ms")
	}
	last := events[len(events)-1]
	if last.Kind != EventRotate {
		t.Fatalf("expected a rotate event, got %s", last.Kind)
	}
	if len(last.Delta.Removed) != 1 || last.Delta.Removed[0] != "chat.mcp" {
		t.Fatalf("expected removed=[chat.mcp], got %+v", last.Delta)
	}
}
