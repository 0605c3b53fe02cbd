package rotation

import (
	"sync"
	"time"
)

// PartialUpdate carries the subset of (tier, hardware_score, bridge) an
// update() call wants to change. A nil field leaves that axis untouched.
type PartialUpdate struct {
	Tier          *Tier
	HardwareScore *HardwareScore
	Bridge        *bool
}

// RotationState is the single owner of the (tier, hardware_score, bridge)
// triple. update() is its only mutator (spec §4.3).
type RotationState struct {
	mu sync.Mutex

	gate       *TierGate
	dispatcher *Dispatcher
	bridgeStableFor time.Duration

	tier          Tier
	hardwareScore HardwareScore
	bridgeOnline  bool

	lastEffectiveTier Tier
	lastFeatureSet    FeatureSet

	pendingOfflineSince time.Time
	pendingTimer        *time.Timer
}

// NewRotationState constructs a RotationState seeded with an initial
// snapshot. bridgeStableFor is the hysteresis window of spec §4.3 / §6.8's
// bridge.stable_ms (default 2s).
func NewRotationState(gate *TierGate, dispatcher *Dispatcher, initial Snapshot, bridgeStableFor time.Duration) *RotationState {
	if bridgeStableFor <= 0 {
		bridgeStableFor = 2 * time.Second
	}
	s := &RotationState{
		gate:            gate,
		dispatcher:      dispatcher,
		bridgeStableFor: bridgeStableFor,
		tier:            initial.Tier,
		hardwareScore:   initial.HardwareScore,
		bridgeOnline:    initial.BridgeOnline,
	}
	s.lastEffectiveTier = gate.EffectiveTier(s.snapshotLocked())
	s.lastFeatureSet = gate.AvailableAll(s.snapshotLocked())
	return s
}

func (s *RotationState) snapshotLocked() Snapshot {
	return Snapshot{Tier: s.tier, HardwareScore: s.hardwareScore, BridgeOnline: s.bridgeOnline}
}

// State returns the current externally-visible state (spec §6.1 state()).
func (s *RotationState) State() (snap Snapshot, effectiveTier Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), s.lastEffectiveTier
}

// Update applies a partial mutation and republishes the feature set delta.
// Bridge online→offline transitions are debounced: the offline value does
// not take effect, and no delta is computed, until bridgeStableFor has
// elapsed with the bridge still reporting offline (spec §4.3, testable
// property #3). offline→online takes effect immediately (fail closed,
// recover open).
func (s *RotationState) Update(partial PartialUpdate) {
	s.mu.Lock()

	if partial.Tier != nil {
		s.tier = *partial.Tier
	}
	if partial.HardwareScore != nil {
		s.hardwareScore = *partial.HardwareScore
	}

	if partial.Bridge != nil {
		s.applyBridgeLocked(*partial.Bridge)
	}

	s.reconcileLocked()
	s.mu.Unlock()
}

// applyBridgeLocked handles the bridge-specific hysteresis. Must be called
// with s.mu held.
func (s *RotationState) applyBridgeLocked(online bool) {
	if online {
		// offline -> online recovers immediately; cancel any pending
		// debounce timer for the offline transition.
		if s.pendingTimer != nil {
			s.pendingTimer.Stop()
			s.pendingTimer = nil
		}
		s.bridgeOnline = true
		return
	}

	if !s.bridgeOnline {
		// Already offline (or the debounce is already pending); nothing new.
		return
	}

	// online -> offline: start (or restart) the debounce window. The
	// bridgeOnline field itself does not flip until the timer fires and
	// finds the bridge still offline.
	if s.pendingTimer != nil {
		s.pendingTimer.Stop()
	}
	s.pendingTimer = time.AfterFunc(s.bridgeStableFor, s.onBridgeDebounceElapsed)
}

// onBridgeDebounceElapsed fires bridgeStableFor after an online->offline
// request; if nothing reversed it in the meantime, it commits the offline
// transition and republishes.
func (s *RotationState) onBridgeDebounceElapsed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingTimer == nil {
		// Already cancelled by a subsequent online update.
		return
	}
	s.pendingTimer = nil
	s.bridgeOnline = false
	s.reconcileLocked()
}

// reconcileLocked recomputes the feature set and effective tier, diffs
// against the last published snapshot, and publishes tier_change/rotate
// events as needed. Must be called with s.mu held.
func (s *RotationState) reconcileLocked() {
	snap := s.snapshotLocked()
	newEffectiveTier := s.gate.EffectiveTier(snap)
	newFeatureSet := s.gate.AvailableAll(snap)

	delta := diffFeatureSets(s.lastFeatureSet, newFeatureSet)
	tierChanged := newEffectiveTier != s.lastEffectiveTier

	s.lastEffectiveTier = newEffectiveTier
	s.lastFeatureSet = newFeatureSet

	if tierChanged {
		s.dispatcher.Publish(Event{Kind: EventTierChange, State: snap})
	}
	if !delta.Empty() {
		s.dispatcher.Publish(Event{Kind: EventRotate, Delta: delta, State: snap})
	}
}

// CheckFeature evaluates a single feature under the current state.
func (s *RotationState) CheckFeature(id FeatureID) Decision {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return s.gate.Check(snap, id)
}

// Features returns the current feature set. If scope is non-empty, only
// that scope's list is populated.
func (s *RotationState) Features(scope Scope) FeatureSet {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if scope == "" {
		return s.gate.AvailableAll(snap)
	}
	return FeatureSet{scope: s.gate.Available(snap, scope)}
}

// Subscribe registers fn against the underlying dispatcher.
func (s *RotationState) Subscribe(fn Subscriber) Unsubscribe {
	return s.dispatcher.Subscribe(fn)
}
