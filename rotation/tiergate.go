package rotation

// CredentialChecker reports whether a named credential is currently sealed
// in the vault. TierGate never touches the vault directly; it is injected
// this single predicate so the gate stays a pure function of state +
// registry + credential presence (spec §4.2).
type CredentialChecker func(name CredentialName) bool

// Snapshot is the immutable view of RotationState a TierGate computation
// runs against.
type Snapshot struct {
	Tier            Tier
	HardwareScore   HardwareScore
	BridgeOnline    bool
}

// TierGate is a pure, referentially transparent function from a state
// snapshot and a FeatureRegistry to per-scope permitted features.
type TierGate struct {
	registry   *FeatureRegistry
	hasCredential CredentialChecker
}

// NewTierGate builds a TierGate over registry, consulting hasCredential for
// credential-gated features.
func NewTierGate(registry *FeatureRegistry, hasCredential CredentialChecker) *TierGate {
	if hasCredential == nil {
		hasCredential = func(CredentialName) bool { return false }
	}
	return &TierGate{registry: registry, hasCredential: hasCredential}
}

// EffectiveTier applies the forced-downgrade rules of spec §4.2 and returns
// the tier actually in effect, which is always <= snap.Tier (testable
// property #4).
func (g *TierGate) EffectiveTier(snap Snapshot) Tier {
	tier := snap.Tier

	if cap := g.bridgeCap(snap); cap < tier {
		tier = cap
	}
	if cap := g.hardwareCap(snap); cap < tier {
		tier = cap
	}
	return tier
}

// bridgeCap finds the highest tier reachable without any bridge-critical
// feature blocking it, when the bridge is offline. A tier is bridge-critical
// if at least one feature declared at that tier requires the bridge; once
// bridge is down, no tier at or above the lowest bridge-critical tier is
// reachable on this axis.
func (g *TierGate) bridgeCap(snap Snapshot) Tier {
	if snap.BridgeOnline {
		return TierEnterprise
	}
	for t := TierFree; t <= TierEnterprise; t++ {
		if g.tierIsBridgeCritical(t) {
			if t == TierFree {
				return TierFree
			}
			return t - 1
		}
	}
	return TierEnterprise
}

func (g *TierGate) tierIsBridgeCritical(t Tier) bool {
	for _, req := range g.registry.byID {
		if req.RequiredTier == t && req.RequiresBridge {
			return true
		}
	}
	return false
}

// hardwareCap finds the highest tier whose hardware-score floor the
// reported score satisfies.
func (g *TierGate) hardwareCap(snap Snapshot) Tier {
	best := TierFree
	for t := TierFree; t <= TierEnterprise; t++ {
		if int(snap.HardwareScore) >= g.registry.TierMinScore(t) {
			best = t
		}
	}
	return best
}

// Check evaluates whether a single feature is admitted under snap.
func (g *TierGate) Check(snap Snapshot, id FeatureID) Decision {
	req, err := g.registry.Requirements(id)
	if err != nil {
		return deny(DenyUnknownFeature)
	}

	var reasons []DenyKind
	effTier := g.EffectiveTier(snap)

	if effTier < req.RequiredTier {
		reasons = append(reasons, DenyTierBelow)
	}
	if req.MinHardwareScore != nil && int(snap.HardwareScore) < *req.MinHardwareScore {
		reasons = append(reasons, DenyHardwareBelow)
	}
	if req.RequiresBridge && !snap.BridgeOnline {
		reasons = append(reasons, DenyBridgeRequired)
	}
	for _, cred := range req.RequiredCredentials {
		if !g.hasCredential(cred) {
			reasons = append(reasons, DenyCredentialMissing)
			break
		}
	}

	if len(reasons) == 0 {
		return admit()
	}
	return deny(firstByPriority(reasons))
}

func firstByPriority(reasons []DenyKind) DenyKind {
	present := make(map[DenyKind]bool, len(reasons))
	for _, r := range reasons {
		present[r] = true
	}
	for _, k := range denyPriority {
		if present[k] {
			return k
		}
	}
	return reasons[0]
}

// Available returns the per-scope visible feature list, in registry order.
// Every denied feature is silently absent here regardless of the reason;
// only an explicit Check call on that specific feature surfaces a
// CredentialMissing deny, which is what lets a caller distinguish "hidden"
// from "asked for and refused" (spec §4.2).
func (g *TierGate) Available(snap Snapshot, scope Scope) []FeatureID {
	var out []FeatureID
	for _, id := range g.registry.AllIn(scope) {
		if g.Check(snap, id).Admit {
			out = append(out, id)
		}
	}
	return out
}

// AvailableAll returns the full per-scope feature set across every declared scope.
func (g *TierGate) AvailableAll(snap Snapshot) FeatureSet {
	out := make(FeatureSet)
	for _, scope := range g.registry.Scopes() {
		out[scope] = g.Available(snap, scope)
	}
	return out
}
