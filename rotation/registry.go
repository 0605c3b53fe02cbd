package rotation

import (
	crgerrors "github.com/nexus-shell/crag/internal/errors"
)

// FeatureRegistry is the static, versioned catalog of features. It is
// seeded once at init and is immutable thereafter for the process lifetime
// (spec §3: "append-only within a process lifetime").
type FeatureRegistry struct {
	version      int
	byID         map[FeatureID]FeatureRequirement
	byScope      map[Scope][]FeatureID
	tierMinScore map[Tier]int
}

// NewFeatureRegistry builds a registry from an ordered requirement list.
// Declaration order is preserved per scope, because UI layout relies on it
// (spec §3 FeatureSet). Each tier's hardware-score floor is derived from the
// declared requirements themselves (spec §4.2/E1: a dev-tier feature with
// min_hardware_score=50 caps the dev tier at 50), not from an illustrative
// static table; SetTierMinScore may still override a derived floor
// afterward for deployment-specific tuning.
func NewFeatureRegistry(version int, requirements []FeatureRequirement) *FeatureRegistry {
	r := &FeatureRegistry{
		version:      version,
		byID:         make(map[FeatureID]FeatureRequirement, len(requirements)),
		byScope:      make(map[Scope][]FeatureID),
		tierMinScore: make(map[Tier]int),
	}
	for _, req := range requirements {
		r.byID[req.ID] = req
		r.byScope[req.Scope] = append(r.byScope[req.Scope], req.ID)
		if req.MinHardwareScore != nil && *req.MinHardwareScore > r.tierMinScore[req.RequiredTier] {
			r.tierMinScore[req.RequiredTier] = *req.MinHardwareScore
		}
	}
	// A tier's floor can never be lower than a lower tier's floor: the
	// hardware requirement to retain a tier only grows as tier rises.
	running := 0
	for t := TierFree; t <= TierEnterprise; t++ {
		if r.tierMinScore[t] > running {
			running = r.tierMinScore[t]
		}
		r.tierMinScore[t] = running
	}
	return r
}

// Version reports the registry version identifier (exported in ExportCodec
// records, never the contents — spec §4.13).
func (r *FeatureRegistry) Version() int { return r.version }

// Requirements looks up a feature's requirement, O(1) array/map indexing.
// Unknown IDs return a distinguished error, never a zero-value default.
func (r *FeatureRegistry) Requirements(id FeatureID) (FeatureRequirement, error) {
	req, ok := r.byID[id]
	if !ok {
		return FeatureRequirement{}, crgerrors.UnknownFeature(string(id))
	}
	return req, nil
}

// ScopeOf returns the scope a feature belongs to.
func (r *FeatureRegistry) ScopeOf(id FeatureID) (Scope, error) {
	req, err := r.Requirements(id)
	if err != nil {
		return "", err
	}
	return req.Scope, nil
}

// AllIn returns every feature ID declared in scope, in registry order.
func (r *FeatureRegistry) AllIn(scope Scope) []FeatureID {
	ids := r.byScope[scope]
	out := make([]FeatureID, len(ids))
	copy(out, ids)
	return out
}

// Scopes returns every scope that has at least one declared feature, in the
// canonical scope order.
func (r *FeatureRegistry) Scopes() []Scope {
	var out []Scope
	for _, s := range scopeOrder {
		if len(r.byScope[s]) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// TierMinScore returns the hardware-score floor required to retain tier.
func (r *FeatureRegistry) TierMinScore(tier Tier) int {
	return r.tierMinScore[tier]
}

// SetTierMinScore overrides the hardware-score floor for a tier. Intended
// for test fixtures and deployment-specific tuning at startup, before the
// registry is handed to RotationState.
func (r *FeatureRegistry) SetTierMinScore(tier Tier, minScore int) {
	r.tierMinScore[tier] = minScore
}

// DefaultFeatureRegistry seeds the illustrative catalog from spec §6.7.
func DefaultFeatureRegistry() *FeatureRegistry {
	score50 := 50
	return NewFeatureRegistry(1, []FeatureRequirement{
		{ID: "chat.basic", Scope: ScopeChat, RequiredTier: TierFree},
		{ID: "chat.mcp", Scope: ScopeChat, RequiredTier: TierPro, RequiresBridge: true},
		{ID: "feed.ipfs", Scope: ScopeFeed, RequiredTier: TierBasic, RequiresBridge: true},
		{ID: "feed.alexandria", Scope: ScopeFeed, RequiredTier: TierBasic, RequiresBridge: true},
		{ID: "feed.kaggle", Scope: ScopeFeed, RequiredTier: TierBasic, RequiredCredentials: []CredentialName{"KAGGLE_KEY"}},
		{ID: "build.goo-field", Scope: ScopeBuild, RequiredTier: TierDev, MinHardwareScore: &score50, RequiresBridge: true},
		{ID: "doc.ged", Scope: ScopeDoc, RequiredTier: TierBasic, RequiresBridge: true},
		{ID: "doc.search", Scope: ScopeDoc, RequiredTier: TierBasic, RequiresBridge: true},
		{ID: "doc.three-chain", Scope: ScopeDoc, RequiredTier: TierPro, RequiresBridge: true},
		{ID: "domain.register", Scope: ScopeDomain, RequiredTier: TierBasic, RequiredCredentials: []CredentialName{"PORKBUN_KEY"}},
		{ID: "ai.huggingface", Scope: ScopeAI, RequiredTier: TierFree, RequiredCredentials: []CredentialName{"HF_TOKEN"}, Optional: true},
		{ID: "system.export", Scope: ScopeSystem, RequiredTier: TierFree},
	})
}
