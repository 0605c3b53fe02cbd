// Package rotation implements the reactive tier/feature-gating state
// machine: RotationState, TierGate, FeatureRegistry, and RotationDispatcher.
package rotation

import "sort"

// Tier is the ordered subscription level controlling feature admission.
type Tier int

const (
	TierFree Tier = iota
	TierBasic
	TierPro
	TierDev
	TierEnterprise
)

var tierNames = map[Tier]string{
	TierFree:       "free",
	TierBasic:      "basic",
	TierPro:        "pro",
	TierDev:        "dev",
	TierEnterprise: "enterprise",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseTier parses a tier name back into a Tier, defaulting to TierFree on
// an unrecognized name.
func ParseTier(name string) Tier {
	for t, n := range tierNames {
		if n == name {
			return t
		}
	}
	return TierFree
}

// HardwareScore is the coarse numeric capability summary of the device
// (CPU+RAM+GPU), always non-negative.
type HardwareScore int

// Scope groups features by area of the product.
type Scope string

const (
	ScopeChat   Scope = "chat"
	ScopeFeed   Scope = "feed"
	ScopeBuild  Scope = "build"
	ScopeDoc    Scope = "doc"
	ScopeDomain Scope = "domain"
	ScopeAI     Scope = "ai"
	ScopeSystem Scope = "system"
)

// scopeOrder is the deterministic scope ordering used when concatenating
// deltas across scopes (spec §4.3).
var scopeOrder = []Scope{ScopeChat, ScopeFeed, ScopeBuild, ScopeDoc, ScopeDomain, ScopeAI, ScopeSystem}

// FeatureID identifies a feature as "scope.name".
type FeatureID string

// CredentialName identifies a named credential in the vault.
type CredentialName string

// FeatureRequirement captures the admission requirements for one feature.
type FeatureRequirement struct {
	ID                 FeatureID
	Scope              Scope
	RequiredTier       Tier
	MinHardwareScore   *int
	RequiresBridge     bool
	RequiredCredentials []CredentialName
	Optional           bool
}

// DenyKind enumerates why TierGate.Check denied a feature.
type DenyKind string

const (
	DenyUnknownFeature    DenyKind = "UnknownFeature"
	DenyTierBelow         DenyKind = "TierBelow"
	DenyHardwareBelow     DenyKind = "HardwareBelow"
	DenyBridgeRequired    DenyKind = "BridgeRequired"
	DenyCredentialMissing DenyKind = "CredentialMissing"
)

// denyPriority fixes the enum order spec §4.2 requires when more than one
// deny reason applies: the first-listed reason (lowest index) wins.
var denyPriority = []DenyKind{DenyTierBelow, DenyHardwareBelow, DenyBridgeRequired, DenyCredentialMissing, DenyUnknownFeature}

// Decision is the result of TierGate.Check.
type Decision struct {
	Admit bool
	Kind  DenyKind
}

func admit() Decision { return Decision{Admit: true} }
func deny(kind DenyKind) Decision { return Decision{Admit: false, Kind: kind} }

// FeatureSet maps each scope to its ordered, visible feature list.
type FeatureSet map[Scope][]FeatureID

// Clone returns a deep copy of the feature set.
func (fs FeatureSet) Clone() FeatureSet {
	out := make(FeatureSet, len(fs))
	for scope, ids := range fs {
		cp := make([]FeatureID, len(ids))
		copy(cp, ids)
		out[scope] = cp
	}
	return out
}

// RotationDelta is the (added, removed) pair published after an update.
type RotationDelta struct {
	Added   []FeatureID
	Removed []FeatureID
}

// Empty reports whether the delta carries no changes.
func (d RotationDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// diffFeatureSets computes the scope-ordered, registry-ordered delta between
// two feature set snapshots, satisfying testable property #2: added/removed
// disjoint, both deterministically ordered.
func diffFeatureSets(old, new FeatureSet) RotationDelta {
	var added, removed []FeatureID

	for _, scope := range scopeOrder {
		oldSet := toSet(old[scope])
		newSet := toSet(new[scope])

		for _, id := range old[scope] {
			if !newSet[id] {
				removed = append(removed, id)
			}
		}
		for _, id := range new[scope] {
			if !oldSet[id] {
				added = append(added, id)
			}
		}
	}

	return RotationDelta{Added: added, Removed: removed}
}

func toSet(ids []FeatureID) map[FeatureID]bool {
	out := make(map[FeatureID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// sortedCredentialNames returns a requirement's credential set as sorted
// strings, for building deterministic audit payloads. Nothing in the
// module calls it.
func sortedCredentialNames(names []CredentialName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	sort.Strings(out)
	return out
}
