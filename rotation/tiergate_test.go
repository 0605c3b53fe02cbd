package rotation

import "testing"

func registryForGate() *FeatureRegistry {
	score50 := 50
	return NewFeatureRegistry(1, []FeatureRequirement{
		{ID: "chat.basic", Scope: ScopeChat, RequiredTier: TierFree},
		{ID: "chat.mcp", Scope: ScopeChat, RequiredTier: TierPro, RequiresBridge: true},
		{ID: "build.goo-field", Scope: ScopeBuild, RequiredTier: TierDev, MinHardwareScore: &score50, RequiresBridge: true},
		{ID: "ai.huggingface", Scope: ScopeAI, RequiredTier: TierFree, RequiredCredentials: []CredentialName{"HF_TOKEN"}, Optional: true},
	})
}

func TestTierGate_CheckAdmitsWhenAllRequirementsSatisfied(t *testing.T) {
	reg := registryForGate()
	gate := NewTierGate(reg, nil)
	snap := Snapshot{Tier: TierPro, HardwareScore: 10, BridgeOnline: true}

	if d := gate.Check(snap, "chat.mcp"); !d.Admit {
		t.Fatalf("expected admit, got deny(%s)", d.Kind)
	}
}

func TestTierGate_CheckDeniesUnknownFeature(t *testing.T) {
	gate := NewTierGate(registryForGate(), nil)
	d := gate.Check(Snapshot{}, "no.such.feature")
	if d.Admit || d.Kind != DenyUnknownFeature {
		t.Fatalf("expected DenyUnknownFeature, got %+v", d)
	}
}

func TestTierGate_CredentialMissingHiddenFromAvailableButSurfacedOnCheck(t *testing.T) {
	gate := NewTierGate(registryForGate(), func(CredentialName) bool { return false })
	snap := Snapshot{Tier: TierEnterprise, HardwareScore: 100, BridgeOnline: true}

	available := gate.Available(snap, ScopeAI)
	for _, id := range available {
		if id == "ai.huggingface" {
			t.Fatalf("expected ai.huggingface to be hidden from Available")
		}
	}

	decision := gate.Check(snap, "ai.huggingface")
	if decision.Admit || decision.Kind != DenyCredentialMissing {
		t.Fatalf("expected explicit Check to surface CredentialMissing, got %+v", decision)
	}
}

func TestTierGate_EffectiveTierNeverExceedsNominal(t *testing.T) {
	gate := NewTierGate(registryForGate(), nil)
	snap := Snapshot{Tier: TierDev, HardwareScore: 30, BridgeOnline: true}

	eff := gate.EffectiveTier(snap)
	if eff > snap.Tier {
		t.Fatalf("effective tier %s exceeds nominal tier %s", eff, snap.Tier)
	}
	if eff != TierPro {
		t.Fatalf("expected hardware-score cap to pro (score 30 < dev's 50 floor), got %s", eff)
	}
}

func TestTierGate_EffectiveTierRisesWhenHardwareScoreIncreases(t *testing.T) {
	gate := NewTierGate(registryForGate(), nil)
	snap := Snapshot{Tier: TierDev, HardwareScore: 60, BridgeOnline: true}

	if eff := gate.EffectiveTier(snap); eff != TierDev {
		t.Fatalf("expected dev tier once hardware score clears the floor, got %s", eff)
	}
}

func TestTierGate_BridgeOfflineCapsBridgeCriticalTiers(t *testing.T) {
	gate := NewTierGate(registryForGate(), nil)
	snap := Snapshot{Tier: TierDev, HardwareScore: 100, BridgeOnline: false}

	// chat.mcp is the lowest bridge-critical tier (pro); dev is above it, so
	// the bridge axis caps at basic (pro - 1).
	if eff := gate.EffectiveTier(snap); eff != TierBasic {
		t.Fatalf("expected bridge-offline cap at basic, got %s", eff)
	}
}
