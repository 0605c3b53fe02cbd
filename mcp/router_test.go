package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-shell/crag/rotation"
)

type fakeAudit struct{ events []string }

func (f *fakeAudit) Record(kind string, payload map[string]interface{}) {
	f.events = append(f.events, kind)
}

func testRouter(t *testing.T, initial rotation.Snapshot, creds map[rotation.CredentialName]bool) (*Router, *rotation.RotationState) {
	t.Helper()
	reg := rotation.NewFeatureRegistry(1, nil)
	gate := rotation.NewTierGate(reg, func(name rotation.CredentialName) bool { return creds[name] })
	disp := rotation.NewDispatcher(nil)
	state := rotation.NewRotationState(gate, disp, initial, time.Second)

	tools := []Tool{
		{ID: "echo", ScopeLevel: ScopeMicro, RequiredTier: rotation.TierFree,
			LocalHandler: func(params map[string]interface{}) (interface{}, error) { return params, nil }},
		{ID: "build.deploy", ScopeLevel: ScopeBuilder, RequiredTier: rotation.TierDev,
			RequiredCredentials: []rotation.CredentialName{"DEPLOY_KEY"},
			LocalHandler: func(params map[string]interface{}) (interface{}, error) { return "deployed", nil }},
	}
	audit := &fakeAudit{}
	router := NewRouter(tools, func(name rotation.CredentialName) bool { return creds[name] }, state, nil, audit)
	return router, state
}

func TestRouter_ExecuteDeniesByScope(t *testing.T) {
	router, _ := testRouter(t, rotation.Snapshot{Tier: rotation.TierDev, HardwareScore: 100, BridgeOnline: true}, nil)
	_, err := router.Execute(context.Background(), "build.deploy", nil)
	if err == nil {
		t.Fatal("expected a scope denial since the router starts at visitor scope")
	}
}

func TestRouter_ElevateThenExecuteSucceeds(t *testing.T) {
	router, _ := testRouter(t, rotation.Snapshot{Tier: rotation.TierDev, HardwareScore: 100, BridgeOnline: true}, map[rotation.CredentialName]bool{"DEPLOY_KEY": true})

	if err := router.Elevate(ScopeBuilder); err != nil {
		t.Fatalf("expected elevation to succeed: %v", err)
	}
	result, err := router.Execute(context.Background(), "build.deploy", nil)
	if err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}
	if result != "deployed" {
		t.Fatalf("expected deployed, got %v", result)
	}
}

func TestRouter_ElevateDeniedAboveEffectiveTier(t *testing.T) {
	router, _ := testRouter(t, rotation.Snapshot{Tier: rotation.TierFree, HardwareScore: 0, BridgeOnline: false}, nil)
	if err := router.Elevate(ScopeBuilder); err == nil {
		t.Fatal("expected elevation to builder scope to be denied at free tier")
	}
}

func TestRouter_AutoDemotesOnTierChangeButNeverAutoPromotes(t *testing.T) {
	router, state := testRouter(t, rotation.Snapshot{Tier: rotation.TierDev, HardwareScore: 100, BridgeOnline: true}, map[rotation.CredentialName]bool{"DEPLOY_KEY": true})
	if err := router.Elevate(ScopeBuilder); err != nil {
		t.Fatalf("unexpected elevation error: %v", err)
	}

	free := rotation.TierFree
	state.Update(rotation.PartialUpdate{Tier: &free})

	if router.CurrentScope() == ScopeBuilder {
		t.Fatal("expected auto-demotion away from builder scope after dropping to free tier")
	}

	dev := rotation.TierDev
	state.Update(rotation.PartialUpdate{Tier: &dev})
	if router.CurrentScope() == ScopeBuilder {
		t.Fatal("expected the router to never auto-promote back to builder")
	}
}
