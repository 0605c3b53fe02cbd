// Package mcp implements McpScopeRouter: a scope-gated tool dispatcher whose
// permitted tool set is a function of the same rotation state that gates
// features elsewhere in the system.
package mcp

import "github.com/nexus-shell/crag/rotation"

// ScopeLevel is the ordered MCP tool-exposure hierarchy (spec §4.11).
type ScopeLevel int

const (
	ScopeVisitor ScopeLevel = iota
	ScopeMicro
	ScopeApp
	ScopeBuilder
)

var scopeLevelNames = map[ScopeLevel]string{
	ScopeVisitor: "visitor",
	ScopeMicro:   "micro",
	ScopeApp:     "app",
	ScopeBuilder: "builder",
}

func (s ScopeLevel) String() string {
	if name, ok := scopeLevelNames[s]; ok {
		return name
	}
	return "unknown"
}

// ToolID identifies one MCP tool.
type ToolID string

// Tool is the static definition of one dispatchable MCP tool.
type Tool struct {
	ID                  ToolID
	ScopeLevel          ScopeLevel
	RequiredTier        rotation.Tier
	RequiredCredentials []rotation.CredentialName
	BridgeEndpointID     string // registered in GatewayCore; empty if bridge-only tools don't apply
	LocalHandler         func(params map[string]interface{}) (interface{}, error)
}

// scopeTierFloor is the minimum effective tier required to hold
// current_scope at a given level (spec §4.11's "tier >= required-tier for
// current-scope").
var scopeTierFloor = map[ScopeLevel]rotation.Tier{
	ScopeVisitor: rotation.TierFree,
	ScopeMicro:   rotation.TierFree,
	ScopeApp:     rotation.TierBasic,
	ScopeBuilder: rotation.TierDev,
}
