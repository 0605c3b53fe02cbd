package mcp

import (
	"context"
	"encoding/json"
	"sync"

	crgerrors "github.com/nexus-shell/crag/internal/errors"
	"github.com/nexus-shell/crag/gateway"
	"github.com/nexus-shell/crag/rotation"
)

// CredentialChecker reports whether a named credential is currently sealed.
type CredentialChecker func(name rotation.CredentialName) bool

// GatewayDispatcher is the narrow view Router needs of GatewayCore, used to
// prefer dispatching a tool through the registered bridge endpoint.
type GatewayDispatcher interface {
	Request(ctx context.Context, endpointID string, opts gateway.RequestOptions) (*gateway.Response, error)
}

// AuditSink is the narrow view Router needs of AuditLog.
type AuditSink interface {
	Record(kind string, payload map[string]interface{})
}

// Router is McpScopeRouter: holds current_scope and dispatches tool calls
// gated by scope level, tier, and credential presence (spec §4.11).
type Router struct {
	mu           sync.Mutex
	currentScope ScopeLevel

	tools      map[ToolID]Tool
	hasCred    CredentialChecker
	state      *rotation.RotationState
	gw         GatewayDispatcher
	audit      AuditSink
}

// NewRouter constructs a Router starting at ScopeVisitor.
func NewRouter(tools []Tool, hasCred CredentialChecker, state *rotation.RotationState, gw GatewayDispatcher, audit AuditSink) *Router {
	r := &Router{
		tools:        make(map[ToolID]Tool, len(tools)),
		currentScope: ScopeVisitor,
		hasCred:      hasCred,
		state:        state,
		gw:           gw,
		audit:        audit,
	}
	for _, t := range tools {
		r.tools[t.ID] = t
	}
	if state != nil {
		state.Subscribe(r.onRotationEvent)
	}
	return r
}

// CurrentScope returns the router's current scope level.
func (r *Router) CurrentScope() ScopeLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentScope
}

// Elevate admits a scope increase iff target.required_tier <= effective
// tier. Elevation is process-global and audited (spec §4.11).
func (r *Router) Elevate(target ScopeLevel) error {
	_, effTier := r.state.State()
	if scopeTierFloor[target] > effTier {
		return crgerrors.ScopeDenied(target.String())
	}

	r.mu.Lock()
	r.currentScope = target
	r.mu.Unlock()

	r.audit.Record("tier_change", map[string]interface{}{"elevated_to": target.String()})
	return nil
}

// onRotationEvent implements auto-demotion: on a tier_change event, the
// router may demote current_scope to the highest scope still permitted. It
// never auto-promotes (spec §4.11).
func (r *Router) onRotationEvent(evt rotation.Event) {
	if evt.Kind != rotation.EventTierChange {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, effTier := r.state.State()
	for scope := r.currentScope; scope > ScopeVisitor; scope-- {
		if scopeTierFloor[scope] <= effTier {
			r.currentScope = scope
			return
		}
	}
	r.currentScope = ScopeVisitor
}

// Execute runs tool_id's admission check (tool exists; scope_level <=
// current_scope and tier floor satisfied; every required credential
// present) and, if admitted, dispatches it: preferring the registered
// bridge endpoint when the bridge is online, falling back to a local stub
// handler otherwise (spec §4.11 step 4).
func (r *Router) Execute(ctx context.Context, toolID ToolID, params map[string]interface{}) (interface{}, error) {
	tool, ok := r.tools[toolID]
	if !ok {
		return nil, crgerrors.ToolUnknown(string(toolID))
	}

	r.mu.Lock()
	scope := r.currentScope
	r.mu.Unlock()

	snap, effTier := r.state.State()

	if tool.ScopeLevel > scope {
		r.audit.Record("deny", map[string]interface{}{"tool_id": string(toolID), "reason": "scope"})
		return nil, crgerrors.ScopeDenied(tool.ScopeLevel.String())
	}
	if effTier < tool.RequiredTier {
		r.audit.Record("deny", map[string]interface{}{"tool_id": string(toolID), "reason": "tier"})
		return nil, crgerrors.TierBelow(tool.RequiredTier.String())
	}
	for _, cred := range tool.RequiredCredentials {
		if !r.hasCred(cred) {
			r.audit.Record("deny", map[string]interface{}{"tool_id": string(toolID), "reason": "credential", "credential": string(cred)})
			return nil, crgerrors.CredentialMissing(string(cred))
		}
	}

	r.audit.Record("tool_exec", map[string]interface{}{"tool_id": string(toolID)})

	if tool.BridgeEndpointID != "" && snap.BridgeOnline && r.gw != nil {
		resp, err := r.gw.Request(ctx, tool.BridgeEndpointID, gateway.RequestOptions{
			Method: "POST",
			Path:   "/" + string(toolID),
			Body:   encodeParams(params),
		})
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	if tool.LocalHandler != nil {
		return tool.LocalHandler(params)
	}

	return nil, crgerrors.ToolUnknown(string(toolID) + " (no bridge or local handler available)")
}

func encodeParams(params map[string]interface{}) []byte {
	// Deliberately minimal: the wire format between the bridge endpoint and
	// its stub is an implementation detail of whatever sits behind
	// BridgeEndpointID; tools needing a richer payload set Body directly
	// via a custom LocalHandler instead of relying on this helper.
	if params == nil {
		return nil
	}
	b, _ := json.Marshal(params)
	return b
}
