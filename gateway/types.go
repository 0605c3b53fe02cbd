// Package gateway implements the API Gateway half of the core: per-endpoint
// rate limiting, circuit breaking, response caching, a bounded priority
// request queue, and the admission pipeline that ties them together.
package gateway

import (
	"context"
	"time"

	"github.com/nexus-shell/crag/rotation"
)

// AuthKind selects how a resolved credential is injected into a request.
type AuthKind string

const (
	AuthNone   AuthKind = ""
	AuthBearer AuthKind = "bearer"
	AuthAPIKey AuthKind = "api-key"
)

// EndpointConfig is the static, operator-supplied definition of one upstream
// endpoint (spec §4.6/§4.13's endpoint catalog entry).
type EndpointConfig struct {
	ID                string
	Name              string
	BaseURL           string
	Type              string
	Enabled           bool
	Auth              AuthKind
	AuthCredential    rotation.CredentialName
	AuthHeaderName    string // api-key only; defaults to X-API-Key
	DefaultHeaders    map[string]string
	TimeoutMS         int
	RetryBudget       int
	RateLimit         int
	RateWindowMS      int
	CircuitThreshold  int
	CircuitResetMS    int
	CacheTTLMS        int // 0 means use the gateway-wide default

	// RequiredFeature, if set, ties this endpoint's availability to a
	// rotation feature: RevokeBoundEndpoints disables the endpoint the
	// moment that feature is removed from the effective set, and it stays
	// disabled until the endpoint is re-registered with RegisterEndpoint.
	// Empty means the endpoint is never auto-revoked.
	RequiredFeature rotation.FeatureID
}

// RequestOptions customizes one call through GatewayCore.Request.
type RequestOptions struct {
	Method       string
	Path         string
	Query        map[string]string
	Headers      map[string]string
	Body         []byte
	Cache        *bool // nil = default (cache GETs), explicit false disables
	Priority     Priority
	IdempotentOverride *bool
}

// Priority is one of RequestQueue's four admission levels.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// FailureKind classifies a dispatch failure for circuit-breaker counting
// (spec §4.6 step 9).
type FailureKind string

const (
	FailureNetwork   FailureKind = "network"
	FailureTimeout   FailureKind = "timeout"
	FailureHTTP5xx   FailureKind = "http_5xx"
	FailureHTTP4xx   FailureKind = "http_4xx"
	FailureCancelled FailureKind = "cancelled"
)

// countsTowardCircuit reports whether a failure of this kind should be
// counted against the circuit breaker. 4xx other than 408/429 never counts.
func (k FailureKind) countsTowardCircuit(statusCode int) bool {
	switch k {
	case FailureNetwork, FailureTimeout:
		return true
	case FailureHTTP5xx:
		return true
	case FailureHTTP4xx:
		return statusCode == 408 || statusCode == 429
	default:
		return false
	}
}

// Response is what GatewayCore.Request returns on success.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Cached     bool
	LatencyMS  int64
}

// Transport is the underlying HTTP(-shaped) dispatcher GatewayCore submits
// built requests to. Production wiring is net/http; tests substitute a fake.
type Transport interface {
	Do(ctx context.Context, req *OutgoingRequest) (*Response, error)
}

// OutgoingRequest is the fully assembled request after header merge, auth
// injection, and interceptor passes (spec §4.6 steps 5-6).
type OutgoingRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Interceptor may rewrite an outgoing request or short-circuit it with a
// canned response. Returning a non-nil Response short-circuits dispatch.
type Interceptor interface {
	Order() int
	InterceptRequest(req *OutgoingRequest) (*OutgoingRequest, *Response, error)
	InterceptResponse(resp *Response) (*Response, error)
}

// CredentialResolver is the narrow view GatewayCore needs of CredentialVault.
type CredentialResolver interface {
	Reveal(name rotation.CredentialName) (string, bool)
}

// AuditSink is the narrow view GatewayCore needs of AuditLog.
type AuditSink interface {
	Record(kind string, payload map[string]interface{})
}

func nowMS() int64 { return time.Now().UnixMilli() }
