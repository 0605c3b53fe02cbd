package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	crgerrors "github.com/nexus-shell/crag/internal/errors"
	"github.com/nexus-shell/crag/internal/logging"
	"github.com/nexus-shell/crag/internal/metrics"
	"github.com/nexus-shell/crag/rotation"
)

// endpointState is the per-endpoint runtime bookkeeping GatewayCore keeps
// alongside the static EndpointConfig: EWMA latency and registration.
type endpointState struct {
	config       EndpointConfig
	ewmaLatency  float64
	hasEWMA      bool
}

// GatewayCore is the request admission pipeline of spec §4.6: endpoint
// lookup, circuit check, rate check, cache lookup, header/auth assembly,
// interceptors, dispatch with retry, and post-dispatch bookkeeping.
type GatewayCore struct {
	mu        sync.RWMutex
	endpoints map[string]*endpointState

	breaker *CircuitBreaker
	limiter *RateLimiter
	cache   *ResponseCache
	queue   *RequestQueue

	transport  Transport
	credential CredentialResolver
	audit      AuditSink
	logger     *logging.Logger

	interceptors []Interceptor

	defaultCacheTTL time.Duration
}

// Config bundles GatewayCore's construction-time dependencies.
type Config struct {
	Transport       Transport
	Credential      CredentialResolver
	Audit           AuditSink
	Logger          *logging.Logger
	QueueConcurrency int
	QueueGlobalQPS   float64
	CacheMaxSize     int
	CacheDefaultTTL  time.Duration
}

// NewGatewayCore wires up a GatewayCore with fresh breaker/limiter/cache/queue.
func NewGatewayCore(cfg Config) *GatewayCore {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.QueueConcurrency <= 0 {
		cfg.QueueConcurrency = 8
	}
	if cfg.CacheMaxSize <= 0 {
		cfg.CacheMaxSize = 500
	}
	if cfg.CacheDefaultTTL <= 0 {
		cfg.CacheDefaultTTL = 60 * time.Second
	}
	return &GatewayCore{
		endpoints:       make(map[string]*endpointState),
		breaker:         NewCircuitBreaker(),
		limiter:         NewRateLimiter(),
		cache:           NewResponseCache(cfg.CacheMaxSize, cfg.CacheDefaultTTL),
		queue:           NewRequestQueue(cfg.QueueConcurrency, cfg.QueueGlobalQPS),
		transport:       cfg.Transport,
		credential:      cfg.Credential,
		audit:           cfg.Audit,
		logger:          cfg.Logger,
		defaultCacheTTL: cfg.CacheDefaultTTL,
	}
}

// RegisterEndpoint adds or replaces an endpoint's static configuration.
func (g *GatewayCore) RegisterEndpoint(cfg EndpointConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endpoints[cfg.ID] = &endpointState{config: cfg}
}

// RevokeBoundEndpoints disables every registered endpoint whose
// RequiredFeature appears in removed, completing spec §4.3's control-flow
// fan-out from RotationDispatcher into the gateway (alongside
// McpScopeRouter.refresh). Returns the IDs disabled.
func (g *GatewayCore) RevokeBoundEndpoints(removed []rotation.FeatureID) []string {
	if len(removed) == 0 {
		return nil
	}
	gone := make(map[rotation.FeatureID]bool, len(removed))
	for _, f := range removed {
		gone[f] = true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	var revoked []string
	for id, st := range g.endpoints {
		if st.config.RequiredFeature != "" && gone[st.config.RequiredFeature] && st.config.Enabled {
			st.config.Enabled = false
			revoked = append(revoked, id)
			if g.audit != nil {
				g.audit.Record("endpoint_revoked", map[string]interface{}{"endpoint_id": id, "feature": string(st.config.RequiredFeature)})
			}
		}
	}
	return revoked
}

// Use appends an interceptor and keeps the interceptor list sorted by Order
// ascending (spec §4.6 step 6).
func (g *GatewayCore) Use(i Interceptor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.interceptors = append(g.interceptors, i)
	sort.Slice(g.interceptors, func(a, b int) bool {
		return g.interceptors[a].Order() < g.interceptors[b].Order()
	})
}

// Endpoints returns a snapshot of every registered endpoint's static
// configuration, used by codec export to describe the current fleet.
func (g *GatewayCore) Endpoints() []EndpointConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]EndpointConfig, 0, len(g.endpoints))
	for _, st := range g.endpoints {
		out = append(out, st.config)
	}
	return out
}

func (g *GatewayCore) endpoint(id string) (*endpointState, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.endpoints[id]
	if !ok {
		return nil, crgerrors.EndpointNotFound(id)
	}
	if !st.config.Enabled {
		return nil, crgerrors.EndpointDisabled(id)
	}
	return st, nil
}

// Request runs the full admission pipeline for one call to endpointID
// (spec §4.6 steps 1-9).
func (g *GatewayCore) Request(ctx context.Context, endpointID string, opts RequestOptions) (*Response, error) {
	st, err := g.endpoint(endpointID)
	if err != nil {
		return nil, err
	}
	cfg := st.config

	// Step 2: circuit check.
	allowed, state := g.breaker.CanPass(endpointID, cfg.CircuitThreshold, cfg.CircuitResetMS)
	if !allowed {
		g.audit.Record("circuit_open", map[string]interface{}{"endpoint_id": endpointID})
		if metrics.Enabled() {
			metrics.Global().RecordGatewayRequest(endpointID, "circuit_open", 0)
		}
		return nil, crgerrors.CircuitOpen(endpointID, g.breaker.Stats(endpointID).RetryAt.UnixMilli())
	}
	_ = state

	// Step 3: rate check.
	acquired, retryAfterMS := g.limiter.TryAcquire(endpointID, cfg.RateLimit, cfg.RateWindowMS)
	if !acquired {
		g.audit.Record("rate_limited", map[string]interface{}{"endpoint_id": endpointID, "retry_after_ms": retryAfterMS})
		return nil, crgerrors.RateLimited(retryAfterMS)
	}

	method := opts.Method
	if method == "" {
		method = "GET"
	}
	useCache := method == "GET" && (opts.Cache == nil || *opts.Cache)

	// Step 4: cache lookup.
	var cacheKey string
	if useCache {
		cacheKey = CacheKey(endpointID, opts.Path, opts.Query)
		if cached, ok := g.cache.Get(cacheKey); ok {
			g.limiter.Release(endpointID)
			hit := *cached
			hit.Cached = true
			hit.LatencyMS = 0
			return &hit, nil
		}
	}

	// Step 5: build request (headers, auth).
	req, err := g.buildRequest(cfg, method, opts)
	if err != nil {
		g.breaker.RecordFailure(endpointID)
		return nil, err
	}

	// Step 6: request interceptors.
	g.mu.RLock()
	interceptors := append([]Interceptor(nil), g.interceptors...)
	g.mu.RUnlock()

	for _, ic := range interceptors {
		var shortCircuit *Response
		req, shortCircuit, err = ic.InterceptRequest(req)
		if err != nil {
			g.breaker.RecordFailure(endpointID)
			return nil, err
		}
		if shortCircuit != nil {
			return g.finishSuccess(endpointID, cfg, cacheKey, useCache, shortCircuit, interceptors)
		}
	}

	// Step 7: dispatch with retry/backoff.
	idempotent := isIdempotent(method)
	if opts.IdempotentOverride != nil {
		idempotent = *opts.IdempotentOverride
	}
	retryCfg := defaultRetryConfig(cfg.RetryBudget)

	start := time.Now()
	var resp *Response
	var dispatchErr error
	attempts := 1
	if idempotent && retryCfg.maxAttempts > 1 {
		attempts = retryCfg.maxAttempts
	}

dispatchLoop:
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryCfg.nextDelay(attempt - 1)):
			case <-ctx.Done():
				dispatchErr = ctx.Err()
				break dispatchLoop
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if cfg.TimeoutMS > 0 {
			callCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutMS)*time.Millisecond)
		}
		resp, dispatchErr = g.transport.Do(callCtx, req)
		if cancel != nil {
			cancel()
		}

		if dispatchErr == nil && (resp == nil || resp.StatusCode < 500) {
			break
		}
		if !idempotent {
			break
		}
	}
	latency := time.Since(start)

	if dispatchErr != nil || (resp != nil && resp.StatusCode >= 400) {
		return nil, g.finishFailure(endpointID, resp, dispatchErr)
	}

	g.updateEWMA(st, latency)
	return g.finishSuccess(endpointID, cfg, cacheKey, useCache, resp, interceptors)
}

func (g *GatewayCore) buildRequest(cfg EndpointConfig, method string, opts RequestOptions) (*OutgoingRequest, error) {
	headers := make(map[string]string, len(cfg.DefaultHeaders)+len(opts.Headers))
	for k, v := range cfg.DefaultHeaders {
		headers[k] = v
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	if cfg.Auth != AuthNone {
		raw, ok := g.credential.Reveal(cfg.AuthCredential)
		if !ok {
			return nil, crgerrors.CredentialNotSealed(string(cfg.AuthCredential))
		}
		switch cfg.Auth {
		case AuthBearer:
			headers["Authorization"] = "Bearer " + raw
		case AuthAPIKey:
			name := cfg.AuthHeaderName
			if name == "" {
				name = "X-API-Key"
			}
			headers[name] = raw
		}
	}

	url := cfg.BaseURL + opts.Path
	return &OutgoingRequest{Method: method, URL: url, Headers: headers, Body: opts.Body}, nil
}

func (g *GatewayCore) finishSuccess(endpointID string, cfg EndpointConfig, cacheKey string, useCache bool, resp *Response, interceptors []Interceptor) (*Response, error) {
	for _, ic := range interceptors {
		var err error
		resp, err = ic.InterceptResponse(resp)
		if err != nil {
			return nil, err
		}
	}

	g.breaker.RecordSuccess(endpointID)

	if useCache {
		ttl := g.defaultCacheTTL
		if cfg.CacheTTLMS > 0 {
			ttl = time.Duration(cfg.CacheTTLMS) * time.Millisecond
		}
		g.cache.Set(cacheKey, resp, ttl)
	}

	g.audit.Record("admission", map[string]interface{}{"endpoint_id": endpointID, "status": resp.StatusCode})
	if metrics.Enabled() {
		metrics.Global().RecordGatewayRequest(endpointID, "success", time.Duration(resp.LatencyMS)*time.Millisecond)
	}
	return resp, nil
}

func (g *GatewayCore) finishFailure(endpointID string, resp *Response, dispatchErr error) error {
	kind := classifyFailure(resp, dispatchErr)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	if kind.countsTowardCircuit(statusCode) {
		g.breaker.RecordFailure(endpointID)
	}
	g.audit.Record("deny", map[string]interface{}{"endpoint_id": endpointID, "kind": string(kind)})
	if dispatchErr != nil {
		return crgerrors.GatewayDispatchFailed(endpointID, string(kind), dispatchErr)
	}
	return crgerrors.GatewayUpstreamError(endpointID, statusCode)
}

func classifyFailure(resp *Response, err error) FailureKind {
	if errors.Is(err, context.Canceled) {
		return FailureCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if err != nil {
		return FailureNetwork
	}
	if resp != nil && resp.StatusCode >= 500 {
		return FailureHTTP5xx
	}
	return FailureHTTP4xx
}

func (g *GatewayCore) updateEWMA(st *endpointState, latency time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	const alpha = 0.2
	ms := float64(latency.Milliseconds())
	if !st.hasEWMA {
		st.ewmaLatency = ms
		st.hasEWMA = true
		return
	}
	st.ewmaLatency = alpha*ms + (1-alpha)*st.ewmaLatency
}

// EWMALatencyMS reports the current exponentially-weighted moving average
// latency for endpointID, or 0 if no successful call has completed yet.
func (g *GatewayCore) EWMALatencyMS(endpointID string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.endpoints[endpointID]
	if !ok {
		return 0
	}
	return st.ewmaLatency
}

// Enqueue routes work through the bounded RequestQueue at the given
// priority (spec §4.10), typically used by callers that want GatewayCore
// requests to compete fairly with other background work.
func (g *GatewayCore) Enqueue(priority Priority, fn func()) <-chan struct{} {
	return g.queue.Enqueue(priority, fn)
}

// CircuitStats exposes per-endpoint breaker stats for operators.
func (g *GatewayCore) CircuitStats(endpointID string) CircuitStats {
	return g.breaker.Stats(endpointID)
}

// RateStatus exposes per-endpoint limiter stats for operators.
func (g *GatewayCore) RateStatus(endpointID string) RateStatus {
	return g.limiter.Status(endpointID)
}

// CacheStats exposes cache hit/miss stats for operators.
func (g *GatewayCore) CacheStats() CacheStats {
	return g.cache.Stats()
}

// QueueStats exposes queue occupancy for operators.
func (g *GatewayCore) QueueStats() QueueStats {
	return g.queue.Stats()
}
