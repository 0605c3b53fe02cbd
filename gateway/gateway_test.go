package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-shell/crag/rotation"
)

type fakeTransport struct {
	responses []*Response
	errs      []error
	calls     int
}

func (f *fakeTransport) Do(ctx context.Context, req *OutgoingRequest) (*Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

type fakeCredentials struct{ values map[rotation.CredentialName]string }

func (f *fakeCredentials) Reveal(name rotation.CredentialName) (string, bool) {
	v, ok := f.values[name]
	return v, ok
}

type fakeAudit struct{ events []string }

func (f *fakeAudit) Record(kind string, payload map[string]interface{}) {
	f.events = append(f.events, kind)
}

func newTestGateway(t *testing.T, transport Transport) (*GatewayCore, *fakeAudit) {
	t.Helper()
	audit := &fakeAudit{}
	gw := NewGatewayCore(Config{
		Transport:  transport,
		Credential: &fakeCredentials{values: map[rotation.CredentialName]string{"API_KEY": "secret"}},
		Audit:      audit,
	})
	gw.RegisterEndpoint(EndpointConfig{
		ID:               "svc",
		BaseURL:          "https://svc.example",
		Enabled:          true,
		Auth:             AuthBearer,
		AuthCredential:   "API_KEY",
		TimeoutMS:        1000,
		RetryBudget:      3,
		RateLimit:        10,
		RateWindowMS:     1000,
		CircuitThreshold: 2,
		CircuitResetMS:   50,
	})
	return gw, audit
}

// TestGatewayCore_EndpointNotFound covers spec §4.6 step 1.
func TestGatewayCore_EndpointNotFound(t *testing.T) {
	gw, _ := newTestGateway(t, &fakeTransport{})
	_, err := gw.Request(context.Background(), "missing", RequestOptions{Path: "/x"})
	if err == nil {
		t.Fatal("expected an error for an unregistered endpoint")
	}
}

// TestGatewayCore_SuccessCachesGet covers spec §4.6 steps 4 and 8.
func TestGatewayCore_SuccessCachesGet(t *testing.T) {
	transport := &fakeTransport{responses: []*Response{{StatusCode: 200, Body: []byte("ok")}}}
	gw, _ := newTestGateway(t, transport)

	resp1, err := gw.Request(context.Background(), "svc", RequestOptions{Method: "GET", Path: "/a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp1.Cached {
		t.Fatal("first call should not be a cache hit")
	}

	resp2, err := gw.Request(context.Background(), "svc", RequestOptions{Method: "GET", Path: "/a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp2.Cached {
		t.Fatal("second identical GET should be a cache hit")
	}
	if transport.calls != 1 {
		t.Fatalf("expected exactly one upstream dispatch, got %d", transport.calls)
	}
}

// TestGatewayCore_CircuitOpensAfterThreshold covers spec §4.6's circuit
// closed->open transition and the subsequent CircuitOpen denial.
func TestGatewayCore_CircuitOpensAfterThreshold(t *testing.T) {
	transport := &fakeTransport{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded}}
	gw, _ := newTestGateway(t, transport)

	for i := 0; i < 2; i++ {
		_, err := gw.Request(context.Background(), "svc", RequestOptions{Method: "POST", Path: "/a", IdempotentOverride: boolP(false)})
		if err == nil {
			t.Fatal("expected dispatch failure")
		}
	}

	_, err := gw.Request(context.Background(), "svc", RequestOptions{Method: "POST", Path: "/a"})
	if err == nil {
		t.Fatal("expected circuit-open denial on the third call")
	}
}

// TestGatewayCore_RateLimitedAfterLimit covers spec §4.7.
func TestGatewayCore_RateLimitedAfterLimit(t *testing.T) {
	transport := &fakeTransport{responses: []*Response{{StatusCode: 200}}}
	gw, _ := newTestGateway(t, transport)
	gw.RegisterEndpoint(EndpointConfig{
		ID: "svc", BaseURL: "https://svc.example", Enabled: true,
		TimeoutMS: 1000, RetryBudget: 1, RateLimit: 1, RateWindowMS: 10_000,
		CircuitThreshold: 5, CircuitResetMS: 50,
	})

	_, err := gw.Request(context.Background(), "svc", RequestOptions{Method: "GET", Path: "/a", Cache: boolP(false)})
	if err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}
	_, err = gw.Request(context.Background(), "svc", RequestOptions{Method: "GET", Path: "/b", Cache: boolP(false)})
	if err == nil {
		t.Fatal("expected the second call within the same window to be rate limited")
	}
}

func boolP(b bool) *bool { return &b }

func TestCircuitBreaker_HalfOpenAllowsSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker()
	// First contact creates the endpoint's entry with its threshold/reset config.
	cb.CanPass("e", 2, 10)
	for i := 0; i < 2; i++ {
		cb.RecordFailure("e")
	}
	ok, state := cb.CanPass("e", 2, 10)
	if ok {
		t.Fatal("expected circuit to be open immediately after crossing the threshold")
	}
	if state != CircuitOpen {
		t.Fatalf("expected open, got %s", state)
	}

	time.Sleep(20 * time.Millisecond)
	ok, state = cb.CanPass("e", 2, 10)
	if !ok || state != CircuitHalfOpen {
		t.Fatalf("expected the first post-timeout call to probe half_open, got ok=%v state=%s", ok, state)
	}

	ok, _ = cb.CanPass("e", 2, 10)
	if ok {
		t.Fatal("expected a second caller to be denied while a probe is in flight")
	}
}

func TestResponseCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewResponseCache(2, time.Minute)
	c.Set("a", &Response{StatusCode: 200}, 0)
	c.Set("b", &Response{StatusCode: 200}, 0)
	c.Get("a") // touch a so b becomes the LRU victim
	c.Set("c", &Response{StatusCode: 200}, 0)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to have been evicted as least recently used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("expected c to be present")
	}
}

func TestRateLimiter_ResetsAfterWindow(t *testing.T) {
	rl := NewRateLimiter()
	ok, _ := rl.TryAcquire("e", 1, 30)
	if !ok {
		t.Fatal("expected the first acquire to succeed")
	}
	ok, _ = rl.TryAcquire("e", 1, 30)
	if ok {
		t.Fatal("expected the second acquire within the window to be denied")
	}
	time.Sleep(40 * time.Millisecond)
	ok, _ = rl.TryAcquire("e", 1, 30)
	if !ok {
		t.Fatal("expected the window to have reset")
	}
}

func TestGatewayCore_RevokeBoundEndpointsDisablesBoundEndpoints(t *testing.T) {
	gw, audit := newTestGateway(t, &fakeTransport{})
	gw.RegisterEndpoint(EndpointConfig{
		ID:              "bound",
		Enabled:         true,
		RequiredFeature: "pro_export",
	})
	gw.RegisterEndpoint(EndpointConfig{
		ID:              "unbound",
		Enabled:         true,
		RequiredFeature: "other_feature",
	})

	revoked := gw.RevokeBoundEndpoints([]rotation.FeatureID{"pro_export"})
	if len(revoked) != 1 || revoked[0] != "bound" {
		t.Fatalf("expected only the bound endpoint to be revoked, got %v", revoked)
	}

	endpoints := gw.Endpoints()
	for _, ep := range endpoints {
		if ep.ID == "bound" && ep.Enabled {
			t.Fatal("expected bound endpoint to be disabled")
		}
		if ep.ID == "unbound" && !ep.Enabled {
			t.Fatal("expected unbound endpoint to remain enabled")
		}
	}

	found := false
	for _, e := range audit.events {
		if e == "endpoint_revoked" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an endpoint_revoked audit event")
	}

	if again := gw.RevokeBoundEndpoints([]rotation.FeatureID{"pro_export"}); len(again) != 0 {
		t.Fatalf("expected a second revoke call to be a no-op, got %v", again)
	}
}
