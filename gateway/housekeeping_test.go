package gateway

import (
	"testing"
	"time"
)

func TestResponseCache_SweepRemovesExpiredEntriesEagerly(t *testing.T) {
	c := NewResponseCache(10, time.Millisecond)
	c.Set("a", &Response{StatusCode: 200}, 0)
	time.Sleep(5 * time.Millisecond)

	removed := c.Sweep(time.Now())
	if removed != 1 {
		t.Fatalf("expected sweep to remove 1 expired entry, got %d", removed)
	}
	if stats := c.Stats(); stats.Size != 0 {
		t.Fatalf("expected empty cache after sweep, got size %d", stats.Size)
	}
}

func TestRateLimiter_GCDropsIdleWindows(t *testing.T) {
	rl := NewRateLimiter()
	rl.TryAcquire("e", 5, 1000)

	if removed := rl.GC(time.Hour); removed != 0 {
		t.Fatalf("expected no windows collected within staleAfter, got %d", removed)
	}
	if removed := rl.GC(0); removed != 1 {
		t.Fatalf("expected the idle window to be collected, got %d", removed)
	}
}

func TestHousekeeper_InvalidCronSpecReturnsError(t *testing.T) {
	gw, _ := newTestGateway(t, &fakeTransport{})
	if _, err := NewHousekeeper(gw, "not a cron spec", "", time.Minute, nil); err == nil {
		t.Fatal("expected an error constructing a Housekeeper from a malformed cron expression")
	}
}

func TestHousekeeper_StartStopRunsCleanly(t *testing.T) {
	gw, _ := newTestGateway(t, &fakeTransport{})
	hk, err := NewHousekeeper(gw, "@every 1h", "@every 1h", time.Minute, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hk.Start()
	hk.Stop()
}
