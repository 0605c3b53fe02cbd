package bridgewatch

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestHeartbeat_TimestampFormatRoundTrips(t *testing.T) {
	// Exercises the wire-format contract between Heartbeat and Watcher.probe
	// without a live Redis server: Heartbeat writes RFC3339Nano, probe reads
	// and parses it back.
	ts := time.Now().Format(time.RFC3339Nano)
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if time.Since(parsed) > time.Second {
		t.Fatalf("expected the parsed timestamp to be fresh, got %v old", time.Since(parsed))
	}
}

func TestWatcher_DefaultsAreApplied(t *testing.T) {
	w := NewWatcher(Config{Client: &redis.Client{}})
	if w.key != "crag:bridge:heartbeat" {
		t.Fatalf("expected default key, got %q", w.key)
	}
	if w.pollEvery != 2*time.Second {
		t.Fatalf("expected default poll interval, got %v", w.pollEvery)
	}
	if w.staleAfter != 10*time.Second {
		t.Fatalf("expected default stale threshold, got %v", w.staleAfter)
	}
}

func TestWatcher_ProbeTreatsUnreachableServerAsOffline(t *testing.T) {
	// A Watcher against a client with no reachable server returns false
	// from probe rather than panicking; Run's ticker loop depends on that.
	w := NewWatcher(Config{Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if w.probe(ctx) {
		t.Fatal("expected probe against an unreachable client to report offline")
	}
}
