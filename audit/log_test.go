package audit

import (
	"testing"
	"time"
)

func TestLog_RingWrapsAtCapacity(t *testing.T) {
	l := NewLog(3)
	l.Record("admission", map[string]interface{}{"endpoint_id": "a"})
	l.Record("admission", map[string]interface{}{"endpoint_id": "b"})
	l.Record("admission", map[string]interface{}{"endpoint_id": "c"})
	l.Record("admission", map[string]interface{}{"endpoint_id": "d"})

	if l.Len() != 3 {
		t.Fatalf("expected ring bounded to 3 entries, got %d", l.Len())
	}
	entries := l.Find(Query{})
	if entries[len(entries)-1].Payload["endpoint_id"] != "b" {
		t.Fatalf("expected the oldest surviving entry to be b, got %v", entries[len(entries)-1].Payload)
	}
}

func TestLog_FindFiltersByKindAndSince(t *testing.T) {
	l := NewLog(10)
	l.Record("admission", nil)
	cutoff := time.Now()
	l.Record("deny", nil)
	l.Record("deny", nil)

	denies := l.Find(Query{Kind: KindDeny})
	if len(denies) != 2 {
		t.Fatalf("expected 2 deny entries, got %d", len(denies))
	}

	recent := l.Find(Query{SinceTS: cutoff})
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries since cutoff, got %d", len(recent))
	}
}

func TestLog_FindByJSONPath(t *testing.T) {
	l := NewLog(10)
	l.Record("tool_exec", map[string]interface{}{"tool_id": "feed.ipfs"})
	l.Record("tool_exec", map[string]interface{}{"tool_id": "chat.mcp"})

	matches := l.FindByJSONPath("tool_id", "chat.mcp")
	if len(matches) != 1 {
		t.Fatalf("expected exactly one match, got %d", len(matches))
	}
}
