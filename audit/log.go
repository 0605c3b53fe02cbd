// Package audit implements AuditLog: a bounded append-only ring of
// admission/gateway/rotation occurrences, queryable by kind and time.
package audit

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nexus-shell/crag/internal/security"
)

// Kind enumerates the audit record kinds spec §4.12 names.
type Kind string

const (
	KindAdmission         Kind = "admission"
	KindDeny              Kind = "deny"
	KindRateLimited       Kind = "rate_limited"
	KindCircuitOpen       Kind = "circuit_open"
	KindCircuitClose      Kind = "circuit_close"
	KindToolExec          Kind = "tool_exec"
	KindTierChange        Kind = "tier_change"
	KindCredentialRotated Kind = "credential_rotated"
	KindCredentialRevealed Kind = "credential_revealed"
)

// Entry is one ring record. Payload never carries credential values or
// other PII beyond endpoint/tool identifiers (spec §4.12).
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Kind      Kind                   `json:"kind"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Log is a bounded, append-only ring buffer of Entry, defaulting to 1000
// entries (spec §4.12). Grounded on the teacher's bounded non-blocking
// audit-queue idiom in infrastructure/middleware/headergate.go, adapted
// here to a ring buffer since AuditLog additionally needs to support
// range queries over recent history rather than just drain-to-worker.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	head    int
	size    int
	maxLogs int
}

// NewLog constructs a ring buffer bounded to maxLogs entries.
func NewLog(maxLogs int) *Log {
	if maxLogs <= 0 {
		maxLogs = 1000
	}
	return &Log{entries: make([]Entry, maxLogs), maxLogs: maxLogs}
}

// Record appends a new entry, overwriting the oldest once the ring is full.
// payload is redacted through internal/security.SanitizeMap first, as a
// defense in depth against a caller accidentally passing a credential
// value through rather than just its name (spec §4.12: credential values
// must never appear in the audit log).
// Satisfies gateway.AuditSink / rotation's downstream consumers.
func (l *Log) Record(kind string, payload map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := (l.head + l.size) % l.maxLogs
	if l.size == l.maxLogs {
		idx = l.head
		l.head = (l.head + 1) % l.maxLogs
	} else {
		l.size++
	}
	l.entries[idx] = Entry{Timestamp: time.Now(), Kind: Kind(kind), Payload: security.SanitizeMap(payload)}
}

// Query is the {kind, since_ts, limit} filter spec §4.12 supports.
type Query struct {
	Kind    Kind
	SinceTS time.Time
	Limit   int
}

// Find returns entries matching q, newest first, bounded by q.Limit (0
// means unbounded).
func (l *Log) Find(q Query) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for i := 0; i < l.size; i++ {
		idx := (l.head + l.size - 1 - i) % l.maxLogs
		e := l.entries[idx]
		if q.Kind != "" && e.Kind != q.Kind {
			continue
		}
		if !q.SinceTS.IsZero() && e.Timestamp.Before(q.SinceTS) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// FindByJSONPath filters the current ring by a gjson path expression
// evaluated against each entry's JSON-encoded payload, for ad hoc operator
// queries beyond the fixed {kind, since_ts, limit} surface.
func (l *Log) FindByJSONPath(path string, expect string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for i := 0; i < l.size; i++ {
		idx := (l.head + l.size - 1 - i) % l.maxLogs
		e := l.entries[idx]
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			continue
		}
		if gjson.GetBytes(raw, path).String() == expect {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the current number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}
