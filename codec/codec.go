// Package codec implements ExportCodec: a deterministic, secret-free JSON
// snapshot of the gateway's and rotation state's configuration, plus
// version-checked import.
package codec

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	crgerrors "github.com/nexus-shell/crag/internal/errors"
	"github.com/nexus-shell/crag/rotation"
)

// CodecVersion is the export format version this build produces and
// accepts. Bumping it without a matching Import migration is a breaking
// change (spec §4.13: "Import validates version compatibility; on
// mismatch, returns IncompatibleVersion without touching current state").
const CodecVersion = 1

// EndpointSummary is one catalog entry, stripped of secrets (spec §4.13:
// "auth-kind (no secrets), headers (minus Authorization)").
type EndpointSummary struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	BaseURL   string            `json:"base_url"`
	Type      string            `json:"type"`
	AuthKind  string            `json:"auth_kind"`
	Headers   map[string]string `json:"headers"`
	TimeoutMS int               `json:"timeout_ms"`
	Retry     int               `json:"retry"`
	Enabled   bool              `json:"enabled"`
}

// RateLimiterConfig is the global rate limiter configuration surfaced in
// an export.
type RateLimiterConfig struct {
	WindowMS    int `json:"window_ms"`
	MaxRequests int `json:"max_requests"`
}

// CircuitConfig is one endpoint's circuit breaker configuration.
type CircuitConfig struct {
	EndpointID       string `json:"endpoint_id"`
	FailureThreshold int    `json:"failure_threshold"`
	ResetTimeoutMS   int    `json:"reset_timeout_ms"`
}

// RotationSnapshot is the current tier/hardware/bridge triple and effective
// tier, excluding credentials (spec §4.13).
type RotationSnapshot struct {
	Tier            string `json:"tier"`
	EffectiveTier   string `json:"effective_tier"`
	HardwareScore   int    `json:"hardware_score"`
	BridgeOnline    bool   `json:"bridge_online"`
}

// Export is the deterministic record ExportCodec.Serialize produces. Audit
// log contents are never included (spec §4.13).
type Export struct {
	CodecVersion    int                 `json:"codec_version"`
	RegistryVersion int                 `json:"registry_version"`
	Endpoints       []EndpointSummary   `json:"endpoints"`
	RateLimiter     RateLimiterConfig   `json:"rate_limiter"`
	Circuits        []CircuitConfig     `json:"circuits"`
	Rotation        RotationSnapshot    `json:"rotation"`
}

// Serialize renders export as deterministic JSON. Endpoints are sorted by
// name and circuits by endpoint ID (on copies, so the caller's slices are
// untouched), and any Authorization header is dropped from each endpoint's
// headers. encoding/json emits struct fields in declaration order and the
// remaining map keys (per-endpoint headers) in sorted key order.
func Serialize(export Export) ([]byte, error) {
	endpoints := make([]EndpointSummary, len(export.Endpoints))
	for i, ep := range export.Endpoints {
		if ep.Headers != nil {
			headers := make(map[string]string, len(ep.Headers))
			for k, v := range ep.Headers {
				if !strings.EqualFold(k, "Authorization") {
					headers[k] = v
				}
			}
			ep.Headers = headers
		}
		endpoints[i] = ep
	}
	sort.SliceStable(endpoints, func(i, j int) bool { return endpoints[i].Name < endpoints[j].Name })
	circuits := append(make([]CircuitConfig, 0, len(export.Circuits)), export.Circuits...)
	sort.SliceStable(circuits, func(i, j int) bool { return circuits[i].EndpointID < circuits[j].EndpointID })
	export.Endpoints, export.Circuits = endpoints, circuits
	return json.MarshalIndent(export, "", "  ")
}

// Import parses and version-checks raw against CodecVersion, returning
// IncompatibleVersion without mutating any caller state on mismatch —
// callers are expected to apply the returned Export themselves only after
// a successful Import, so "touching current state" never happens here.
// Unknown top-level fields are rejected the same way a version mismatch
// is: they signal a schema this build does not understand, which spec
// §6.6 treats identically to an outright version bump.
func Import(raw []byte) (*Export, error) {
	var export Export
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&export); err != nil {
		if isUnknownFieldError(err) {
			return nil, crgerrors.IncompatibleVersion(export.CodecVersion, CodecVersion)
		}
		return nil, crgerrors.MalformedExport(err.Error())
	}
	if export.CodecVersion != CodecVersion {
		return nil, crgerrors.IncompatibleVersion(export.CodecVersion, CodecVersion)
	}
	return &export, nil
}

// isUnknownFieldError reports whether err came from DisallowUnknownFields
// rejecting a field not present on Export (or a nested struct). The
// encoding/json decoder does not expose a typed error for this, so the
// message prefix it documents is matched instead.
func isUnknownFieldError(err error) bool {
	return err != nil && bytes.Contains([]byte(err.Error()), []byte("unknown field"))
}

// RotationSnapshotFrom builds a RotationSnapshot from live rotation state,
// omitting credentials entirely (there are none to omit from a Snapshot —
// credentials live only in the vault, which Export never touches).
func RotationSnapshotFrom(snap rotation.Snapshot, effectiveTier rotation.Tier) RotationSnapshot {
	return RotationSnapshot{
		Tier:          snap.Tier.String(),
		EffectiveTier: effectiveTier.String(),
		HardwareScore: int(snap.HardwareScore),
		BridgeOnline:  snap.BridgeOnline,
	}
}
