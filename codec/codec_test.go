package codec

import (
	"encoding/json"
	"testing"

	"github.com/nexus-shell/crag/rotation"
)

func sampleExport() Export {
	return Export{
		CodecVersion:    CodecVersion,
		RegistryVersion: 1,
		Endpoints: []EndpointSummary{
			{ID: "svc", Name: "Service", BaseURL: "https://svc.example", Type: "rest", AuthKind: "bearer", TimeoutMS: 2000, Retry: 3, Enabled: true},
		},
		RateLimiter: RateLimiterConfig{WindowMS: 1000, MaxRequests: 60},
		Circuits:    []CircuitConfig{{EndpointID: "svc", FailureThreshold: 5, ResetTimeoutMS: 30000}},
		Rotation:    RotationSnapshotFrom(rotation.Snapshot{Tier: rotation.TierPro, HardwareScore: 40, BridgeOnline: true}, rotation.TierPro),
	}
}

func TestSerializeImport_RoundTrip(t *testing.T) {
	export := sampleExport()
	raw, err := Serialize(export)
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}

	got, err := Import(raw)
	if err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}
	if got.Rotation.Tier != "pro" || got.Endpoints[0].ID != "svc" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestImport_RejectsIncompatibleVersion(t *testing.T) {
	export := sampleExport()
	export.CodecVersion = CodecVersion + 1
	raw, err := Serialize(export)
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}

	_, err = Import(raw)
	if err == nil {
		t.Fatal("expected an IncompatibleVersion error")
	}
}

func TestImport_RejectsMalformedPayload(t *testing.T) {
	if _, err := Import([]byte("{not json")); err == nil {
		t.Fatal("expected a MalformedExport error")
	}
}

func TestImport_RejectsUnknownTopLevelField(t *testing.T) {
	export := sampleExport()
	raw, err := Serialize(export)
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}

	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	asMap["future_field"] = "unknown to this build"
	withExtra, err := json.Marshal(asMap)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}

	if _, err := Import(withExtra); err == nil {
		t.Fatal("expected an IncompatibleVersion error for an unrecognized field")
	}
}

func TestExport_NeverIncludesAuthorizationHeader(t *testing.T) {
	export := sampleExport()
	export.Endpoints[0].Headers = map[string]string{"Accept": "application/json", "Authorization": "Bearer x"}
	raw, err := Serialize(export)
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}
	got, err := Import(raw)
	if err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}
	if _, ok := got.Endpoints[0].Headers["Authorization"]; ok {
		t.Fatal("Authorization header must never appear in an export")
	}
}
