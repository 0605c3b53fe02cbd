package vault

import (
	"testing"
)

type fakeAudit struct{ events []string }

func (f *fakeAudit) Record(kind string, payload map[string]interface{}) {
	f.events = append(f.events, kind)
}

func testVault(t *testing.T) (*CredentialVault, *fakeAudit) {
	t.Helper()
	audit := &fakeAudit{}
	v, err := NewCredentialVault("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", audit)
	if err != nil {
		t.Fatalf("unexpected error constructing vault: %v", err)
	}
	return v, audit
}

func TestCredentialVault_SealAndReveal(t *testing.T) {
	v, audit := testVault(t)

	if v.Has("HF_TOKEN") {
		t.Fatal("expected HF_TOKEN to be absent before sealing")
	}

	if err := v.Seal("HF_TOKEN", "hf_abc123"); err != nil {
		t.Fatalf("unexpected seal error: %v", err)
	}
	if !v.Has("HF_TOKEN") {
		t.Fatal("expected HF_TOKEN to be present after sealing")
	}

	value, ok := v.Reveal("HF_TOKEN")
	if !ok || value != "hf_abc123" {
		t.Fatalf("expected revealed value hf_abc123, got %q ok=%v", value, ok)
	}

	found := false
	for _, e := range audit.events {
		if e == "credential_rotated" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a credential_rotated audit event on seal")
	}
}

func TestCredentialVault_RevealUnknownFails(t *testing.T) {
	v, _ := testVault(t)
	if _, ok := v.Reveal("NOPE"); ok {
		t.Fatal("expected revealing an unsealed credential to fail")
	}
	if _, err := v.RevealOrError("NOPE"); err == nil {
		t.Fatal("expected RevealOrError to return a ServiceError")
	}
}

func TestCredentialVault_Revoke(t *testing.T) {
	v, _ := testVault(t)
	v.Seal("KAGGLE_KEY", "kg-1")
	v.Revoke("KAGGLE_KEY")
	if v.Has("KAGGLE_KEY") {
		t.Fatal("expected credential to be gone after revoke")
	}
}

func TestCredentialVault_ListReturnsSortedNamesNeverValues(t *testing.T) {
	v, _ := testVault(t)
	v.Seal("PORKBUN_KEY", "pb-1")
	v.Seal("HF_TOKEN", "hf-1")

	names := v.List()
	if len(names) != 2 || names[0] != "HF_TOKEN" || names[1] != "PORKBUN_KEY" {
		t.Fatalf("expected sorted [HF_TOKEN PORKBUN_KEY], got %v", names)
	}

	v.Revoke("HF_TOKEN")
	if names := v.List(); len(names) != 1 || names[0] != "PORKBUN_KEY" {
		t.Fatalf("expected only PORKBUN_KEY after revoke, got %v", names)
	}
}

func TestCredentialVault_SealNormalizesWhitespaceAndHomoglyphs(t *testing.T) {
	v, _ := testVault(t)

	if err := v.Seal("HF_TOKEN", "  hf_аbc123  "); err != nil {
		t.Fatalf("unexpected seal error: %v", err)
	}
	value, ok := v.Reveal("HF_TOKEN")
	if !ok || value != "hf_abc123" {
		t.Fatalf("expected sanitized value hf_abc123, got %q ok=%v", value, ok)
	}
}
