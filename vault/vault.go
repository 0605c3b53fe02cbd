// Package vault implements CredentialVault: sealed credential handles,
// AES-GCM encryption at rest, and per-access audit records. Credential
// values never leave the vault boundary in plaintext except through
// Reveal, which callers use only to build outgoing auth headers.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
	"crypto/sha256"

	crgerrors "github.com/nexus-shell/crag/internal/errors"
	"github.com/nexus-shell/crag/rotation"
)

// Sanitizer normalizes a raw credential value before Seal encrypts it, so
// that two values differing only in surrounding whitespace or a look-alike
// Unicode character seal identically (spec §4.5).
type Sanitizer func(raw string) string

// homoglyphs maps Cyrillic and Greek letters commonly confused with Latin
// look-alikes onto their Latin equivalent.
var homoglyphs = map[rune]rune{
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'у': 'y', 'х': 'x',
	'А': 'A', 'Е': 'E', 'О': 'O', 'Р': 'P', 'С': 'C', 'У': 'Y', 'Х': 'X',
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M', 'Ν': 'N',
	'Ο': 'O', 'Ρ': 'P', 'Τ': 'T', 'Χ': 'X',
}

// DefaultSanitizer trims surrounding whitespace and folds homoglyph
// characters onto their Latin equivalent.
func DefaultSanitizer(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if repl, ok := homoglyphs[r]; ok {
			r = repl
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MasterKeyEnv is the environment variable CredentialVault reads its master
// key from, grounded on the teacher's secrets.MasterKeyEnv convention.
const MasterKeyEnv = "CRAG_VAULT_MASTER_KEY"

type sealedHandle struct {
	ciphertext []byte // nonce prefix + AES-GCM sealed value
}

// AuditSink is the narrow view CredentialVault needs of AuditLog.
type AuditSink interface {
	Record(kind string, payload map[string]interface{})
}

// CredentialVault seals named credential values behind AES-GCM, keyed by a
// single process master key. Grounded on
// infrastructure/secrets/manager.go's Manager (normalizeMasterKey,
// encrypt/decryptSecretValue with a random nonce prefix) and
// infrastructure/secrets/types.go/provider.go for the error taxonomy.
type CredentialVault struct {
	mu       sync.RWMutex
	aead     cipher.AEAD
	sealed   map[rotation.CredentialName]*sealedHandle
	audit    AuditSink
	sanitize Sanitizer
}

// NewCredentialVault builds a vault from a raw master key, accepting either
// a 64-char hex string or, only when CRAG_ENV, GO_ENV or NODE_ENV is set to
// "development" or "dev", a 32-byte plaintext key, the same normalization
// the teacher's Manager performs.
func NewCredentialVault(rawKey string, audit AuditSink) (*CredentialVault, error) {
	key, err := normalizeMasterKey(rawKey)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: building AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: building AES-GCM: %w", err)
	}
	return &CredentialVault{
		aead:     aead,
		sealed:   make(map[rotation.CredentialName]*sealedHandle),
		audit:    audit,
		sanitize: DefaultSanitizer,
	}, nil
}

// SetSanitizer overrides the value normalizer Seal applies, for deployments
// that need a stricter or domain-specific sanitizer than DefaultSanitizer.
func (v *CredentialVault) SetSanitizer(s Sanitizer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s == nil {
		s = DefaultSanitizer
	}
	v.sanitize = s
}

// NewCredentialVaultFromEnv reads the master key from MasterKeyEnv.
func NewCredentialVaultFromEnv(audit AuditSink) (*CredentialVault, error) {
	raw := os.Getenv(MasterKeyEnv)
	if raw == "" {
		return nil, fmt.Errorf("vault: %s is required", MasterKeyEnv)
	}
	return NewCredentialVault(raw, audit)
}

func normalizeMasterKey(raw string) ([]byte, error) {
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil && len(decoded) == 32 {
			return decoded, nil
		}
	}
	if len(raw) == 32 && isDevEnv() {
		return []byte(raw), nil
	}
	return nil, fmt.Errorf("vault: master key must be 64 hex chars, or 32 raw bytes in a dev environment")
}

func isDevEnv() bool {
	for _, k := range []string{"CRAG_ENV", "GO_ENV", "NODE_ENV"} {
		if strings.EqualFold(os.Getenv(k), "development") || strings.EqualFold(os.Getenv(k), "dev") {
			return true
		}
	}
	return false
}

// Seal normalizes value through the vault's Sanitizer, encrypts the
// normalized value, and stores it under name, replacing any prior value.
func (v *CredentialVault) Seal(name rotation.CredentialName, value string) error {
	v.mu.RLock()
	sanitize := v.sanitize
	v.mu.RUnlock()
	value = sanitize(value)

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("vault: generating nonce: %w", err)
	}
	ciphertext := v.aead.Seal(nonce, nonce, []byte(value), nil)

	v.mu.Lock()
	v.sealed[name] = &sealedHandle{ciphertext: ciphertext}
	v.mu.Unlock()

	v.audit.Record("credential_rotated", map[string]interface{}{"credential": string(name)})
	return nil
}

// Has reports whether name is currently sealed, without revealing it. This
// is the CredentialChecker predicate TierGate is constructed with.
func (v *CredentialVault) Has(name rotation.CredentialName) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.sealed[name]
	return ok
}

// Reveal decrypts and returns the raw value for name. Every call is
// audited; the value itself is never logged (spec §4.12).
func (v *CredentialVault) Reveal(name rotation.CredentialName) (string, bool) {
	v.mu.RLock()
	handle, ok := v.sealed[name]
	v.mu.RUnlock()
	if !ok {
		return "", false
	}

	nonceSize := v.aead.NonceSize()
	if len(handle.ciphertext) < nonceSize {
		return "", false
	}
	nonce, ciphertext := handle.ciphertext[:nonceSize], handle.ciphertext[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", false
	}
	v.audit.Record("credential_revealed", map[string]interface{}{"credential": string(name)})
	return string(plaintext), true
}

// RevealOrError is Reveal's ServiceError-returning counterpart for callers
// on the external interface boundary.
func (v *CredentialVault) RevealOrError(name rotation.CredentialName) (string, error) {
	value, ok := v.Reveal(name)
	if !ok {
		return "", crgerrors.CredentialUnknown(string(name))
	}
	return value, nil
}

// List returns every currently sealed credential's name, in sorted order.
// Never returns values (spec §4.5's list() invariant).
func (v *CredentialVault) List() []rotation.CredentialName {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]rotation.CredentialName, 0, len(v.sealed))
	for name := range v.sealed {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Revoke deletes a sealed credential.
func (v *CredentialVault) Revoke(name rotation.CredentialName) {
	v.mu.Lock()
	delete(v.sealed, name)
	v.mu.Unlock()
	v.audit.Record("credential_rotated", map[string]interface{}{"credential": string(name), "revoked": true})
}

// DeriveSubkey derives a purpose-scoped subkey from the master secret via
// HKDF-SHA256, for components (e.g. export signing) that need a key
// distinct from the one sealing credentials but rooted in the same secret.
func (v *CredentialVault) DeriveSubkey(masterKey []byte, purpose string, length int) ([]byte, error) {
	h := hkdf.New(sha256.New, masterKey, nil, []byte(purpose))
	out := make([]byte, length)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, fmt.Errorf("vault: deriving subkey: %w", err)
	}
	return out, nil
}
