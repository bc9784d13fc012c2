// Package verifier validates signed off-book messages before they reach the
// engine: nonce and group replay protection, expiry, domain binding, and a
// pluggable signature check. The cryptography itself is injected; the
// verifier only decides authorized or a specific rejection.
package verifier

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidSignature = errors.New("verifier: invalid signature")
	ErrInvalidSigner    = errors.New("verifier: signer not authorized for account")
	ErrInvalidNonce     = errors.New("verifier: nonce already used")
	ErrInvalidGroup     = errors.New("verifier: group cancelled")
	ErrExpired          = errors.New("verifier: message expired")
	ErrInvalidDomain    = errors.New("verifier: wrong domain")
)

// Common is the envelope every signed message carries.
type Common struct {
	ID      uuid.UUID // message id, for tracing
	Account string    // account the message acts on
	Signer  string    // key that produced the signature
	Domain  string    // market or protocol surface the message binds to
	Nonce   uint64    // single-use replay protection
	Group   uint64    // batch-cancel handle
	Expiry  time.Time // zero means no expiry
}

// SignatureFunc reports whether sig is a valid signature by signer over the
// message bytes.
type SignatureFunc func(signer string, message, sig []byte) bool

// SignerFunc reports whether signer may act for account.
type SignerFunc func(account, signer string) bool

// Ed25519Signature is the default SignatureFunc: signer identities are
// hex-encoded ed25519 public keys.
func Ed25519Signature(signer string, message, sig []byte) bool {
	key, err := hex.DecodeString(signer)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(key), message, sig)
}

// Verifier checks message envelopes. Nonce and group state is per-account.
type Verifier struct {
	mu     sync.Mutex
	domain string

	validSignature SignatureFunc
	validSigner    SignerFunc

	nonces map[string]map[uint64]bool
	groups map[string]map[uint64]bool // cancelled groups
}

func New(domain string, sig SignatureFunc, signer SignerFunc) *Verifier {
	return &Verifier{
		domain:         domain,
		validSignature: sig,
		validSigner:    signer,
		nonces:         make(map[string]map[uint64]bool),
		groups:         make(map[string]map[uint64]bool),
	}
}

// Verify validates the envelope and signature and burns the nonce. A failed
// check leaves the nonce unused.
func (v *Verifier) Verify(c Common, message, sig []byte, now time.Time) error {
	if c.Domain != v.domain {
		return ErrInvalidDomain
	}
	if !c.Expiry.IsZero() && now.After(c.Expiry) {
		return ErrExpired
	}
	if !v.validSigner(c.Account, c.Signer) {
		return ErrInvalidSigner
	}
	if !v.validSignature(c.Signer, message, sig) {
		return ErrInvalidSignature
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.groups[c.Account][c.Group] {
		return ErrInvalidGroup
	}
	if v.nonces[c.Account][c.Nonce] {
		return ErrInvalidNonce
	}
	if v.nonces[c.Account] == nil {
		v.nonces[c.Account] = make(map[uint64]bool)
	}
	v.nonces[c.Account][c.Nonce] = true
	return nil
}

// CancelNonce burns a nonce without using it.
func (v *Verifier) CancelNonce(account string, nonce uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.nonces[account] == nil {
		v.nonces[account] = make(map[uint64]bool)
	}
	v.nonces[account][nonce] = true
}

// CancelGroup invalidates every outstanding message in the group.
func (v *Verifier) CancelGroup(account string, group uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.groups[account] == nil {
		v.groups[account] = make(map[uint64]bool)
	}
	v.groups[account][group] = true
}
