// Package proof defines Stroma's trust-proof interface (spec.md §4.8):
// a VouchClaim a voucher wants to prove, the VouchProof a Backend
// produces, and structural verification that holds regardless of which
// backend generated the proof. Stroma's own scope stops at this
// interface — a full zero-knowledge proof system is explicitly out of
// scope (spec.md §1's Non-goals); HashCommitmentBackend below is a
// structurally-valid placeholder implementation, not a privacy-preserving
// one, and is meant to be swapped for a real ZK backend without touching
// any caller.
package proof

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"time"

	"github.com/pkg/errors"

	"github.com/roder/stroma/internal/codec"
	"github.com/roder/stroma/pkg/models"
)

// MaxProofBytes is the largest serialized VouchProof a Backend may
// produce, per spec.md §4.8.
const MaxProofBytes = 100 * 1024

// MaxProveDuration bounds how long Prove may run before the caller should
// treat the backend as failed.
const MaxProveDuration = 10 * time.Second

// VouchClaim is the statement a voucher wants to prove: "I am a member in
// good standing and I vouch for target."
type VouchClaim struct {
	Voucher models.MemberHash `cbor:"1,keyasint"`
	Target  models.MemberHash `cbor:"2,keyasint"`
	AsOf    int64             `cbor:"3,keyasint"`
}

// VouchProof is the opaque artifact a Backend produces for a VouchClaim.
// The Scheme tag names the backend that produced it; internal/engine
// holds a single Backend and hands every proof to that backend's Verify.
type VouchProof struct {
	Scheme  string `cbor:"1,keyasint"`
	Payload []byte `cbor:"2,keyasint"`
}

// Backend is the pluggable proof system Stroma depends on only through
// this interface (spec.md §1/§9's "explicit transport capabilities, not
// duck-typed mocks" design note applies equally here).
type Backend interface {
	Prove(claim VouchClaim) (VouchProof, error)
	Verify(claim VouchClaim, proof VouchProof) error
}

// ErrProofTooLarge / ErrProofInvalid are the taxonomy entries this
// package's structural checks can raise (spec.md §7: ProofFailed).
var (
	ErrProofTooLarge = errors.New("proof: exceeds maximum size")
	ErrProofInvalid  = errors.New("proof: structurally invalid")
)

// ValidateShape performs the backend-independent structural checks every
// VouchProof must pass before a caller even attempts Backend.Verify: size
// bound and non-empty payload. It does not replace Verify — it rejects
// obviously malformed input before spending backend time on it.
func ValidateShape(proof VouchProof) error {
	if len(proof.Payload) == 0 {
		return errors.Wrap(ErrProofInvalid, "empty payload")
	}
	if len(proof.Payload) > MaxProofBytes {
		return errors.Wrap(ErrProofTooLarge, "payload exceeds 100KiB")
	}
	if proof.Scheme == "" {
		return errors.Wrap(ErrProofInvalid, "missing scheme tag")
	}
	return nil
}

// HashCommitmentBackend is the default Backend: it commits to the claim
// with an HMAC keyed by a per-deployment secret, so Verify can check the
// proof was produced by someone holding that secret, without revealing
// the claim's contents to a third party that lacks it. This gives
// authenticity but not zero-knowledge soundness — see the package doc.
type HashCommitmentBackend struct {
	key []byte
}

// NewHashCommitmentBackend builds a backend keyed by secret. The caller
// retains ownership of secret's lifetime; the backend copies what it
// needs.
func NewHashCommitmentBackend(secret []byte) *HashCommitmentBackend {
	key := make([]byte, len(secret))
	copy(key, secret)
	return &HashCommitmentBackend{key: key}
}

const schemeHashCommitment = "stroma-hash-commitment-v1"

func (b *HashCommitmentBackend) Prove(claim VouchClaim) (VouchProof, error) {
	digest, err := claimDigest(b.key, claim)
	if err != nil {
		return VouchProof{}, errors.Wrap(err, "proof: build claim digest")
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return VouchProof{}, errors.Wrap(err, "proof: generate nonce")
	}
	payload := append(nonce, digest[:]...)
	return VouchProof{Scheme: schemeHashCommitment, Payload: payload}, nil
}

func (b *HashCommitmentBackend) Verify(claim VouchClaim, proof VouchProof) error {
	if err := ValidateShape(proof); err != nil {
		return err
	}
	if proof.Scheme != schemeHashCommitment {
		return errors.Wrapf(ErrProofInvalid, "unexpected scheme %q", proof.Scheme)
	}
	if len(proof.Payload) != 16+sha256.Size {
		return errors.Wrap(ErrProofInvalid, "unexpected payload length")
	}
	want, err := claimDigest(b.key, claim)
	if err != nil {
		return errors.Wrap(err, "proof: build claim digest")
	}
	got := proof.Payload[16:]
	if !hmac.Equal(got, want[:]) {
		return errors.Wrap(ErrProofInvalid, "commitment mismatch")
	}
	return nil
}

func claimDigest(key []byte, claim VouchClaim) ([32]byte, error) {
	encoded, err := codec.Marshal(claim)
	if err != nil {
		return [32]byte{}, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(encoded)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out, nil
}
