// Package identity implements Stroma's identity masking primitives: a
// per-deployment masking key derived once via HKDF-SHA256, and an
// HMAC-SHA256 mask function that turns an external identifier into an
// opaque MemberHash. No cleartext identifier is ever persisted; only the
// masked hash crosses into models.TrustNetworkState.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/roder/stroma/internal/sensitive"
	"github.com/roder/stroma/pkg/models"
)

// saltIdentityMasking is the fixed HKDF salt for identity-masking key
// derivation. Fixing the salt (rather than randomizing it per deployment)
// keeps derive_key deterministic given the same secret, which is required
// for the masking-determinism testable property in spec.md §8.
const saltIdentityMasking = "stroma-identity-masking-v1"

// KeySize is the derived masking key length: one SHA-256 block.
const KeySize = sha256.Size

// DeriveKey derives the deployment's identity-masking key from a root
// secret via HKDF-SHA256 with the fixed salt and empty info, per
// spec.md §4.1. The returned Buffer must be zeroed by the caller.
func DeriveKey(secret []byte) (*sensitive.Buffer, error) {
	if len(secret) == 0 {
		return nil, errors.New("identity: empty root secret")
	}
	r := hkdf.New(sha256.New, secret, []byte(saltIdentityMasking), nil)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrap(err, "identity: hkdf expand")
	}
	return sensitive.New(key), nil
}

// Mask computes MemberHash = HMAC-SHA256(key, externalID). The same
// (key, externalID) pair always yields the same hash (determinism); two
// different external ids under the same key yield unrelated hashes with
// overwhelming probability (isolation), the two properties spec.md §8
// requires 256+ property-test cases for.
func Mask(key *sensitive.Buffer, externalID []byte) (models.MemberHash, error) {
	if key == nil || key.Len() == 0 {
		return models.MemberHash{}, errors.New("identity: nil masking key")
	}
	mac := hmac.New(sha256.New, key.Bytes())
	if _, err := mac.Write(externalID); err != nil {
		return models.MemberHash{}, errors.Wrap(err, "identity: hmac write")
	}
	return models.MemberHashFromBytes(mac.Sum(nil))
}

// MaskPeer computes a PeerHash with exactly the same HMAC as Mask, so a
// peer and a member masked from the same external id under the same key
// carry the same 32 bytes; only their Go types differ.
func MaskPeer(key *sensitive.Buffer, externalID []byte) (models.PeerHash, error) {
	h, err := Mask(key, externalID)
	if err != nil {
		return models.PeerHash{}, err
	}
	return models.PeerHash(h), nil
}
