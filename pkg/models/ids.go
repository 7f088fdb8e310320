// Package models holds the wire-level and domain types shared across the
// Stroma engine: identifiers, replicated state, deltas, configuration,
// audit entries, governance proposals, and the persistence-layer records.
package models

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
)

// MemberHash is a 32-byte opaque identifier produced by
// HMAC-SHA256(identity_secret, external_id). It reuses chainhash.Hash's
// fixed-width, comparable, hex-stringable array shape rather than inventing
// a parallel type — the contract is identical: a 32-byte value equal iff the
// external id and the masking key both match.
type MemberHash chainhash.Hash

// PeerHash identifies a persistence-network peer the same way a MemberHash
// identifies a group member. Peers are masked with the same HMAC as
// members (identity.MaskPeer); the types are kept distinct so a peer id
// can never be mistaken for a member id at compile time.
type PeerHash chainhash.Hash

// ProposalId identifies an ActiveProposal. Unlike MemberHash it is never
// derived from an external identifier — it is a fresh random value minted
// at proposal creation.
type ProposalId [16]byte

var (
	zeroMemberHash MemberHash
	zeroPeerHash   PeerHash
)

func (h MemberHash) String() string { return chainhash.Hash(h).String() }
func (h PeerHash) String() string   { return chainhash.Hash(h).String() }

// IsZero reports whether the hash is the all-zero sentinel, used to signal
// "no value" without an extra option wrapper in hot paths.
func (h MemberHash) IsZero() bool { return h == zeroMemberHash }
func (h PeerHash) IsZero() bool   { return h == zeroPeerHash }

// Bytes returns the raw 32 bytes backing the hash.
func (h MemberHash) Bytes() []byte { c := chainhash.Hash(h); b := make([]byte, len(c)); copy(b, c[:]); return b }
func (h PeerHash) Bytes() []byte   { c := chainhash.Hash(h); b := make([]byte, len(c)); copy(b, c[:]); return b }

// MarshalBinary/UnmarshalBinary let the CBOR codec (which honours
// encoding.BinaryMarshaler) encode these as plain byte strings instead of
// 32-element integer arrays.
func (h MemberHash) MarshalBinary() ([]byte, error) { return h.Bytes(), nil }
func (h PeerHash) MarshalBinary() ([]byte, error)   { return h.Bytes(), nil }

func (h *MemberHash) UnmarshalBinary(b []byte) error {
	c, err := chainhash.NewHash(b)
	if err != nil {
		return err
	}
	*h = MemberHash(*c)
	return nil
}

func (h *PeerHash) UnmarshalBinary(b []byte) error {
	c, err := chainhash.NewHash(b)
	if err != nil {
		return err
	}
	*h = PeerHash(*c)
	return nil
}

// MemberHashFromBytes builds a MemberHash from exactly 32 bytes, as produced
// by an HMAC-SHA256 digest.
func MemberHashFromBytes(b []byte) (MemberHash, error) {
	c, err := chainhash.NewHash(b)
	if err != nil {
		return MemberHash{}, err
	}
	return MemberHash(*c), nil
}

// PeerHashFromBytes builds a PeerHash from exactly 32 bytes.
func PeerHashFromBytes(b []byte) (PeerHash, error) {
	c, err := chainhash.NewHash(b)
	if err != nil {
		return PeerHash{}, err
	}
	return PeerHash(*c), nil
}

// MemberHashFromHex parses a hex-encoded MemberHash, mirroring the teacher's
// chainhash.NewHashFromStr(txid) parsing of operator-supplied identifiers.
func MemberHashFromHex(s string) (MemberHash, error) {
	c, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return MemberHash{}, err
	}
	return MemberHash(*c), nil
}

// String renders a ProposalId in standard UUID form.
func (id ProposalId) String() string { return uuid.UUID(id).String() }

// ProposalIdFromString parses a UUID-form proposal id from the command
// surface.
func ProposalIdFromString(s string) (ProposalId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ProposalId{}, err
	}
	return ProposalId(u), nil
}

// ContractRef names the replicated federation contract a TrustNetworkState
// belongs to. Pre-federation deployments use a single implicit contract.
type ContractRef struct {
	ID        chainhash.Hash `cbor:"1,keyasint"`
	GroupName string         `cbor:"2,keyasint"`
}
