package models

// MaxChunkPlaintextBytes is the largest plaintext payload one Chunk may
// carry before encryption, per spec.md §3/§4.13.
const MaxChunkPlaintextBytes = 64 * 1024

// Chunk is one encrypted, fixed-size unit of persisted replicated state.
// Ciphertext is AES-256-GCM output (<=64KiB); HMAC covers owner, index,
// nonce and ciphertext so a holder cannot truncate or reorder chunks
// without detection.
type Chunk struct {
	Owner      MemberHash `cbor:"1,keyasint"`
	Index      uint32     `cbor:"2,keyasint"`
	Ciphertext []byte     `cbor:"3,keyasint"`
	Nonce      [12]byte   `cbor:"4,keyasint"`
	HMAC       [32]byte   `cbor:"5,keyasint"`
}

// ChunkID is the stable identifier rendezvous hashing scores peers
// against: it is derived from (Owner, Index), never from content, so a
// chunk's holder set survives the owner re-encrypting its contents.
type ChunkID struct {
	Owner MemberHash `cbor:"1,keyasint"`
	Index uint32     `cbor:"2,keyasint"`
}

// Attestation is a holder's signed receipt that it currently possesses a
// chunk, refreshed within the freshness window internal/persistence's
// attestation/recovery component enforces.
type Attestation struct {
	ChunkID     ChunkID    `cbor:"1,keyasint"`
	Holder      PeerHash   `cbor:"2,keyasint"`
	ReceiptTime int64      `cbor:"3,keyasint"`
	HMAC        [32]byte   `cbor:"4,keyasint"`
}

// ReplicationState names the four write-blocking health states a
// persistence network can be in, per spec.md §4.15.
type ReplicationState uint8

const (
	ReplicationProvisional ReplicationState = iota
	ReplicationActive
	ReplicationDegraded
	ReplicationIsolated
)

// BlocksWrites reports whether new writes must be refused in this state.
// Only Degraded blocks writes outright; Isolated already has none to
// block and Provisional is still accumulating its initial holder set.
func (s ReplicationState) BlocksWrites() bool { return s == ReplicationDegraded }

// PeerRecord is one entry in the persistence network's peer registry.
// Removal is remove-wins: once tombstoned, a peer hash cannot be
// re-admitted under the same hash (spec.md §6's persisted-state layout).
type PeerRecord struct {
	Peer      PeerHash `cbor:"1,keyasint"`
	JoinedAt  int64    `cbor:"2,keyasint"`
	Tombstone bool     `cbor:"3,keyasint"`
}

// MerkleRoot is the signed digest over a full chunk set's leaves, covering
// the owner's entire persisted payload at one epoch.
type MerkleRoot struct {
	Epoch     uint64   `cbor:"1,keyasint"`
	Root      [32]byte `cbor:"2,keyasint"`
	Signature []byte   `cbor:"3,keyasint"`
}
