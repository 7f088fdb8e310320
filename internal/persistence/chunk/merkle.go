package chunk

import (
	"crypto/sha256"

	"github.com/roder/stroma/pkg/models"
)

// MerkleLeaf is SHA-256 over a chunk's HMAC, not its ciphertext directly —
// committing to the already-integrity-checked HMAC means a corrupted
// ciphertext that still happens to hash the same under SHA-256 (not
// computationally feasible, but this keeps the leaf derivation and the
// chunk's own authentication tied to the same digest) is caught by Open
// before the Merkle proof is ever consulted.
func MerkleLeaf(c models.Chunk) [32]byte {
	return sha256.Sum256(c.HMAC[:])
}

// Root computes the Merkle root over an ordered list of chunks. An odd
// node at any level is promoted unchanged to the next level rather than
// duplicated — duplicating the last node is a known construction that
// lets an attacker forge a proof for a balanced subtree out of an
// unbalanced one; promotion avoids that class of issue entirely, at the
// cost of a slightly less balanced tree.
func Root(chunks []models.Chunk) [32]byte {
	if len(chunks) == 0 {
		return [32]byte{}
	}
	level := make([][32]byte, len(chunks))
	for i, c := range chunks {
		level[i] = MerkleLeaf(c)
	}
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			h := sha256.New()
			h.Write(level[i][:])
			h.Write(level[i+1][:])
			var combined [32]byte
			copy(combined[:], h.Sum(nil))
			next = append(next, combined)
		}
		level = next
	}
	return level[0]
}
