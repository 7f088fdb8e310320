// Package rendezvous implements Stroma's holder-assignment hashing
// (spec.md §4.14): scoring every known peer against a chunk via
// SHA-256(peer_id || chunk_id || epoch) and picking the top-k highest
// scorers as that chunk's holders. Rendezvous (highest random weight)
// hashing gives two properties the persistence layer depends on: any two
// replicas computing holders_for the same (chunk, epoch, peer set) agree
// without coordination, and adding or removing one peer only reshuffles
// the chunks that peer was or will be responsible for, not the entire
// assignment.
package rendezvous

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/roder/stroma/pkg/models"
)

// DefaultTopK is the number of remote holders assigned per chunk, per
// spec.md §4.14.
const DefaultTopK = 2

// LocalCopies is how many additional copies the owner itself retains on
// top of DefaultTopK remote holders, bringing the total replication
// factor to 3.
const LocalCopies = 1

func score(peer models.PeerHash, chunkID models.ChunkID, epoch uint64) [32]byte {
	h := sha256.New()
	h.Write(peer.Bytes())
	h.Write(chunkID.Owner.Bytes())
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], chunkID.Index)
	h.Write(idx[:])
	var ep [8]byte
	binary.BigEndian.PutUint64(ep[:], epoch)
	h.Write(ep[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HoldersFor ranks candidates by their rendezvous score against chunkID
// at epoch and returns the top topK, highest score first. Ties (which
// occur only with negligible probability over a 256-bit digest) break on
// peer hash byte order so the result stays deterministic.
func HoldersFor(candidates []models.PeerHash, chunkID models.ChunkID, epoch uint64, topK int) []models.PeerHash {
	type scored struct {
		peer models.PeerHash
		s    [32]byte
	}
	ranked := make([]scored, len(candidates))
	for i, p := range candidates {
		ranked[i] = scored{peer: p, s: score(p, chunkID, epoch)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		cmp := compareBytes(ranked[i].s[:], ranked[j].s[:])
		if cmp != 0 {
			return cmp > 0
		}
		return ranked[i].peer.String() < ranked[j].peer.String()
	})
	if topK > len(ranked) {
		topK = len(ranked)
	}
	out := make([]models.PeerHash, topK)
	for i := 0; i < topK; i++ {
		out[i] = ranked[i].peer
	}
	return out
}

func compareBytes(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
