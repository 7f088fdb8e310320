// Package attestation implements holder receipt generation, freshness
// checking, and recovery (spec.md §4.16): a holder periodically signs an
// HMAC receipt proving possession of a chunk; a receipt older than the
// freshness window no longer counts toward a chunk's replication health,
// and recovery falls back to the next-ranked rendezvous holder with
// bounded exponential backoff.
package attestation

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"hash"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/roder/stroma/pkg/models"
)

// FreshnessWindow is how long an attestation remains valid evidence of
// possession before it must be refreshed.
const FreshnessWindow = 15 * time.Minute

// DefaultMaxRetries bounds the recovery fallback chain, per spec.md
// §4.16.
const DefaultMaxRetries = 3

// Sign produces an Attestation for holder's possession of chunkID at
// receiptTime, HMAC'd under key (a per-holder secret distinct from any
// identity-masking or chunk-encryption key).
func Sign(key []byte, chunkID models.ChunkID, holder models.PeerHash, receiptTime int64) models.Attestation {
	a := models.Attestation{ChunkID: chunkID, Holder: holder, ReceiptTime: receiptTime}
	a.HMAC = attestationHMAC(key, a)
	return a
}

// Verify checks a's HMAC under key.
func Verify(key []byte, a models.Attestation) bool {
	return hmac.Equal(attestationHMAC(key, a)[:], a.HMAC[:])
}

func attestationHMAC(key []byte, a models.Attestation) [32]byte {
	h := hmacNew(key)
	h.Write(a.ChunkID.Owner.Bytes())
	var idx [4]byte
	idx[0] = byte(a.ChunkID.Index >> 24)
	idx[1] = byte(a.ChunkID.Index >> 16)
	idx[2] = byte(a.ChunkID.Index >> 8)
	idx[3] = byte(a.ChunkID.Index)
	h.Write(idx[:])
	h.Write(a.Holder.Bytes())
	var ts [8]byte
	t := a.ReceiptTime
	for i := 7; i >= 0; i-- {
		ts[i] = byte(t)
		t >>= 8
	}
	h.Write(ts[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hmacNew(key []byte) hash.Hash {
	return hmac.New(sha256.New, key)
}

// IsFresh reports whether a was signed within FreshnessWindow of nowSec.
func IsFresh(a models.Attestation, nowSec int64) bool {
	age := nowSec - a.ReceiptTime
	return age >= 0 && time.Duration(age)*time.Second <= FreshnessWindow
}

// FetchFunc retrieves a chunk's plaintext from a specific holder.
type FetchFunc func(ctx context.Context, holder models.PeerHash, chunkID models.ChunkID) ([]byte, error)

// ErrAllHoldersFailed indicates recovery exhausted every candidate holder
// without success.
var ErrAllHoldersFailed = errors.New("attestation: all holders failed")

// Recover attempts to fetch chunkID from each holder in rendezvous-rank
// order, falling back to the next holder on failure, retrying each
// holder with bounded exponential backoff up to maxRetries before moving
// on.
func Recover(ctx context.Context, fetch FetchFunc, holders []models.PeerHash, chunkID models.ChunkID, maxRetries uint64) ([]byte, error) {
	for _, holder := range holders {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0
		bctx := backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)

		var data []byte
		err := backoff.Retry(func() error {
			d, ferr := fetch(ctx, holder, chunkID)
			if ferr != nil {
				return ferr
			}
			data = d
			return nil
		}, bctx)
		if err == nil {
			return data, nil
		}
	}
	return nil, ErrAllHoldersFailed
}
