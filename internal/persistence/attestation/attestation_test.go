package attestation

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/roder/stroma/pkg/models"
)

func testChunkID(t *testing.T, seed byte) models.ChunkID {
	t.Helper()
	b := make([]byte, 32)
	b[0] = seed
	owner, err := models.MemberHashFromBytes(b)
	if err != nil {
		t.Fatalf("MemberHashFromBytes: %v", err)
	}
	return models.ChunkID{Owner: owner, Index: 3}
}

func testHolder(t *testing.T, seed byte) models.PeerHash {
	t.Helper()
	b := make([]byte, 32)
	b[0] = seed
	h, err := models.PeerHashFromBytes(b)
	if err != nil {
		t.Fatalf("PeerHashFromBytes: %v", err)
	}
	return h
}

func TestSignVerifyRoundtrip(t *testing.T) {
	key := []byte("per-holder attestation secret")
	chunkID := testChunkID(t, 1)
	holder := testHolder(t, 2)

	a := Sign(key, chunkID, holder, 1000)
	if !Verify(key, a) {
		t.Fatalf("expected attestation to verify under the signing key")
	}
	if Verify([]byte("a different secret"), a) {
		t.Fatalf("expected attestation to fail verification under a different key")
	}
}

// Property 10: attestation freshness. An attestation signed at t1 is
// rejected once evaluated beyond FreshnessWindow past t1.
func TestIsFreshWindow(t *testing.T) {
	chunkID := testChunkID(t, 1)
	holder := testHolder(t, 2)
	a := Sign([]byte("secret"), chunkID, holder, 1_000_000)

	withinWindow := int64(1_000_000) + int64(FreshnessWindow.Seconds()) - 1
	if !IsFresh(a, withinWindow) {
		t.Fatalf("expected attestation still fresh just inside the window")
	}

	atBoundary := int64(1_000_000) + int64(FreshnessWindow.Seconds())
	if !IsFresh(a, atBoundary) {
		t.Fatalf("expected attestation fresh exactly at the window boundary")
	}

	pastWindow := int64(1_000_000) + int64(FreshnessWindow.Seconds()) + 1
	if IsFresh(a, pastWindow) {
		t.Fatalf("expected attestation stale past the freshness window")
	}
}

func TestIsFreshRejectsNegativeAge(t *testing.T) {
	chunkID := testChunkID(t, 1)
	holder := testHolder(t, 2)
	a := Sign([]byte("secret"), chunkID, holder, 2_000_000)

	if IsFresh(a, 1_999_999) {
		t.Fatalf("expected an attestation with a future receipt time to be rejected, not treated as fresh")
	}
}

func TestRecoverFallsBackToNextHolder(t *testing.T) {
	chunkID := testChunkID(t, 1)
	h1 := testHolder(t, 2)
	h2 := testHolder(t, 3)

	attempts := map[models.PeerHash]int{}
	fetch := func(_ context.Context, holder models.PeerHash, _ models.ChunkID) ([]byte, error) {
		attempts[holder]++
		if holder == h1 {
			return nil, errors.New("holder unreachable")
		}
		return []byte("recovered payload"), nil
	}

	data, err := Recover(context.Background(), fetch, []models.PeerHash{h1, h2}, chunkID, 1)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if string(data) != "recovered payload" {
		t.Fatalf("unexpected recovered payload: %q", data)
	}
	if attempts[h2] != 1 {
		t.Fatalf("expected exactly one successful attempt against the fallback holder, got %d", attempts[h2])
	}
}

func TestRecoverExhaustsAllHolders(t *testing.T) {
	chunkID := testChunkID(t, 1)
	h1 := testHolder(t, 2)

	fetch := func(_ context.Context, _ models.PeerHash, _ models.ChunkID) ([]byte, error) {
		return nil, errors.New("holder unreachable")
	}

	_, err := Recover(context.Background(), fetch, []models.PeerHash{h1}, chunkID, 0)
	if err != ErrAllHoldersFailed {
		t.Fatalf("expected ErrAllHoldersFailed, got %v", err)
	}
}
