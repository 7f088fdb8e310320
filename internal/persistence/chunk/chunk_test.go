package chunk

import (
	"bytes"
	"testing"

	"github.com/roder/stroma/pkg/models"
)

func testOwner(t *testing.T, seed byte) models.MemberHash {
	t.Helper()
	b := make([]byte, 32)
	b[0] = seed
	h, err := models.MemberHashFromBytes(b)
	if err != nil {
		t.Fatalf("MemberHashFromBytes: %v", err)
	}
	return h
}

// Property 9: encryption roundtrip. decrypt(encrypt(s,k),k) = s;
// decrypt(encrypt(s,k1),k2!=k1) fails.
func TestSealOpenRoundtrip(t *testing.T) {
	owner := testOwner(t, 1)
	key, err := DeriveKey([]byte("a reasonably long root secret"), owner)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	defer key.Zero()

	plaintext := []byte("hello stroma chunk")
	c, err := Seal(key, owner, 7, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := Open(key, c)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("roundtrip mismatch: got %q want %q", got, plaintext)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	owner := testOwner(t, 1)
	key1, err := DeriveKey([]byte("root secret one"), owner)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	defer key1.Zero()
	key2, err := DeriveKey([]byte("root secret two"), owner)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	defer key2.Zero()

	c, err := Seal(key1, owner, 0, []byte("secret payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(key2, c); err == nil {
		t.Fatalf("expected Open under the wrong key to fail")
	}
}

func TestSealRejectsOversizePlaintext(t *testing.T) {
	owner := testOwner(t, 1)
	key, err := DeriveKey([]byte("root secret"), owner)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	defer key.Zero()

	oversize := make([]byte, models.MaxChunkPlaintextBytes+1)
	if _, err := Seal(key, owner, 0, oversize); err != ErrPlaintextTooLarge {
		t.Fatalf("expected ErrPlaintextTooLarge, got %v", err)
	}
}

func TestSplit(t *testing.T) {
	data := make([]byte, models.MaxChunkPlaintextBytes+10)
	parts := Split(data)
	if len(parts) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(parts))
	}
	if len(parts[0]) != models.MaxChunkPlaintextBytes || len(parts[1]) != 10 {
		t.Fatalf("unexpected chunk sizes: %d, %d", len(parts[0]), len(parts[1]))
	}
}
