package codec

import (
	"bytes"
	"testing"

	"github.com/roder/stroma/pkg/models"
)

// Property 11: CBOR determinism. Two independent encodings of equal states
// produce byte-identical output.
func TestMarshalDeterministic(t *testing.T) {
	s := models.NewTrustNetworkState("group-one")
	s.Config.MinVouches = 3

	b1, err := Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b2, err := Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatalf("two encodings of the same value diverged")
	}

	clone := s.Clone()
	b3, err := Marshal(clone)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(b1, b3) {
		t.Fatalf("encoding of a deep-equal clone diverged from the original")
	}
}

func TestDigestStable(t *testing.T) {
	s := models.NewTrustNetworkState("group-two")
	d1, err := Digest(s)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	d2, err := Digest(s.Clone())
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if d1 != d2 {
		t.Fatalf("Digest not stable across clones: %x != %x", d1, d2)
	}
}

func TestUnmarshalRejectsDuplicateMapKeys(t *testing.T) {
	// A two-element definite-length map with the same integer key twice,
	// each mapping to a text string — a hand-built malformed encoding the
	// strict DecMode must reject.
	malformed := []byte{
		0xa2,             // map(2)
		0x01, 0x61, 0x61, // 1: "a"
		0x01, 0x61, 0x62, // 1: "b" (duplicate key)
	}
	var out map[int]string
	if err := Unmarshal(malformed, &out); err == nil {
		t.Fatalf("expected duplicate-key decode to fail, got %v", out)
	}
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	s := models.NewTrustNetworkState("group-three")
	s.Config.MaxFlags = 5

	b, err := Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out models.TrustNetworkState
	if err := Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.GroupName != s.GroupName || out.Config.MaxFlags != s.Config.MaxFlags {
		t.Fatalf("roundtrip mismatch: got %+v", out)
	}
}
