// Package codec provides Stroma's sole wire encoding: deterministic,
// canonical CBOR. JSON is never used on the replication or persistence
// path (spec.md §6) — map key order, integer width, and float
// representation are all fixed so two replicas encoding the same value
// always produce byte-identical output, which the replication layer
// leans on for content hashing and duplicate suppression.
package codec

import (
	"crypto/sha256"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(errors.Wrap(err, "codec: build canonical encode mode"))
	}
	encMode = m

	dopts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	d, err := dopts.DecMode()
	if err != nil {
		panic(errors.Wrap(err, "codec: build strict decode mode"))
	}
	decMode = d
}

// Marshal encodes v as canonical CBOR: sorted map keys, shortest-form
// integers, no indefinite-length items.
func Marshal(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "codec: marshal")
	}
	return b, nil
}

// Unmarshal decodes canonical CBOR into v, rejecting duplicate map keys
// and indefinite-length items rather than silently accepting a
// non-canonical encoding.
func Unmarshal(data []byte, v interface{}) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "codec: unmarshal")
	}
	return nil
}

// Digest returns SHA-256 of v's canonical CBOR encoding. Because the
// encoding is deterministic, Digest(v) is stable across processes and
// replicas for any value equal to v, letting callers use it as a content
// address (audit entry-hash tiebreaks, chunk Merkle leaves).
func Digest(v interface{}) ([32]byte, error) {
	b, err := Marshal(v)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}
