// Package chunk implements Stroma's persistence chunking and encryption
// layer (spec.md §4.13): splitting a replicated state snapshot into
// <=64KiB plaintext chunks, encrypting each with AES-256-GCM under a key
// derived via HKDF-SHA256, and computing a Merkle root whose leaves hash
// each chunk's HMAC (see merkle.go), so an operator can attest to a full
// snapshot with one signature instead of one per chunk. This package
// computes the root; it does not sign it.
package chunk

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/roder/stroma/internal/sensitive"
	"github.com/roder/stroma/pkg/models"
)

// saltChunkEncryption is the fixed HKDF salt for chunk-key derivation,
// distinct from identity masking's salt so the two key spaces can never
// collide even if both were ever derived from the same root secret.
const saltChunkEncryption = "stroma-chunk-v1"

// DeriveKey derives the AES-256 chunk-encryption key for owner from a
// root secret. The returned Buffer must be zeroed by the caller.
func DeriveKey(secret []byte, owner models.MemberHash) (*sensitive.Buffer, error) {
	if len(secret) == 0 {
		return nil, errors.New("chunk: empty root secret")
	}
	r := hkdf.New(sha256.New, secret, []byte(saltChunkEncryption), owner.Bytes())
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrap(err, "chunk: hkdf expand")
	}
	return sensitive.New(key), nil
}

// ErrPlaintextTooLarge rejects a payload over MaxChunkPlaintextBytes.
var ErrPlaintextTooLarge = errors.New("chunk: plaintext exceeds 64KiB")

// Seal encrypts plaintext into a models.Chunk under key, for the given
// owner and index. AES-256-GCM provides both confidentiality and
// integrity over the ciphertext; HMAC additionally covers owner and
// index so a holder cannot relabel a chunk under a different identity or
// position without detection.
func Seal(key *sensitive.Buffer, owner models.MemberHash, index uint32, plaintext []byte) (models.Chunk, error) {
	if len(plaintext) > models.MaxChunkPlaintextBytes {
		return models.Chunk{}, ErrPlaintextTooLarge
	}
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return models.Chunk{}, errors.Wrap(err, "chunk: new cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return models.Chunk{}, errors.Wrap(err, "chunk: new gcm")
	}
	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return models.Chunk{}, errors.Wrap(err, "chunk: generate nonce")
	}
	ciphertext := gcm.Seal(nil, nonce[:], plaintext, nil)

	c := models.Chunk{Owner: owner, Index: index, Ciphertext: ciphertext, Nonce: nonce}
	c.HMAC = chunkHMAC(key, c)
	return c, nil
}

// Open decrypts and verifies a models.Chunk under key, rejecting it if
// either the HMAC or the GCM tag fails to verify.
func Open(key *sensitive.Buffer, c models.Chunk) ([]byte, error) {
	if chunkHMAC(key, c) != c.HMAC {
		return nil, errors.New("chunk: hmac verification failed")
	}
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "chunk: new cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "chunk: new gcm")
	}
	plaintext, err := gcm.Open(nil, c.Nonce[:], c.Ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "chunk: gcm open")
	}
	return plaintext, nil
}

func chunkHMAC(key *sensitive.Buffer, c models.Chunk) [32]byte {
	mac := hmac.New(sha256.New, key.Bytes())
	mac.Write(c.Owner.Bytes())
	var idx [4]byte
	idx[0] = byte(c.Index >> 24)
	idx[1] = byte(c.Index >> 16)
	idx[2] = byte(c.Index >> 8)
	idx[3] = byte(c.Index)
	mac.Write(idx[:])
	mac.Write(c.Nonce[:])
	mac.Write(c.Ciphertext)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// Split divides plaintext into ordered chunks of at most
// models.MaxChunkPlaintextBytes bytes each.
func Split(plaintext []byte) [][]byte {
	if len(plaintext) == 0 {
		return nil
	}
	var out [][]byte
	for len(plaintext) > 0 {
		n := models.MaxChunkPlaintextBytes
		if n > len(plaintext) {
			n = len(plaintext)
		}
		out = append(out, plaintext[:n])
		plaintext = plaintext[n:]
	}
	return out
}
