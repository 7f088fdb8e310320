// Package store adapts the teacher's pgx-backed PostgresStore to
// Stroma's persistence domain: encrypted chunks, holder attestations, the
// signed Merkle root per epoch, and the peer registry. Connection
// lifecycle (pool construction, ping, schema load) follows the teacher's
// Connect/InitSchema/Close shape exactly.
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	_ "embed"

	"github.com/roder/stroma/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore persists Stroma's encrypted chunks, attestations, and
// peer registry.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// Connect initializes the connection pool to PostgreSQL using pgx, the
// same pool-then-ping sequence the teacher uses.
func Connect(ctx context.Context, connStr string, log *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, errors.Wrap(err, "store: unable to connect")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, errors.Wrap(err, "store: ping failed")
	}
	log.Info("connected to postgres persistence store")
	return &PostgresStore{pool: pool, log: log}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema applies the embedded schema, idempotently (every statement
// is CREATE TABLE/INDEX IF NOT EXISTS).
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "store: schema init failed")
	}
	s.log.Info("persistence schema initialized")
	return nil
}

// PutChunk upserts an encrypted chunk.
func (s *PostgresStore) PutChunk(ctx context.Context, c models.Chunk, epoch uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chunks (owner_hash, index, ciphertext, nonce, hmac, epoch, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (owner_hash, index) DO UPDATE
		SET ciphertext = EXCLUDED.ciphertext, nonce = EXCLUDED.nonce,
		    hmac = EXCLUDED.hmac, epoch = EXCLUDED.epoch, updated_at = now()
	`, c.Owner.Bytes(), c.Index, c.Ciphertext, c.Nonce[:], c.HMAC[:], epoch)
	if err != nil {
		return errors.Wrap(err, "store: put chunk")
	}
	return nil
}

// GetChunk fetches one chunk by (owner, index).
func (s *PostgresStore) GetChunk(ctx context.Context, owner models.MemberHash, index uint32) (models.Chunk, error) {
	var c models.Chunk
	c.Owner = owner
	c.Index = index
	var nonce, hmacBytes []byte
	row := s.pool.QueryRow(ctx, `
		SELECT ciphertext, nonce, hmac FROM chunks WHERE owner_hash = $1 AND index = $2
	`, owner.Bytes(), index)
	if err := row.Scan(&c.Ciphertext, &nonce, &hmacBytes); err != nil {
		return models.Chunk{}, errors.Wrap(err, "store: get chunk")
	}
	copy(c.Nonce[:], nonce)
	copy(c.HMAC[:], hmacBytes)
	return c, nil
}

// PutMerkleRoot stores the signed Merkle root for owner's chunk set at
// epoch.
func (s *PostgresStore) PutMerkleRoot(ctx context.Context, owner models.MemberHash, root models.MerkleRoot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO merkle_roots (owner_hash, epoch, root, signature, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (owner_hash, epoch) DO UPDATE
		SET root = EXCLUDED.root, signature = EXCLUDED.signature
	`, owner.Bytes(), root.Epoch, root.Root[:], root.Signature)
	if err != nil {
		return errors.Wrap(err, "store: put merkle root")
	}
	return nil
}

// PutAttestation records a holder's receipt for a chunk.
func (s *PostgresStore) PutAttestation(ctx context.Context, a models.Attestation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attestations (owner_hash, chunk_index, holder_hash, receipt_time, hmac)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_hash, chunk_index, holder_hash) DO UPDATE
		SET receipt_time = EXCLUDED.receipt_time, hmac = EXCLUDED.hmac
	`, a.ChunkID.Owner.Bytes(), a.ChunkID.Index, a.Holder.Bytes(), a.ReceiptTime, a.HMAC[:])
	if err != nil {
		return errors.Wrap(err, "store: put attestation")
	}
	return nil
}

// FreshAttestationCount counts attestations for (owner, index) whose
// receipt_time is at or after sinceSec.
func (s *PostgresStore) FreshAttestationCount(ctx context.Context, owner models.MemberHash, index uint32, sinceSec int64) (int, error) {
	var count int
	row := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM attestations
		WHERE owner_hash = $1 AND chunk_index = $2 AND receipt_time >= $3
	`, owner.Bytes(), index, sinceSec)
	if err := row.Scan(&count); err != nil {
		return 0, errors.Wrap(err, "store: count fresh attestations")
	}
	return count, nil
}

// UpsertPeer records a peer joining the persistence network. Re-inserting
// a tombstoned peer is a no-op: the registry is remove-wins.
func (s *PostgresStore) UpsertPeer(ctx context.Context, peer models.PeerHash, joinedAt int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO peer_registry (peer_hash, joined_at, tombstone)
		VALUES ($1, $2, false)
		ON CONFLICT (peer_hash) DO NOTHING
	`, peer.Bytes(), joinedAt)
	if err != nil {
		return errors.Wrap(err, "store: upsert peer")
	}
	return nil
}

// TombstonePeer marks peer as removed, permanently, per the registry's
// remove-wins semantics.
func (s *PostgresStore) TombstonePeer(ctx context.Context, peer models.PeerHash) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE peer_registry SET tombstone = true WHERE peer_hash = $1
	`, peer.Bytes())
	if err != nil {
		return errors.Wrap(err, "store: tombstone peer")
	}
	return nil
}

// ActivePeers returns every non-tombstoned peer hash in the registry.
func (s *PostgresStore) ActivePeers(ctx context.Context) ([]models.PeerHash, error) {
	rows, err := s.pool.Query(ctx, `SELECT peer_hash FROM peer_registry WHERE NOT tombstone`)
	if err != nil {
		return nil, errors.Wrap(err, "store: list active peers")
	}
	defer rows.Close()

	var out []models.PeerHash
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "store: scan peer")
		}
		p, err := models.PeerHashFromBytes(raw)
		if err != nil {
			return nil, errors.Wrap(err, "store: decode peer hash")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Pool exposes the underlying pgxpool.Pool for callers (migrations,
// health checks) that need it directly.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }
