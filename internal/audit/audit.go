// Package audit builds AppendAudit deltas for Stroma's append-only,
// masked audit trail (spec.md §4.11). Every entry records only masked
// hashes and a Kind tag — never a cleartext detail string that could leak
// an external identifier.
package audit

import (
	"github.com/roder/stroma/internal/codec"
	"github.com/roder/stroma/pkg/models"
)

// Record builds the next AuditEntry for kind, computing its EntryHash
// from the entry's own canonical encoding (minus the hash field itself,
// which would be circular) so that any two replicas producing the same
// logical entry compute the identical EntryHash.
func Record(state *models.TrustNetworkState, stamp models.LamportStamp, kind models.AuditEventKind, actor, subject models.MemberHash, detail string) (models.AuditEntry, error) {
	entry := models.AuditEntry{
		Seq:         state.AuditSeq + 1,
		Kind:        kind,
		LogicalTime: stamp.LogicalTime,
		Actor:       actor,
		Subject:     subject,
		Detail:      detail,
	}
	digest, err := codec.Digest(entry)
	if err != nil {
		return models.AuditEntry{}, err
	}
	entry.EntryHash = digest
	return entry, nil
}

// Delta wraps Record's entry in an AppendAudit StateDelta ready for
// internal/trust.ApplyDelta.
func Delta(state *models.TrustNetworkState, stamp models.LamportStamp, kind models.AuditEventKind, actor, subject models.MemberHash, detail string) (models.StateDelta, error) {
	entry, err := Record(state, stamp, kind, actor, subject, detail)
	if err != nil {
		return models.StateDelta{}, err
	}
	return models.AppendAuditDelta(stamp, entry), nil
}
