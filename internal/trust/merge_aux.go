package trust

import (
	"bytes"
	"sort"

	"github.com/roder/stroma/pkg/models"
)

// mergeAudit unions two audit logs by Seq (the append-only log's natural
// key), then sorts by (LogicalTime, EntryHash) so replicas that received
// entries in different orders converge to the identical sequence. See
// DESIGN.md: the Open Question on tie-breaking is resolved in favour of
// EntryHash, which is content-derived and therefore replica-independent,
// rather than any form of arrival or insertion order.
func mergeAudit(a, b []models.AuditEntry) []models.AuditEntry {
	bySeq := make(map[uint64]models.AuditEntry, len(a)+len(b))
	for _, e := range a {
		bySeq[e.Seq] = e
	}
	for _, e := range b {
		if existing, ok := bySeq[e.Seq]; !ok || bytes.Compare(e.EntryHash[:], existing.EntryHash[:]) > 0 {
			bySeq[e.Seq] = e
		}
	}
	out := make([]models.AuditEntry, 0, len(bySeq))
	for _, e := range bySeq {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LogicalTime != out[j].LogicalTime {
			return out[i].LogicalTime < out[j].LogicalTime
		}
		return bytes.Compare(out[i].EntryHash[:], out[j].EntryHash[:]) < 0
	})
	return out
}

// mergeProposals unions two ActiveProposal maps. A proposal present in
// both is resolved by keeping whichever side has more total votes cast —
// the two sides only diverge on vote count when one replica has observed
// more Vouch/ governance-vote deltas than the other, so the higher count
// is strictly more information, never conflicting information (votes are
// monotonically accumulated, never retracted).
func mergeProposals(a, b map[models.ProposalId]*models.ActiveProposal) map[models.ProposalId]*models.ActiveProposal {
	out := make(map[models.ProposalId]*models.ActiveProposal, len(a))
	for id, p := range a {
		cp := *p
		out[id] = &cp
	}
	for id, p := range b {
		existing, ok := out[id]
		if !ok || p.TotalVotes() > existing.TotalVotes() {
			cp := *p
			out[id] = &cp
		}
	}
	return out
}

// mergeRateLimits keeps, per key, whichever state reflects the more
// recent action — rate-limit state only ever advances forward in time.
func mergeRateLimits(a, b map[models.RateLimitKey]models.RateLimitState) map[models.RateLimitKey]models.RateLimitState {
	out := make(map[models.RateLimitKey]models.RateLimitState, len(a))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		existing, ok := out[k]
		if !ok || v.LastActionSec > existing.LastActionSec {
			out[k] = v
		}
	}
	return out
}
