package trust

import (
	"github.com/roder/stroma/pkg/models"
)

// Merge combines two TrustNetworkState replicas that may have each seen a
// disjoint subset of deltas. Merge is commutative, associative and
// idempotent (spec.md §8's property tests enforce all three):
//
//   - Ejected is a union: once a hash is tombstoned anywhere, it is
//     tombstoned everywhere (remove-wins).
//   - Members is a union minus Ejected: an addition only survives if the
//     hash isn't tombstoned in either input.
//   - Vouches/Flags are unioned edge-by-edge, then every edge touching a
//     tombstoned hash is dropped.
//   - Config: since SetConfig deltas are applied through the ordered
//     delta log (internal/trust.ApplyDelta), merging two already-
//     materialized states treats the higher schema version's config as
//     authoritative; equal versions keep a's, which only matters for
//     states that diverged before any config change was ever applied.
//   - Audit is merged by Seq, deduplicated, and resorted by
//     (LogicalTime, EntryHash) — ties break on EntryHash byte order (see
//     DESIGN.md's Open Question resolution), never on arrival order.
func Merge(a, b *models.TrustNetworkState) *models.TrustNetworkState {
	out := a.Clone()

	out.Ejected = a.Ejected.Union(b.Ejected)

	out.Members = a.Members.Union(b.Members)
	for m := range out.Members {
		if out.Ejected.Contains(m) {
			out.Members.Remove(m)
		}
	}

	out.Vouches = mergeGraph(a.Vouches, b.Vouches, out.Ejected)
	out.Flags = mergeGraph(a.Flags, b.Flags, out.Ejected)

	if b.SchemaVersion > out.SchemaVersion {
		out.Config = b.Config
	}

	out.Audit = mergeAudit(a.Audit, b.Audit)
	if b.AuditSeq > out.AuditSeq {
		out.AuditSeq = b.AuditSeq
	}

	out.ActiveProposals = mergeProposals(a.ActiveProposals, b.ActiveProposals)

	out.RateLimits = mergeRateLimits(a.RateLimits, b.RateLimits)

	return out
}

// mergeGraph unions two vouch/flag graphs edge-by-edge, then prunes every
// edge touching a hash present in ejected.
func mergeGraph(a, b models.VouchGraph, ejected models.MemberSet) models.VouchGraph {
	out := a.Clone()
	for actor, targets := range b {
		for t := range targets {
			out.Add(actor, t)
		}
	}
	for actor, targets := range out {
		if ejected.Contains(actor) {
			delete(out, actor)
			continue
		}
		for t := range targets {
			if ejected.Contains(t) {
				targets.Remove(t)
			}
		}
		if len(targets) == 0 {
			delete(out, actor)
		}
	}
	return out
}
