// Package matchmaker implements the blind-matchmaker layer: admission
// assessor selection (spec.md §4.6) and mesh introduction suggestion
// (spec.md §4.7). Both algorithms consume a graph.ClusterResult snapshot
// plus the replicated state and never mutate either — selection and
// suggestion are pure functions over a point-in-time view, per spec.md
// §9's "read-only snapshot, not cyclic references" design note.
package matchmaker

import (
	"sort"

	"github.com/roder/stroma/internal/graph"
	"github.com/roder/stroma/pkg/models"
)

// AssessorOutcome is the result of SelectAssessor: either a chosen
// assessor, or Stalled if no eligible candidate exists.
type AssessorOutcome struct {
	Assessor models.MemberHash
	Stalled  bool
}

// DVRTier buckets a candidate assessor by how independent their
// evidence-of-trust is from the inviter's own vouch set — the Distinct
// Validator Ratio. A candidate whose vouchers barely overlap the
// inviter's vouchers sits in a higher (more independent) tier, and
// SelectAssessor always exhausts the highest tier before considering the
// next.
type DVRTier int

const (
	DVRTierLow DVRTier = iota
	DVRTierMedium
	DVRTierHigh
)

// dvrTier scores candidate's DVR against the inviter's vouch set: the
// fraction of candidate's vouchers who are NOT also vouchers of the
// inviter. A fully independent assessor (no shared vouchers) scores 1.0
// and lands in DVRTierHigh; full overlap scores 0 and lands in
// DVRTierLow.
func dvrTier(s *models.TrustNetworkState, inviter, candidate models.MemberHash) DVRTier {
	candidateVouchers := vouchersOf(s, candidate)
	if len(candidateVouchers) == 0 {
		return DVRTierLow
	}
	inviterVouchers := vouchersOf(s, inviter)
	distinct := 0
	for v := range candidateVouchers {
		if !inviterVouchers.Contains(v) {
			distinct++
		}
	}
	ratio := float64(distinct) / float64(len(candidateVouchers))
	switch {
	case ratio >= 0.75:
		return DVRTierHigh
	case ratio >= 0.4:
		return DVRTierMedium
	default:
		return DVRTierLow
	}
}

func vouchersOf(s *models.TrustNetworkState, target models.MemberHash) models.MemberSet {
	out := models.NewMemberSet()
	for voucher, targets := range s.Vouches {
		if targets.Contains(target) {
			out.Add(voucher)
		}
	}
	return out
}

// SelectAssessor picks the assessor who will vet inviter's invitee, per
// spec.md §4.5/§4.6:
//
//  1. Eligible candidates are current members whose cluster (per cr)
//     differs from the inviter's cluster — an assessor must not share the
//     inviter's trust neighbourhood. If the network has collapsed to a
//     single bootstrap cluster (cr.BootstrapCollapse), this cross-cluster
//     requirement is dropped entirely and any other member is eligible —
//     spec.md §4.8 step 2's "unless |clusters| = 1" exception.
//  2. excluded removes assessors who have already declined this
//     candidate (spec.md §4.8's reject_intro re-matching).
//  3. Among eligible candidates, prefer the highest DVR tier.
//  4. Within a tier, break ties by centrality (degree in the mutual-vouch
//     graph, descending; hash order beneath that), matching the same
//     tie-breaker graph.Analyze uses for cluster member ordering.
//  5. If no eligible candidate exists, the outcome is Stalled.
func SelectAssessor(s *models.TrustNetworkState, cr *graph.ClusterResult, inviter models.MemberHash, excluded models.MemberSet) AssessorOutcome {
	inviterCluster := cr.ClusterOf[inviter]

	var eligible []models.MemberHash
	for m := range s.Members {
		if m == inviter {
			continue
		}
		if excluded.Contains(m) {
			continue
		}
		if !cr.BootstrapCollapse && cr.ClusterOf[m] == inviterCluster {
			continue
		}
		eligible = append(eligible, m)
	}
	if len(eligible) == 0 {
		return AssessorOutcome{Stalled: true}
	}

	degree := make(map[models.MemberHash]int, len(eligible))
	for _, m := range eligible {
		for v := range s.Vouches[m] {
			if s.Vouches.Has(v, m) {
				degree[m]++
			}
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		ti, tj := dvrTier(s, inviter, eligible[i]), dvrTier(s, inviter, eligible[j])
		if ti != tj {
			return ti > tj
		}
		if di, dj := degree[eligible[i]], degree[eligible[j]]; di != dj {
			return di > dj
		}
		return eligible[i].String() < eligible[j].String()
	})

	return AssessorOutcome{Assessor: eligible[0]}
}
