// Package standing implements the T1/T2 ejection rules (spec.md §4.3):
// pure functions over a models.TrustNetworkState snapshot, with no side
// effects and no grace period. A member's standing can swing by at most
// one unit per delta — the "no two-point swing" property internal/health
// and the property tests both rely on.
package standing

import "github.com/roder/stroma/pkg/models"

// Verdict names which ejection trigger, if any, fires for a member.
type Verdict uint8

const (
	OK Verdict = iota
	// T1Undervouched fires when effective vouches fall below the group's
	// configured minimum.
	T1Undervouched
	// T2NegativeStanding fires when a member's standing score is negative.
	T2NegativeStanding
)

// Standing returns effective_vouches - regular_flags for target, per
// spec.md §3's standing formula. Voucher-flaggers (an actor who both
// vouches for and flags the same target) are left out of both terms — see
// models.TrustNetworkState.VoucherFlaggers.
func Standing(s *models.TrustNetworkState, target models.MemberHash) int {
	return s.EffectiveVouches(target) - s.RegularFlags(target)
}

// Evaluate checks both T1 and T2 for target and reports the first
// triggered verdict, T1 taking priority since an undervouched member is
// the more fundamental violation of the admission invariant.
func Evaluate(s *models.TrustNetworkState, target models.MemberHash) Verdict {
	if s.EffectiveVouches(target) < int(s.Config.MinVouches) {
		return T1Undervouched
	}
	if Standing(s, target) < 0 {
		return T2NegativeStanding
	}
	return OK
}

// EjectionCandidates scans every current member and returns those whose
// standing currently violates T1 or T2. Bootstrap members (state with
// fewer than models' minimum) are still subject to the same rule; there is
// no grace period carve-out anywhere in this package, per spec.md's
// explicit non-goal.
func EjectionCandidates(s *models.TrustNetworkState) map[models.MemberHash]Verdict {
	out := map[models.MemberHash]Verdict{}
	for m := range s.Members {
		if v := Evaluate(s, m); v != OK {
			out[m] = v
		}
	}
	return out
}
