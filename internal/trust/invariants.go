package trust

import (
	"github.com/pkg/errors"

	"github.com/roder/stroma/internal/standing"
	"github.com/roder/stroma/pkg/models"
)

// Validate checks all four of spec.md §3's state invariants:
//
//  1. members and ejected are disjoint.
//  2. every current member satisfies effective_vouches >= min_vouches and
//     standing >= 0 (T1/T2 never hold for a member still present).
//  3. a vouch and a flag from the same actor toward the same target may
//     coexist (voucher-flaggers), so no invariant forbids that overlap.
//  4. no hash appearing in members, vouches, or flags also appears in
//     ejected.
func Validate(s *models.TrustNetworkState) error {
	for m := range s.Members {
		if s.Ejected.Contains(m) {
			return errors.Wrapf(ErrFatalInvariant, "member %s also ejected", m)
		}
	}
	for voucher, targets := range s.Vouches {
		if s.Ejected.Contains(voucher) {
			return errors.Wrapf(ErrFatalInvariant, "ejected hash %s present as voucher", voucher)
		}
		for t := range targets {
			if s.Ejected.Contains(t) {
				return errors.Wrapf(ErrFatalInvariant, "ejected hash %s present as vouch target", t)
			}
		}
	}
	for flagger, targets := range s.Flags {
		if s.Ejected.Contains(flagger) {
			return errors.Wrapf(ErrFatalInvariant, "ejected hash %s present as flagger", flagger)
		}
		for t := range targets {
			if s.Ejected.Contains(t) {
				return errors.Wrapf(ErrFatalInvariant, "ejected hash %s present as flag target", t)
			}
		}
	}
	for m := range s.Members {
		if v := standing.Evaluate(s, m); v != standing.OK {
			return errors.Wrapf(ErrInvalidState, "member %s fails standing check (%d)", m, v)
		}
	}
	if err := s.Config.Validate(); err != nil {
		return errors.Wrap(ErrInvalidState, err.Error())
	}
	return nil
}
