// Package trust implements the replicated state engine: applying a single
// StateDelta, merging two states built from possibly-disjoint delta sets,
// and validating the invariants spec.md §3 requires. ApplyDelta enforces
// only per-delta structural well-formedness (InvalidUpdate); the standing
// invariant (T1/T2) is deliberately left to internal/health, which reacts
// to the resulting state and cascades a RemoveMember delta when it must —
// trust itself never silently ejects a member as a side effect of some
// other delta.
package trust

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"

	"github.com/roder/stroma/pkg/models"
)

// ApplyDelta returns a new TrustNetworkState with delta applied, or an
// error wrapping ErrInvalidUpdate if delta is structurally invalid. The
// input state is never mutated.
func ApplyDelta(s *models.TrustNetworkState, delta models.StateDelta) (*models.TrustNetworkState, error) {
	out := s.Clone()
	switch delta.Kind {
	case models.DeltaAddMember:
		if out.Ejected.Contains(delta.Member) {
			// Tombstone wins: an ejected hash can never be re-admitted.
			return out, nil
		}
		out.Members.Add(delta.Member)

	case models.DeltaRemoveMember:
		out.Members.Remove(delta.Member)
		out.Ejected.Add(delta.Member)
		delete(out.Vouches, delta.Member)
		delete(out.Flags, delta.Member)
		for _, targets := range out.Vouches {
			targets.Remove(delta.Member)
		}
		for _, targets := range out.Flags {
			targets.Remove(delta.Member)
		}

	case models.DeltaAddVouch:
		if delta.Voucher == delta.Target {
			return nil, errors.Wrap(ErrInvalidUpdate, "trust: self-vouch")
		}
		// Only the voucher must already be a member: vouches accumulate
		// against a candidate before admission (spec.md §4.8), so the
		// target is ordinarily not yet in Members when this applies.
		if !out.Members.Contains(delta.Voucher) {
			return nil, errors.Wrap(ErrInvalidUpdate, "trust: vouch from non-member")
		}
		if out.Ejected.Contains(delta.Voucher) || out.Ejected.Contains(delta.Target) {
			return out, nil
		}
		out.Vouches.Add(delta.Voucher, delta.Target)

	case models.DeltaRemoveVouch:
		out.Vouches.Remove(delta.Voucher, delta.Target)

	case models.DeltaAddFlag:
		if delta.Flagger == delta.Flagged {
			return nil, errors.Wrap(ErrInvalidUpdate, "trust: self-flag")
		}
		// As with vouches, a flag may target a candidate who was never
		// admitted (has_previous_flags must see these), so only the
		// flagger side is required to already be a member.
		if !out.Members.Contains(delta.Flagger) {
			return nil, errors.Wrap(ErrInvalidUpdate, "trust: flag from non-member")
		}
		if out.Ejected.Contains(delta.Flagger) || out.Ejected.Contains(delta.Flagged) {
			return out, nil
		}
		out.Flags.Add(delta.Flagger, delta.Flagged)

	case models.DeltaRemoveFlag:
		out.Flags.Remove(delta.Flagger, delta.Flagged)

	case models.DeltaSetConfig:
		reg, ok := models.ConfigKeyRegistry[delta.ConfigKey]
		if !ok {
			return nil, errors.Wrapf(ErrInvalidUpdate, "trust: unknown config key %q", delta.ConfigKey)
		}
		if err := applyConfigValue(&out.Config, reg, delta.ConfigKey, delta.ConfigValue); err != nil {
			return nil, errors.Wrap(ErrInvalidUpdate, err.Error())
		}

	case models.DeltaAppendAudit:
		out.Audit = append(out.Audit, delta.Audit)
		if delta.Audit.Seq > out.AuditSeq {
			out.AuditSeq = delta.Audit.Seq
		}

	case models.DeltaOpenProposal:
		p := delta.Proposal
		p.Tally = append([]uint32(nil), delta.Proposal.Tally...)
		p.Options = append([]models.ProposalOption(nil), delta.Proposal.Options...)
		out.ActiveProposals[p.ID] = &p

	case models.DeltaCastVote:
		p, ok := out.ActiveProposals[delta.ProposalID]
		if !ok {
			return nil, errors.Wrap(ErrInvalidUpdate, "trust: vote on unknown proposal")
		}
		if p.Outcome != models.ProposalPending {
			return nil, errors.Wrap(ErrInvalidUpdate, "trust: vote on resolved proposal")
		}
		idx := int(delta.VoteOptionIdx)
		if idx < 0 || idx >= len(p.Tally) {
			return nil, errors.Wrap(ErrInvalidUpdate, "trust: vote option index out of range")
		}
		if _, dup := p.Votes[delta.VoteCommitment]; dup {
			return nil, errors.Wrap(ErrInvalidUpdate, "trust: duplicate vote commitment")
		}
		cp := *p
		cp.Tally = append([]uint32(nil), p.Tally...)
		cp.Votes = make(map[chainhash.Hash]struct{}, len(p.Votes)+1)
		for k := range p.Votes {
			cp.Votes[k] = struct{}{}
		}
		cp.Votes[delta.VoteCommitment] = struct{}{}
		cp.Tally[idx]++
		out.ActiveProposals[delta.ProposalID] = &cp

	case models.DeltaResolveProposal:
		p, ok := out.ActiveProposals[delta.ProposalID]
		if !ok {
			return nil, errors.Wrap(ErrInvalidUpdate, "trust: resolve unknown proposal")
		}
		if p.Outcome == models.ProposalPending {
			cp := *p
			cp.Tally = append([]uint32(nil), p.Tally...)
			cp.Outcome = delta.ResolvedOutcome
			cp.Votes = nil
			out.ActiveProposals[delta.ProposalID] = &cp
		}

	case models.DeltaSetRateLimit:
		out.RateLimits[delta.RateLimitKeyField] = delta.RateLimitNext

	default:
		return nil, errors.Wrapf(ErrInvalidUpdate, "trust: unknown delta kind %d", delta.Kind)
	}
	return out, nil
}
