package models

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// SchemaVersion is the current on-wire TrustNetworkState schema version.
// Bump on any incompatible change to the CBOR shape.
const SchemaVersion = 1

// RateLimitTier names one of the five progressive cooldown tiers a
// rate-limited action graduates through. See internal/ratelimit.
type RateLimitTier uint8

const (
	TierImmediate RateLimitTier = iota
	Tier60s
	Tier300s
	Tier3600s
	Tier86400s
)

// RateLimitState is the persisted cooldown counter for one
// (actor_hash, action_kind) pair.
type RateLimitState struct {
	Tier          RateLimitTier `cbor:"1,keyasint"`
	LastActionSec int64         `cbor:"2,keyasint"`
	StrikeCount   uint32        `cbor:"3,keyasint"`
}

// RateLimitKey identifies a rate-limited actor/action pair.
type RateLimitKey struct {
	Actor  MemberHash `cbor:"1,keyasint"`
	Action string     `cbor:"2,keyasint"`
}

// TrustNetworkState is the full mergeable replicated state for one group.
// Every mutation flows through StateDelta + ApplyDelta/Merge so that two
// replicas that have seen the same set of deltas, in any order, converge
// to byte-identical state.
type TrustNetworkState struct {
	SchemaVersion       uint32                     `cbor:"1,keyasint"`
	GroupName           string                     `cbor:"2,keyasint"`
	Members             MemberSet                  `cbor:"3,keyasint"`
	Ejected             MemberSet                  `cbor:"4,keyasint"`
	Vouches             VouchGraph                 `cbor:"5,keyasint"`
	Flags               FlagGraph                  `cbor:"6,keyasint"`
	Config              GroupConfig                `cbor:"7,keyasint"`
	FederationContracts []ContractRef              `cbor:"8,keyasint"`
	AuditSeq            uint64                     `cbor:"9,keyasint"`
	Audit               []AuditEntry               `cbor:"10,keyasint"`
	ActiveProposals     map[ProposalId]*ActiveProposal `cbor:"11,keyasint"`
	RateLimits          map[RateLimitKey]RateLimitState `cbor:"-"`
}

// NewTrustNetworkState builds an empty, schema-current state for a freshly
// bootstrapped group.
func NewTrustNetworkState(groupName string) *TrustNetworkState {
	return &TrustNetworkState{
		SchemaVersion:   SchemaVersion,
		GroupName:       groupName,
		Members:         NewMemberSet(),
		Ejected:         NewMemberSet(),
		Vouches:         VouchGraph{},
		Flags:           FlagGraph{},
		Config:          DefaultGroupConfig(),
		ActiveProposals: map[ProposalId]*ActiveProposal{},
		RateLimits:      map[RateLimitKey]RateLimitState{},
	}
}

// Clone deep-copies the state so callers can compute a candidate mutation
// and discard it on validation failure without touching the original.
func (s *TrustNetworkState) Clone() *TrustNetworkState {
	out := &TrustNetworkState{
		SchemaVersion: s.SchemaVersion,
		GroupName:     s.GroupName,
		Members:       s.Members.Clone(),
		Ejected:       s.Ejected.Clone(),
		Vouches:       s.Vouches.Clone(),
		Flags:         s.Flags.Clone(),
		Config:        s.Config,
		AuditSeq:      s.AuditSeq,
	}
	out.FederationContracts = append([]ContractRef(nil), s.FederationContracts...)
	out.Audit = append([]AuditEntry(nil), s.Audit...)
	out.ActiveProposals = make(map[ProposalId]*ActiveProposal, len(s.ActiveProposals))
	for id, p := range s.ActiveProposals {
		cp := *p
		cp.Options = append([]ProposalOption(nil), p.Options...)
		cp.Tally = append([]uint32(nil), p.Tally...)
		cp.Votes = make(map[chainhash.Hash]struct{}, len(p.Votes))
		for k := range p.Votes {
			cp.Votes[k] = struct{}{}
		}
		out.ActiveProposals[id] = &cp
	}
	out.RateLimits = make(map[RateLimitKey]RateLimitState, len(s.RateLimits))
	for k, v := range s.RateLimits {
		out.RateLimits[k] = v
	}
	return out
}

// VoucherFlaggers returns the set of hashes that both vouch for and flag
// target. EffectiveVouches and RegularFlags each leave such an actor out
// of their count, so one actor's flag can never move target's standing by
// two. This helper exists for callers that need to reason about the
// overlap explicitly, e.g. when explaining why a member's standing moved.
func (s *TrustNetworkState) VoucherFlaggers(target MemberHash) MemberSet {
	out := NewMemberSet()
	for voucher, targets := range s.Vouches {
		if !targets.Contains(target) {
			continue
		}
		if flagged, ok := s.Flags[voucher]; ok && flagged.Contains(target) {
			out.Add(voucher)
		}
	}
	return out
}

// EffectiveVouches counts distinct vouchers for target who do not also
// flag target, per spec.md §3.
func (s *TrustNetworkState) EffectiveVouches(target MemberHash) int {
	count := 0
	for voucher, targets := range s.Vouches {
		if !targets.Contains(target) {
			continue
		}
		if flagged, ok := s.Flags[voucher]; ok && flagged.Contains(target) {
			continue
		}
		count++
	}
	return count
}

// RegularFlags counts flags against target from flaggers who do not also
// vouch for target; EffectiveVouches leaves the same voucher-flaggers out
// of its own count (see VoucherFlaggers).
func (s *TrustNetworkState) RegularFlags(target MemberHash) int {
	count := 0
	for flagger, targets := range s.Flags {
		if !targets.Contains(target) {
			continue
		}
		if vouched, ok := s.Vouches[flagger]; ok && vouched.Contains(target) {
			continue
		}
		count++
	}
	return count
}
