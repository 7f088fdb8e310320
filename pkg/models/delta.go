package models

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// DeltaKind tags the variant held by a StateDelta. Stroma uses an explicit
// tagged union rather than dynamic dispatch (spec.md §9): one type, one
// switch in internal/trust, no interface method per delta kind.
type DeltaKind uint8

const (
	DeltaAddMember DeltaKind = iota
	DeltaRemoveMember
	DeltaAddVouch
	DeltaRemoveVouch
	DeltaAddFlag
	DeltaRemoveFlag
	DeltaSetConfig
	DeltaAppendAudit
	DeltaOpenProposal
	DeltaCastVote
	DeltaResolveProposal
	DeltaSetRateLimit
)

// LamportStamp is the (logical_time, actor_hash) pair used to break ties
// between concurrent deltas touching the same key under last-writer-wins.
type LamportStamp struct {
	LogicalTime int64      `cbor:"1,keyasint"`
	Actor       MemberHash `cbor:"2,keyasint"`
}

// Less implements the LWW ordering: higher logical time wins; ties break
// on the actor hash's byte order, so the comparison is total and
// deterministic across replicas.
func (a LamportStamp) Less(b LamportStamp) bool {
	if a.LogicalTime != b.LogicalTime {
		return a.LogicalTime < b.LogicalTime
	}
	return bytesLess(a.Actor.Bytes(), b.Actor.Bytes())
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// StateDelta is one atomic, replicable mutation to a TrustNetworkState.
// Exactly one of the typed payload fields is meaningful, selected by Kind;
// the zero-valued rest are simply unused rather than wrapped in pointers,
// keeping the struct a flat, CBOR-friendly value type.
type StateDelta struct {
	Kind  DeltaKind    `cbor:"1,keyasint"`
	Stamp LamportStamp `cbor:"2,keyasint"`

	Member MemberHash `cbor:"3,keyasint"`

	Voucher MemberHash `cbor:"4,keyasint"`
	Target  MemberHash `cbor:"5,keyasint"`

	Flagger  MemberHash `cbor:"6,keyasint"`
	Flagged  MemberHash `cbor:"7,keyasint"`

	ConfigKey   string `cbor:"8,keyasint"`
	ConfigValue string `cbor:"9,keyasint"`

	Audit AuditEntry `cbor:"10,keyasint"`

	// Proposal carries the fully-formed ActiveProposal for DeltaOpenProposal;
	// the other governance delta kinds reference an already-open proposal by
	// ProposalID instead of re-sending its whole payload.
	Proposal   ActiveProposal `cbor:"11,keyasint"`
	ProposalID ProposalId     `cbor:"12,keyasint"`

	// VoteCommitment/VoteOptionIdx carry a single DeltaCastVote. The
	// commitment is computed by the caller (governance.VoteCommitment) so
	// internal/trust never needs the HMAC vote key to apply it.
	VoteCommitment chainhash.Hash `cbor:"13,keyasint"`
	VoteOptionIdx  int32          `cbor:"14,keyasint"`

	// ResolvedOutcome carries a DeltaResolveProposal's terminal outcome.
	ResolvedOutcome ProposalOutcome `cbor:"15,keyasint"`

	// RateLimitKey/RateLimitNext carry a DeltaSetRateLimit: the cooldown
	// counter internal/ratelimit computed for one (actor, action) pair.
	RateLimitKeyField RateLimitKey   `cbor:"16,keyasint"`
	RateLimitNext     RateLimitState `cbor:"17,keyasint"`
}

// AddMemberDelta builds an AddMember delta.
func AddMemberDelta(stamp LamportStamp, member MemberHash) StateDelta {
	return StateDelta{Kind: DeltaAddMember, Stamp: stamp, Member: member}
}

// RemoveMemberDelta builds a RemoveMember (ejection) delta.
func RemoveMemberDelta(stamp LamportStamp, member MemberHash) StateDelta {
	return StateDelta{Kind: DeltaRemoveMember, Stamp: stamp, Member: member}
}

// AddVouchDelta builds an AddVouch delta.
func AddVouchDelta(stamp LamportStamp, voucher, target MemberHash) StateDelta {
	return StateDelta{Kind: DeltaAddVouch, Stamp: stamp, Voucher: voucher, Target: target}
}

// RemoveVouchDelta builds a RemoveVouch delta.
func RemoveVouchDelta(stamp LamportStamp, voucher, target MemberHash) StateDelta {
	return StateDelta{Kind: DeltaRemoveVouch, Stamp: stamp, Voucher: voucher, Target: target}
}

// AddFlagDelta builds an AddFlag delta.
func AddFlagDelta(stamp LamportStamp, flagger, flagged MemberHash) StateDelta {
	return StateDelta{Kind: DeltaAddFlag, Stamp: stamp, Flagger: flagger, Flagged: flagged}
}

// RemoveFlagDelta builds a RemoveFlag delta.
func RemoveFlagDelta(stamp LamportStamp, flagger, flagged MemberHash) StateDelta {
	return StateDelta{Kind: DeltaRemoveFlag, Stamp: stamp, Flagger: flagger, Flagged: flagged}
}

// SetConfigDelta builds a SetConfig delta. ConfigValue is the new value
// rendered as a canonical decimal string; internal/trust parses it back
// against the target key's declared type before applying.
func SetConfigDelta(stamp LamportStamp, key, value string) StateDelta {
	return StateDelta{Kind: DeltaSetConfig, Stamp: stamp, ConfigKey: key, ConfigValue: value}
}

// AppendAuditDelta builds an AppendAudit delta.
func AppendAuditDelta(stamp LamportStamp, entry AuditEntry) StateDelta {
	return StateDelta{Kind: DeltaAppendAudit, Stamp: stamp, Audit: entry}
}

// OpenProposalDelta builds an OpenProposal delta, replicating a freshly
// minted ActiveProposal (spec.md §4.12 propose step 4) into every replica's
// active_proposals.
func OpenProposalDelta(stamp LamportStamp, p ActiveProposal) StateDelta {
	return StateDelta{Kind: DeltaOpenProposal, Stamp: stamp, Proposal: p}
}

// CastVoteDelta builds a CastVote delta. commitment is
// governance.VoteCommitment(voteKey, proposalID, voter) — computed by the
// caller, since internal/trust never holds the vote key.
func CastVoteDelta(stamp LamportStamp, proposalID ProposalId, commitment chainhash.Hash, optionIdx int) StateDelta {
	return StateDelta{Kind: DeltaCastVote, Stamp: stamp, ProposalID: proposalID, VoteCommitment: commitment, VoteOptionIdx: int32(optionIdx)}
}

// ResolveProposalDelta builds a ResolveProposal delta: the proposal's
// terminal outcome, already decided by governance.Resolve, replicated so
// every replica zeroes the same proposal's vote-commitment set in lockstep
// (spec.md §4.12's vote-privacy requirement).
func ResolveProposalDelta(stamp LamportStamp, proposalID ProposalId, outcome ProposalOutcome) StateDelta {
	return StateDelta{Kind: DeltaResolveProposal, Stamp: stamp, ProposalID: proposalID, ResolvedOutcome: outcome}
}

// SetRateLimitDelta builds a SetRateLimit delta, replicating the cooldown
// counter internal/ratelimit.Check computed for one (actor, action) pair
// the same way every other mutation reaches the store: through
// ApplyDelta/PutDelta, not a side-channel write to the in-memory state.
func SetRateLimitDelta(stamp LamportStamp, key RateLimitKey, next RateLimitState) StateDelta {
	return StateDelta{Kind: DeltaSetRateLimit, Stamp: stamp, RateLimitKeyField: key, RateLimitNext: next}
}
