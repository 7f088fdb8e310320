package models

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// ProposalKind distinguishes the two governance proposal shapes the spec
// defines: a config-key change and a federation contract initiation.
type ProposalKind uint8

const (
	ProposalConfigChange ProposalKind = iota
	ProposalFederationInit
)

// ProposalOutcome is the terminal state of a resolved ActiveProposal.
type ProposalOutcome uint8

const (
	ProposalPending ProposalOutcome = iota
	ProposalAdopted
	ProposalRejected
	ProposalExpired
)

// ProposalOption is one candidate value a vote can select, e.g. a config
// key's new value rendered as a string, or a federation contract digest.
type ProposalOption struct {
	Label string `cbor:"1,keyasint"`
	Value string `cbor:"2,keyasint"`
}

// ActiveProposal tracks an in-flight governance vote. Votes is a dedup set
// of HMAC(proposal_id || voter_hash) commitments, not voter hashes
// themselves — nobody, including the proposer, can learn who voted for
// which option from the state alone. It is zeroed once the proposal
// resolves (see spec.md §4.12's vote-privacy requirement).
type ActiveProposal struct {
	ID           ProposalId        `cbor:"1,keyasint"`
	Kind         ProposalKind      `cbor:"2,keyasint"`
	Proposer     MemberHash        `cbor:"3,keyasint"`
	ConfigKey    string            `cbor:"4,keyasint"`
	Options      []ProposalOption  `cbor:"5,keyasint"`
	Tally        []uint32          `cbor:"6,keyasint"`
	Votes        map[chainhash.Hash]struct{} `cbor:"-"`
	OpenedAt     int64             `cbor:"7,keyasint"`
	TimeoutAt    int64             `cbor:"8,keyasint"`
	Quorum       float32           `cbor:"9,keyasint"`
	Threshold    float32           `cbor:"10,keyasint"`
	EligibleSize uint32            `cbor:"11,keyasint"`
	Outcome      ProposalOutcome   `cbor:"12,keyasint"`
}

// VoteAggregate is the terminal tally handed back when a poll is
// terminated (spec.md §6's poll abstraction): per-option vote counts
// plus the eligible electorate size, with no voter identity attached.
type VoteAggregate struct {
	VotesPerOption []uint32 `cbor:"1,keyasint"`
	TotalMembers   uint32   `cbor:"2,keyasint"`
}

// TotalVotes sums the per-option tally.
func (p *ActiveProposal) TotalVotes() uint32 {
	var total uint32
	for _, t := range p.Tally {
		total += t
	}
	return total
}

// MeetsQuorum reports whether enough of the eligible electorate has voted.
func (p *ActiveProposal) MeetsQuorum() bool {
	if p.EligibleSize == 0 {
		return false
	}
	return float32(p.TotalVotes())/float32(p.EligibleSize) >= p.Quorum
}

// WinningOption returns the index of the plurality winner and whether it
// clears the adoption threshold, per spec.md §4.12 / S4.
func (p *ActiveProposal) WinningOption() (idx int, clears bool) {
	total := p.TotalVotes()
	if total == 0 {
		return -1, false
	}
	best := -1
	for i, count := range p.Tally {
		if best == -1 || count > p.Tally[best] {
			best = i
		}
	}
	if best == -1 {
		return -1, false
	}
	return best, float32(p.Tally[best])/float32(total) >= p.Threshold
}
