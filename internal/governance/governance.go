// Package governance implements proposal lifecycle management (spec.md
// §4.12): opening a config-change or federation-init proposal, casting a
// vote without revealing who cast it, and resolving the outcome once
// quorum and threshold are both met or the poll times out.
package governance

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/roder/stroma/pkg/models"
)

var (
	// ErrUnknownKey rejects a config-change proposal over a key not in
	// models.ConfigKeyRegistry.
	ErrUnknownKey = errors.New("governance: unknown config key")
	// ErrAlreadyVoted rejects a second vote from the same member on the
	// same proposal.
	ErrAlreadyVoted = errors.New("governance: member already voted")
	// ErrNotOpen rejects an action against a proposal that already
	// resolved.
	ErrNotOpen = errors.New("governance: proposal not open")
)

// Open creates a new ActiveProposal under a fresh random id, with one
// zeroed tally slot per option and its quorum, threshold and timeout
// taken from cfg. It takes no vote key: vote commitments are built later,
// per vote, by VoteCommitment.
func Open(kind models.ProposalKind, proposer models.MemberHash, configKey string, options []models.ProposalOption, eligibleSize uint32, cfg models.GroupConfig, nowSec int64) (*models.ActiveProposal, error) {
	if kind == models.ProposalConfigChange {
		if _, ok := models.ConfigKeyRegistry[configKey]; !ok {
			return nil, errors.Wrapf(ErrUnknownKey, "%q", configKey)
		}
	}
	var id models.ProposalId
	raw, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.Wrap(err, "governance: generate proposal id")
	}
	copy(id[:], raw[:])

	return &models.ActiveProposal{
		ID:           id,
		Kind:         kind,
		Proposer:     proposer,
		ConfigKey:    configKey,
		Options:      options,
		Tally:        make([]uint32, len(options)),
		Votes:        map[chainhash32]struct{}{},
		OpenedAt:     nowSec,
		TimeoutAt:    nowSec + int64(cfg.DefaultPollTimeoutSecs),
		Quorum:       cfg.MinQuorum,
		Threshold:    cfg.ConfigChangeThreshold,
		EligibleSize: eligibleSize,
		Outcome:      models.ProposalPending,
	}, nil
}

// chainhash32 aliases models.ActiveProposal.Votes's key type, so a vote
// commitment can be stored in that map directly.
type chainhash32 = chainhash.Hash

// VoteCommitment derives HMAC(voteKey, proposalID || voterHash): a dedup
// token that proves a specific voter voted exactly once without
// revealing, to anyone inspecting ActiveProposal.Votes, which voter that
// was. Callers that replicate a vote through internal/trust (which never
// holds the vote key) compute the commitment here and hand only the
// commitment to models.CastVoteDelta.
func VoteCommitment(voteKey []byte, proposalID models.ProposalId, voter models.MemberHash) chainhash32 {
	mac := hmac.New(sha256.New, voteKey)
	mac.Write(proposalID[:])
	mac.Write(voter.Bytes())
	var out chainhash32
	copy(out[:], mac.Sum(nil))
	return out
}

// CastVote records voter's vote for option optionIdx, rejecting a second
// vote from the same member (detected via the HMAC commitment dedup set,
// never via a plaintext voter list). It mutates p directly; callers that
// replicate the proposal through internal/trust instead build a
// DeltaCastVote from VoteCommitment and apply it there (see
// internal/engine.handleVote), so this entry point is for direct/local
// callers such as tests.
func CastVote(p *models.ActiveProposal, voteKey []byte, voter models.MemberHash, optionIdx int) error {
	if p.Outcome != models.ProposalPending {
		return ErrNotOpen
	}
	if optionIdx < 0 || optionIdx >= len(p.Tally) {
		return errors.New("governance: option index out of range")
	}
	commitment := VoteCommitment(voteKey, p.ID, voter)
	if _, ok := p.Votes[commitment]; ok {
		return ErrAlreadyVoted
	}
	if p.Votes == nil {
		p.Votes = map[chainhash32]struct{}{}
	}
	p.Votes[commitment] = struct{}{}
	p.Tally[optionIdx]++
	return nil
}

// DecideOutcome computes whether p should resolve at nowSec — the poll
// timed out, or quorum has been met and the plurality winner clears the
// adoption threshold — without mutating p. internal/engine's
// ResolveProposal uses this to decide the outcome, then replicates it as
// a DeltaResolveProposal so every replica applies the same mutation
// (Outcome set, vote-commitment set zeroed) in lockstep rather than one
// replica mutating its local copy unilaterally.
func DecideOutcome(p *models.ActiveProposal, nowSec int64) (winningOption int, outcome models.ProposalOutcome, resolved bool) {
	if p.Outcome != models.ProposalPending {
		return -1, p.Outcome, true
	}
	timedOut := nowSec >= p.TimeoutAt
	if !p.MeetsQuorum() {
		if timedOut {
			return -1, models.ProposalExpired, true
		}
		return -1, models.ProposalPending, false
	}
	idx, clears := p.WinningOption()
	if clears {
		return idx, models.ProposalAdopted, true
	}
	if timedOut {
		return -1, models.ProposalRejected, true
	}
	return -1, models.ProposalPending, false
}

// Resolve checks whether p should terminate at nowSec and, on a terminal
// outcome, mutates p in place: sets Outcome and zeroes the vote-commitment
// set (spec.md §4.12's vote-privacy requirement — no trace of who voted
// survives resolution, only the aggregate tally). Direct/local use only;
// see DecideOutcome for the delta-driven path.
func Resolve(p *models.ActiveProposal, nowSec int64) (winningOption int, resolved bool) {
	idx, outcome, resolved := DecideOutcome(p, nowSec)
	if resolved && p.Outcome == models.ProposalPending {
		p.Outcome = outcome
		zeroVotes(p)
	}
	return idx, resolved
}

func zeroVotes(p *models.ActiveProposal) {
	for k := range p.Votes {
		delete(p.Votes, k)
	}
	p.Votes = nil
}
