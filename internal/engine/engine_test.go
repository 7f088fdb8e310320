package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/roder/stroma/internal/proof"
	"github.com/roder/stroma/internal/ratelimit"
	"github.com/roder/stroma/internal/transport"
	"github.com/roder/stroma/internal/trust"
	"github.com/roder/stroma/pkg/models"
)

type fixedClock struct{ sec int64 }

func (c fixedClock) NowSec() int64 { return c.sec }

func engineMember(t *testing.T, seed byte) models.MemberHash {
	t.Helper()
	b := make([]byte, 32)
	b[0] = seed
	h, err := models.MemberHashFromBytes(b)
	if err != nil {
		t.Fatalf("MemberHashFromBytes: %v", err)
	}
	return h
}

// newTestEngine seeds a three-member group directly (bypassing the full
// invite/vouch admission flow, which is exercised elsewhere) and returns
// the engine plus the store it's backed by, so tests can inspect
// committed state after Dispatch.
func newTestEngine(t *testing.T, a, b, c models.MemberHash) (*Engine, *transport.FakeStateStore) {
	t.Helper()
	state := models.NewTrustNetworkState("G")
	var err error
	for i, m := range []models.MemberHash{a, b, c} {
		state, err = trust.ApplyDelta(state, models.AddMemberDelta(models.LamportStamp{LogicalTime: int64(i + 1), Actor: a}, m))
		if err != nil {
			t.Fatalf("seed AddMemberDelta: %v", err)
		}
	}

	store := transport.NewFakeStateStore()
	store.Seed("G", state)

	eng := New("G", store, transport.NewFakeMessenger(), transport.NewFakePollService(),
		proof.NewHashCommitmentBackend([]byte("proof secret")), fixedClock{sec: 1000}, []byte("vote key"), zap.NewNop())
	return eng, store
}

// Covers the review requirement that /propose and /vote actually wire
// into the replicated state end to end: CastVote is reachable from
// Dispatch, and a vote that clears quorum/threshold resolves the
// proposal and lands the config change without waiting on poll expiry.
func TestDispatchProposeVoteResolvesConfigChange(t *testing.T) {
	a, b, c := engineMember(t, 1), engineMember(t, 2), engineMember(t, 3)
	eng, store := newTestEngine(t, a, b, c)
	ctx := context.Background()

	res := eng.Dispatch(ctx, Command{Kind: CmdPropose, Actor: a, Group: "G", ConfigKey: "min_vouches", ConfigValue: "3"})
	if res.Code != ExitOK {
		t.Fatalf("propose: expected ExitOK, got %v (%s)", res.Code, res.Message)
	}

	state, err := store.Get(ctx, "G")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(state.ActiveProposals) != 1 {
		t.Fatalf("expected exactly one open proposal, got %d", len(state.ActiveProposals))
	}
	var proposalID models.ProposalId
	for id := range state.ActiveProposals {
		proposalID = id
	}

	res = eng.Dispatch(ctx, Command{Kind: CmdVote, Actor: b, Group: "G", ProposalID: proposalID, VoteOption: 0})
	if res.Code != ExitOK {
		t.Fatalf("first vote: expected ExitOK, got %v (%s)", res.Code, res.Message)
	}

	state, _ = store.Get(ctx, "G")
	if state.ActiveProposals[proposalID].Outcome != models.ProposalPending {
		t.Fatalf("expected proposal still pending after one of three votes")
	}

	res = eng.Dispatch(ctx, Command{Kind: CmdVote, Actor: c, Group: "G", ProposalID: proposalID, VoteOption: 0})
	if res.Code != ExitOK {
		t.Fatalf("second vote: expected ExitOK, got %v (%s)", res.Code, res.Message)
	}

	state, _ = store.Get(ctx, "G")
	if state.Config.MinVouches != 3 {
		t.Fatalf("expected min_vouches adopted to 3, got %d", state.Config.MinVouches)
	}
	if state.ActiveProposals[proposalID].Outcome != models.ProposalAdopted {
		t.Fatalf("expected ActiveProposal.Outcome=Adopted after the second vote cleared quorum/threshold, got %v",
			state.ActiveProposals[proposalID].Outcome)
	}
}

func TestDispatchRejectsDuplicateVote(t *testing.T) {
	a, b, c := engineMember(t, 1), engineMember(t, 2), engineMember(t, 3)
	eng, store := newTestEngine(t, a, b, c)
	ctx := context.Background()

	eng.Dispatch(ctx, Command{Kind: CmdPropose, Actor: a, Group: "G", ConfigKey: "min_vouches", ConfigValue: "3"})
	state, _ := store.Get(ctx, "G")
	var proposalID models.ProposalId
	for id := range state.ActiveProposals {
		proposalID = id
	}

	if res := eng.Dispatch(ctx, Command{Kind: CmdVote, Actor: b, Group: "G", ProposalID: proposalID, VoteOption: 0}); res.Code != ExitOK {
		t.Fatalf("first vote: expected ExitOK, got %v", res.Code)
	}
	if res := eng.Dispatch(ctx, Command{Kind: CmdVote, Actor: b, Group: "G", ProposalID: proposalID, VoteOption: 0}); res.Code == ExitOK {
		t.Fatalf("expected a repeat vote from the same member to be rejected")
	}
}

// Confirms checkRateLimit's Decision.Next is actually persisted into the
// replicated state via DeltaSetRateLimit, not just computed and dropped.
func TestDispatchPersistsRateLimitState(t *testing.T) {
	a, b, c := engineMember(t, 1), engineMember(t, 2), engineMember(t, 3)
	eng, store := newTestEngine(t, a, b, c)
	ctx := context.Background()

	res := eng.Dispatch(ctx, Command{Kind: CmdFlag, Actor: a, Group: "G", Target: b})
	if res.Code != ExitOK {
		t.Fatalf("flag: expected ExitOK, got %v (%s)", res.Code, res.Message)
	}

	state, err := store.Get(ctx, "G")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	key := ratelimit.Key(a, "flag")
	got, ok := state.RateLimits[key]
	if !ok {
		t.Fatalf("expected a RateLimits entry for (actor, \"flag\") after Dispatch, found none")
	}
	if got.Tier != models.TierImmediate || got.LastActionSec != 1000 {
		t.Fatalf("expected Tier=Immediate LastActionSec=1000, got %+v", got)
	}
}
