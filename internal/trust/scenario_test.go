package trust

import (
	"testing"

	"github.com/roder/stroma/internal/governance"
	"github.com/roder/stroma/internal/standing"
	"github.com/roder/stroma/pkg/models"
)

func member(t *testing.T, seed byte) models.MemberHash {
	t.Helper()
	b := make([]byte, 32)
	b[0] = seed
	h, err := models.MemberHashFromBytes(b)
	if err != nil {
		t.Fatalf("MemberHashFromBytes: %v", err)
	}
	return h
}

func stamp(t int64, actor models.MemberHash) models.LamportStamp {
	return models.LamportStamp{LogicalTime: t, Actor: actor}
}

func mustApply(t *testing.T, s *models.TrustNetworkState, d models.StateDelta) *models.TrustNetworkState {
	t.Helper()
	out, err := ApplyDelta(s, d)
	if err != nil {
		t.Fatalf("ApplyDelta(%v): %v", d, err)
	}
	return out
}

// S1: Bootstrap triangle. Three members inserted with mutual vouches.
// Expected: members = {A,B,C}, each has effective_vouches = 2, standing = 2,
// ejected = empty.
func TestScenarioS1BootstrapTriangle(t *testing.T) {
	a, b, c := member(t, 1), member(t, 2), member(t, 3)
	s := models.NewTrustNetworkState("G")

	s = mustApply(t, s, models.AddMemberDelta(stamp(1, a), a))
	s = mustApply(t, s, models.AddMemberDelta(stamp(2, a), b))
	s = mustApply(t, s, models.AddMemberDelta(stamp(3, a), c))

	for i, pair := range [][2]models.MemberHash{{a, b}, {b, a}, {a, c}, {c, a}, {b, c}, {c, b}} {
		s = mustApply(t, s, models.AddVouchDelta(stamp(int64(10+i), a), pair[0], pair[1]))
	}

	if len(s.Members) != 3 || !s.Members.Contains(a) || !s.Members.Contains(b) || !s.Members.Contains(c) {
		t.Fatalf("expected members = {A,B,C}, got %v", s.Members)
	}
	if len(s.Ejected) != 0 {
		t.Fatalf("expected no ejections, got %v", s.Ejected)
	}
	for _, m := range []models.MemberHash{a, b, c} {
		if got := s.EffectiveVouches(m); got != 2 {
			t.Fatalf("member %s: expected effective_vouches=2, got %d", m, got)
		}
		if got := standing.Standing(s, m); got != 2 {
			t.Fatalf("member %s: expected standing=2, got %d", m, got)
		}
	}
	if err := Validate(s); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

// S3: Voucher-flagger invalidation. X has vouches from A,B; B flags X.
// Expected: voucher_flaggers={B}, effective_vouches=1, regular_flags=0,
// standing=1. T1 fires (1 < min_vouches=2).
func TestScenarioS3VoucherFlaggerInvalidation(t *testing.T) {
	a, b, x := member(t, 1), member(t, 2), member(t, 3)
	s := models.NewTrustNetworkState("G")
	s = mustApply(t, s, models.AddMemberDelta(stamp(1, a), a))
	s = mustApply(t, s, models.AddMemberDelta(stamp(2, a), b))
	s = mustApply(t, s, models.AddMemberDelta(stamp(3, a), x))
	s = mustApply(t, s, models.AddVouchDelta(stamp(4, a), a, x))
	s = mustApply(t, s, models.AddVouchDelta(stamp(5, a), b, x))
	s = mustApply(t, s, models.AddFlagDelta(stamp(6, b), b, x))

	flaggers := s.VoucherFlaggers(x)
	if len(flaggers) != 1 || !flaggers.Contains(b) {
		t.Fatalf("expected voucher_flaggers={B}, got %v", flaggers)
	}
	if got := s.EffectiveVouches(x); got != 1 {
		t.Fatalf("expected effective_vouches=1 (B's vouch is cancelled by B's own flag), got %d", got)
	}
	if got := s.RegularFlags(x); got != 0 {
		t.Fatalf("expected regular_flags=0 (B is a voucher-flagger, not a regular flagger), got %d", got)
	}

	// Withdrawing A's vouch as well leaves only B's vouch, which B's own
	// flag cancels: effective_vouches drops to 0 and T1 still fires.
	s = mustApply(t, s, models.RemoveVouchDelta(stamp(7, a), a, x))
	if got := s.EffectiveVouches(x); got != 0 {
		t.Fatalf("expected effective_vouches=0 after A's vouch is withdrawn, got %d", got)
	}
	if got := standing.Standing(s, x); got != 0 {
		t.Fatalf("expected standing=0, got %d", got)
	}
	if v := standing.Evaluate(s, x); v != standing.T1Undervouched {
		t.Fatalf("expected T1Undervouched, got %v", v)
	}
}

// S6: Delta merge with tombstone precedence. Node 1 adds a vouch from A;
// node 2 concurrently ejects A. Merging in either order tombstones A and
// drops the vouch.
func TestScenarioS6MergeTombstonePrecedence(t *testing.T) {
	a, x := member(t, 1), member(t, 2)
	base := models.NewTrustNetworkState("G")
	base = mustApply(t, base, models.AddMemberDelta(stamp(1, a), a))
	base = mustApply(t, base, models.AddMemberDelta(stamp(2, a), x))

	node1 := mustApply(t, base, models.AddVouchDelta(stamp(3, a), a, x))
	node2 := mustApply(t, base, models.RemoveMemberDelta(stamp(3, x), a))

	forward := Merge(node1, node2)
	backward := Merge(node2, node1)

	for name, merged := range map[string]*models.TrustNetworkState{"forward": forward, "backward": backward} {
		if !merged.Ejected.Contains(a) {
			t.Fatalf("%s: expected A tombstoned", name)
		}
		if merged.Members.Contains(a) {
			t.Fatalf("%s: expected A not a member", name)
		}
		if merged.Vouches.Has(a, x) {
			t.Fatalf("%s: expected A's vouch for X dropped on tombstone", name)
		}
		if got := merged.EffectiveVouches(x); got != 0 {
			t.Fatalf("%s: expected X's effective_vouches recomputed to 0 excluding tombstoned A, got %d", name, got)
		}
	}
}

func TestMergeCommutativeAndAssociative(t *testing.T) {
	a, b, c := member(t, 1), member(t, 2), member(t, 3)
	s1 := models.NewTrustNetworkState("G")
	s1 = mustApply(t, s1, models.AddMemberDelta(stamp(1, a), a))

	s2 := models.NewTrustNetworkState("G")
	s2 = mustApply(t, s2, models.AddMemberDelta(stamp(2, b), b))

	s3 := models.NewTrustNetworkState("G")
	s3 = mustApply(t, s3, models.AddMemberDelta(stamp(3, c), c))

	ab := Merge(s1, s2)
	ba := Merge(s2, s1)
	if !ab.Members.Contains(a) || !ab.Members.Contains(b) || len(ab.Members) != len(ba.Members) {
		t.Fatalf("merge not commutative: ab=%v ba=%v", ab.Members, ba.Members)
	}

	left := Merge(Merge(s1, s2), s3)
	right := Merge(s1, Merge(s2, s3))
	if len(left.Members) != 3 || len(right.Members) != 3 {
		t.Fatalf("merge not associative: left=%v right=%v", left.Members, right.Members)
	}
	for _, m := range []models.MemberHash{a, b, c} {
		if !left.Members.Contains(m) || !right.Members.Contains(m) {
			t.Fatalf("associativity mismatch on member %s", m)
		}
	}
}

// Governance proposal lifecycle replicated entirely through StateDelta:
// open, cast two votes, resolve, and confirm the config change lands in
// Config the same way any other SetConfig delta would.
func TestGovernanceProposalLifecycleThroughDeltas(t *testing.T) {
	a, b, c := member(t, 1), member(t, 2), member(t, 3)
	s := models.NewTrustNetworkState("G")
	s = mustApply(t, s, models.AddMemberDelta(stamp(1, a), a))
	s = mustApply(t, s, models.AddMemberDelta(stamp(2, a), b))
	s = mustApply(t, s, models.AddMemberDelta(stamp(3, a), c))

	cfg := s.Config
	options := []models.ProposalOption{{Label: "2", Value: "2"}, {Label: "3", Value: "3"}}
	p, err := governance.Open(models.ProposalConfigChange, a, "min_vouches", options, uint32(len(s.Members)), cfg, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s = mustApply(t, s, models.OpenProposalDelta(stamp(4, a), *p))

	if _, ok := s.ActiveProposals[p.ID]; !ok {
		t.Fatalf("expected the proposal to survive ApplyDelta(DeltaOpenProposal)")
	}

	voteKey := []byte("vote key")
	commitB := governance.VoteCommitment(voteKey, p.ID, b)
	commitC := governance.VoteCommitment(voteKey, p.ID, c)
	s = mustApply(t, s, models.CastVoteDelta(stamp(5, b), p.ID, commitB, 1))
	s = mustApply(t, s, models.CastVoteDelta(stamp(6, c), p.ID, commitC, 1))

	live := s.ActiveProposals[p.ID]
	if live.Tally[1] != 2 {
		t.Fatalf("expected option 1 tally=2 after two votes, got %v", live.Tally)
	}

	// A duplicate commitment from the same voter must be rejected, not
	// double-counted.
	if _, err := ApplyDelta(s, models.CastVoteDelta(stamp(7, b), p.ID, commitB, 1)); err == nil {
		t.Fatalf("expected duplicate vote commitment to be rejected")
	}

	idx, outcome, resolved := governance.DecideOutcome(live, 0)
	if !resolved || outcome != models.ProposalAdopted || idx != 1 {
		t.Fatalf("expected immediate adoption of option 1, got idx=%d outcome=%v resolved=%v", idx, outcome, resolved)
	}

	s = mustApply(t, s, models.ResolveProposalDelta(stamp(8, a), p.ID, outcome))
	s = mustApply(t, s, models.SetConfigDelta(stamp(8, a), "min_vouches", options[idx].Value))

	if s.Config.MinVouches != 3 {
		t.Fatalf("expected min_vouches updated to 3, got %d", s.Config.MinVouches)
	}
	resolvedProposal := s.ActiveProposals[p.ID]
	if resolvedProposal.Outcome != models.ProposalAdopted {
		t.Fatalf("expected ActiveProposal.Outcome=Adopted, got %v", resolvedProposal.Outcome)
	}
	if len(resolvedProposal.Votes) != 0 {
		t.Fatalf("expected vote-commitment set zeroed on resolution, got %d entries", len(resolvedProposal.Votes))
	}

	// Resolving again must be a no-op, not a double-apply of SetConfig.
	s2 := mustApply(t, s, models.ResolveProposalDelta(stamp(9, a), p.ID, outcome))
	if s2.ActiveProposals[p.ID].Outcome != models.ProposalAdopted {
		t.Fatalf("re-resolving an already-resolved proposal must leave its outcome unchanged")
	}
}

func TestMergeIdempotent(t *testing.T) {
	a, b := member(t, 1), member(t, 2)
	s := models.NewTrustNetworkState("G")
	s = mustApply(t, s, models.AddMemberDelta(stamp(1, a), a))
	s = mustApply(t, s, models.AddMemberDelta(stamp(2, a), b))
	s = mustApply(t, s, models.AddVouchDelta(stamp(3, a), a, b))

	merged := Merge(s, s)
	if len(merged.Members) != len(s.Members) || !merged.Vouches.Has(a, b) {
		t.Fatalf("merge(s,s) should equal s, got members=%v vouches=%v", merged.Members, merged.Vouches)
	}
}
