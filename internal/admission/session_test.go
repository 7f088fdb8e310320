package admission

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/roder/stroma/pkg/models"
)

func testHash(t *testing.T, seed byte) models.MemberHash {
	t.Helper()
	b := make([]byte, 32)
	b[0] = seed
	h, err := models.MemberHashFromBytes(b)
	if err != nil {
		t.Fatalf("MemberHashFromBytes: %v", err)
	}
	return h
}

func TestRejectIntroRematchesRatherThanTerminates(t *testing.T) {
	inviter, candidate, assessor := testHash(t, 1), testHash(t, 2), testHash(t, 3)
	s := NewSession(inviter, candidate)
	if err := s.AssignAssessor(assessor); err != nil {
		t.Fatalf("AssignAssessor: %v", err)
	}

	if err := s.RejectIntro(assessor); err != nil {
		t.Fatalf("RejectIntro: %v", err)
	}
	if s.State != PendingMatch {
		t.Fatalf("expected PendingMatch after reject_intro, got %s", s.State)
	}
	if s.Terminal() {
		t.Fatalf("a reject_intro must not terminate the session")
	}
	if !s.ExcludedAssessors.Contains(assessor) {
		t.Fatalf("expected the declining assessor banked in ExcludedAssessors")
	}
	if !s.Assessor.IsZero() {
		t.Fatalf("expected Assessor cleared after reject_intro")
	}

	next := testHash(t, 4)
	if err := s.AssignAssessor(next); err != nil {
		t.Fatalf("re-assigning a new assessor after reject_intro: %v", err)
	}
	if s.State != AwaitingVouch {
		t.Fatalf("expected AwaitingVouch after re-matching, got %s", s.State)
	}
}

func TestRejectIntroRejectsNonAssessorCaller(t *testing.T) {
	inviter, candidate, assessor := testHash(t, 1), testHash(t, 2), testHash(t, 3)
	s := NewSession(inviter, candidate)
	if err := s.AssignAssessor(assessor); err != nil {
		t.Fatalf("AssignAssessor: %v", err)
	}
	other := testHash(t, 9)
	if err := s.RejectIntro(other); errors.Cause(err) != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition for a non-assessor caller, got %v", err)
	}
	if s.State != AwaitingVouch {
		t.Fatalf("a rejected reject_intro attempt must not change state, got %s", s.State)
	}
}

func TestFailProofForcesRejectedFromAnyNonTerminalState(t *testing.T) {
	inviter, candidate := testHash(t, 1), testHash(t, 2)
	s := NewSession(inviter, candidate)
	if err := s.FailProof(); err != nil {
		t.Fatalf("FailProof from PendingMatch: %v", err)
	}
	if s.State != Rejected {
		t.Fatalf("expected Rejected, got %s", s.State)
	}
	if err := s.FailProof(); err == nil {
		t.Fatalf("expected FailProof on an already-terminal session to error")
	}
}

func TestVouchFromNonAssessorDoesNotResolveSession(t *testing.T) {
	inviter, candidate, assessor := testHash(t, 1), testHash(t, 2), testHash(t, 3)
	s := NewSession(inviter, candidate)
	if err := s.AssignAssessor(assessor); err != nil {
		t.Fatalf("AssignAssessor: %v", err)
	}
	bystander := testHash(t, 8)
	if err := s.Vouch(bystander); err == nil {
		t.Fatalf("expected a vouch from a non-assessor to be rejected")
	}
	if s.State != AwaitingVouch {
		t.Fatalf("expected state unchanged, got %s", s.State)
	}
	if err := s.Vouch(assessor); err != nil {
		t.Fatalf("Vouch from assigned assessor: %v", err)
	}
	if s.State != Admitted {
		t.Fatalf("expected Admitted, got %s", s.State)
	}
}
