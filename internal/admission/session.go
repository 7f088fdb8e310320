// Package admission implements the admission state machine (spec.md
// §4.8): an ephemeral, RAM-only VettingSession that tracks one
// prospective member from invite through to Admitted, Rejected or
// Stalled. Sessions are never persisted or replicated — only their
// terminal outcome (an AddMember or nothing at all) ever reaches
// models.TrustNetworkState, matching spec.md §3's "VettingSession
// (ephemeral RAM-only)" data model entry.
package admission

import (
	"github.com/pkg/errors"

	"github.com/roder/stroma/pkg/models"
)

// State names a VettingSession's position in the admission state machine.
type State uint8

const (
	PendingMatch State = iota
	AwaitingVouch
	Admitted
	Rejected
	Stalled
)

func (s State) String() string {
	switch s {
	case PendingMatch:
		return "pending_match"
	case AwaitingVouch:
		return "awaiting_vouch"
	case Admitted:
		return "admitted"
	case Rejected:
		return "rejected"
	case Stalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Session is one candidate's ephemeral admission record. It is held in
// memory only by internal/engine, keyed by Candidate; losing it (process
// restart) simply means the candidate must be re-invited, which spec.md
// explicitly accepts as the cost of never persisting pre-admission state.
type Session struct {
	Candidate models.MemberHash
	Inviter   models.MemberHash
	Assessor  models.MemberHash
	State     State

	// ExcludedAssessors accumulates every assessor who has declined this
	// candidate; select_assessor must never reconsider one of them.
	ExcludedAssessors models.MemberSet

	// HasPreviousFlags/PreviousFlagCount record, at invite time, how many
	// members had already flagged the candidate before this vetting
	// session existed.
	HasPreviousFlags  bool
	PreviousFlagCount int
}

// ErrInvalidTransition is returned when an event is applied to a Session
// in a state that does not accept it.
var ErrInvalidTransition = errors.New("admission: invalid state transition")

// NewSession starts a candidate's vetting in PendingMatch, per spec.md
// §4.8's /invite command.
func NewSession(inviter, candidate models.MemberHash) *Session {
	return &Session{
		Candidate:         candidate,
		Inviter:           inviter,
		State:             PendingMatch,
		ExcludedAssessors: models.NewMemberSet(),
	}
}

// AssignAssessor moves PendingMatch -> AwaitingVouch once an assessor has
// been chosen. If matchmaker.SelectAssessor stalled, call Stall instead.
func (s *Session) AssignAssessor(assessor models.MemberHash) error {
	if s.State != PendingMatch {
		return errors.Wrapf(ErrInvalidTransition, "assign_assessor from %s", s.State)
	}
	s.Assessor = assessor
	s.State = AwaitingVouch
	return nil
}

// Stall moves PendingMatch -> Stalled when no eligible assessor exists.
func (s *Session) Stall() error {
	if s.State != PendingMatch {
		return errors.Wrapf(ErrInvalidTransition, "stall from %s", s.State)
	}
	s.State = Stalled
	return nil
}

// RejectIntro moves AwaitingVouch -> PendingMatch when the assigned
// assessor declines to vouch, per the /reject-intro command: the
// declining assessor is banked in ExcludedAssessors and the caller is
// expected to re-run select_assessor with the updated exclusion set and
// call AssignAssessor or Stall on the result. The session is never
// terminated by a decline alone.
func (s *Session) RejectIntro(caller models.MemberHash) error {
	if s.State != AwaitingVouch {
		return errors.Wrapf(ErrInvalidTransition, "reject_intro from %s", s.State)
	}
	if caller != s.Assessor {
		return errors.Wrap(ErrInvalidTransition, "reject_intro from non-assessor")
	}
	s.ExcludedAssessors.Add(s.Assessor)
	s.Assessor = models.MemberHash{}
	s.State = PendingMatch
	return nil
}

// FailProof force-terminates the session to Rejected when the assessor's
// VouchProof fails verification, per spec.md §7's ProofFailed taxonomy
// entry: admission fails regardless of whose vouch triggered the check.
func (s *Session) FailProof() error {
	if s.Terminal() {
		return errors.Wrapf(ErrInvalidTransition, "fail_proof from terminal state %s", s.State)
	}
	s.State = Rejected
	return nil
}

// Vouch moves AwaitingVouch -> Admitted when the assigned assessor
// vouches for the candidate, per the /vouch command. voucher must equal
// the session's assigned Assessor — a vouch from anyone else does not
// resolve this session (it may still be recorded as an ordinary AddVouch
// delta by the caller, just not as this session's outcome).
func (s *Session) Vouch(voucher models.MemberHash) error {
	if s.State != AwaitingVouch {
		return errors.Wrapf(ErrInvalidTransition, "vouch from %s", s.State)
	}
	if voucher != s.Assessor {
		return errors.Wrap(ErrInvalidTransition, "vouch from non-assessor does not resolve session")
	}
	s.State = Admitted
	return nil
}

// Flag moves AwaitingVouch -> Rejected when the assigned assessor flags
// the candidate instead of vouching, per the /flag command.
func (s *Session) Flag(flagger models.MemberHash) error {
	if s.State != AwaitingVouch {
		return errors.Wrapf(ErrInvalidTransition, "flag from %s", s.State)
	}
	if flagger != s.Assessor {
		return errors.Wrap(ErrInvalidTransition, "flag from non-assessor does not resolve session")
	}
	s.State = Rejected
	return nil
}

// Terminal reports whether the session has reached Admitted, Rejected or
// Stalled and will accept no further events.
func (s *Session) Terminal() bool {
	return s.State == Admitted || s.State == Rejected || s.State == Stalled
}
