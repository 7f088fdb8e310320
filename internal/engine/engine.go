package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roder/stroma/internal/admission"
	"github.com/roder/stroma/internal/audit"
	"github.com/roder/stroma/internal/graph"
	"github.com/roder/stroma/internal/governance"
	"github.com/roder/stroma/internal/health"
	"github.com/roder/stroma/internal/matchmaker"
	"github.com/roder/stroma/internal/proof"
	"github.com/roder/stroma/internal/ratelimit"
	"github.com/roder/stroma/internal/standing"
	"github.com/roder/stroma/internal/transport"
	"github.com/roder/stroma/internal/trust"
	"github.com/roder/stroma/pkg/models"
)

// Clock supplies Unix-second timestamps. It is an interface, not a direct
// time.Now() call, purely so property tests can drive the engine with
// deterministic clocks (spec.md never runs its property tests against
// wall-clock time).
type Clock interface {
	NowSec() int64
}

// Engine is the explicit, non-singleton owner of one group's replicated
// state plus every component that mutates it: rate limiter, audit
// recorder, health monitor, matchmaker, governance, and the pluggable
// proof backend. Multiple Engines (one per group) can coexist in one
// process, each with its own lock and its own logical clock.
type Engine struct {
	group     string
	store     transport.StateStore
	messenger transport.Messenger
	poll      transport.PollService
	monitor   *health.Monitor
	proof     proof.Backend
	clock     Clock
	log       *zap.Logger

	mu          sync.Mutex
	logicalTime int64

	sessions map[models.MemberHash]*admission.Session

	voteKey []byte
}

// New builds an Engine for one group.
func New(group string, store transport.StateStore, messenger transport.Messenger, poll transport.PollService, backend proof.Backend, clock Clock, voteKey []byte, log *zap.Logger) *Engine {
	return &Engine{
		group:     group,
		store:     store,
		messenger: messenger,
		poll:      poll,
		monitor:   health.New(log, nil),
		proof:     backend,
		clock:     clock,
		log:       log,
		sessions:  map[models.MemberHash]*admission.Session{},
		voteKey:   voteKey,
	}
}

func (e *Engine) nextStamp(actor models.MemberHash) models.LamportStamp {
	t := atomic.AddInt64(&e.logicalTime, 1)
	return models.LamportStamp{LogicalTime: t, Actor: actor}
}

// Dispatch is the single entry point every messaging-surface command
// flows through: rate limit check -> command-specific delta(s), audit
// entries included -> apply -> health-monitor cascade -> invariant
// validation -> commit -> async ejection announcements. The read-only
// commands (status, mesh, audit) return right after the rate limit check
// and commit nothing.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.Get(ctx, e.group)
	if err != nil {
		return Result{Code: ExitTransient, Message: err.Error()}
	}

	decision := e.checkRateLimit(state, cmd)
	rlDelta := models.SetRateLimitDelta(e.nextStamp(cmd.Actor), ratelimit.Key(cmd.Actor, actionName(cmd.Kind)), decision.Next)
	if !decision.Allowed {
		// Persist the escalated tier/strike count even on a blocked call,
		// otherwise the actor's cooldown never advances past its first hit.
		if _, err := trust.ApplyDelta(state, rlDelta); err == nil {
			_ = e.store.PutDelta(ctx, e.group, rlDelta)
		}
		return Result{Code: ExitRateLimited, Message: "rate limited, try again later"}
	}

	var deltas []models.StateDelta
	var result Result

	switch cmd.Kind {
	case CmdCreateGroup:
		deltas, result = e.handleCreateGroup(state, cmd)
	case CmdInvite:
		deltas, result = e.handleInvite(state, cmd)
	case CmdVouch:
		deltas, result = e.handleVouch(state, cmd)
	case CmdFlag:
		deltas, result = e.handleFlag(state, cmd)
	case CmdRejectIntro:
		deltas, result = e.handleRejectIntro(state, cmd)
	case CmdPropose:
		deltas, result = e.handlePropose(ctx, state, cmd)
	case CmdVote:
		deltas, result = e.handleVote(state, cmd)
	case CmdStatus:
		return e.handleStatus(state, cmd)
	case CmdMesh:
		return e.handleMesh(state, cmd)
	case CmdAudit:
		return e.handleAudit(state, cmd)
	default:
		return Result{Code: ExitInvalidUpdate, Message: "unrecognized command"}
	}
	if result.Code != ExitOK {
		return result
	}
	deltas = append([]models.StateDelta{rlDelta}, deltas...)

	for _, d := range deltas {
		state, err = trust.ApplyDelta(state, d)
		if err != nil {
			return Result{Code: ExitInvalidUpdate, Message: err.Error()}
		}
	}

	ejections := e.monitor.ScanVerdicts(state, func() models.LamportStamp { return e.nextStamp(cmd.Actor) })
	for _, ej := range ejections {
		state, err = trust.ApplyDelta(state, ej.Delta)
		if err != nil {
			return Result{Code: ExitInvalidUpdate, Message: err.Error()}
		}
		deltas = append(deltas, ej.Delta)
	}

	if err := trust.Validate(state); err != nil {
		return Result{Code: ExitInvalidState, Message: err.Error()}
	}

	for _, d := range deltas {
		if err := e.store.PutDelta(ctx, e.group, d); err != nil {
			return Result{Code: ExitTransient, Message: err.Error()}
		}
	}

	for _, ej := range ejections {
		go e.monitor.AnnounceEjection(context.Background(), ej.Member, ej.Verdict)
	}

	// A vote may have just cleared quorum and threshold; check for early
	// resolution now instead of waiting for the poll's timeout to expire.
	if cmd.Kind == CmdVote {
		if res, err := e.resolveProposalLocked(ctx, state, cmd.ProposalID); err == nil && res.Code == ExitOK {
			deltas = append(deltas, res.Deltas...)
		}
	}

	result.Deltas = deltas
	return result
}

func (e *Engine) checkRateLimit(state *models.TrustNetworkState, cmd Command) ratelimit.Decision {
	action := actionName(cmd.Kind)
	return ratelimit.Check(state, cmd.Actor, action, e.clock.NowSec())
}

func actionName(k CommandKind) string {
	switch k {
	case CmdInvite:
		return "invite"
	case CmdVouch:
		return "vouch"
	case CmdFlag:
		return "flag"
	case CmdPropose:
		return "propose"
	case CmdVote:
		return "vote"
	default:
		return "other"
	}
}

func (e *Engine) handleCreateGroup(state *models.TrustNetworkState, cmd Command) ([]models.StateDelta, Result) {
	stamp := e.nextStamp(cmd.Actor)
	d := models.AddMemberDelta(stamp, cmd.Actor)
	ad, err := audit.Delta(state, stamp, models.AuditMemberAdded, cmd.Actor, cmd.Actor, "bootstrap")
	if err != nil {
		return nil, Result{Code: ExitTransient, Message: err.Error()}
	}
	return []models.StateDelta{d, ad}, Result{Code: ExitOK}
}

// previousFlagCount returns the number of distinct members who have
// already flagged target, per spec.md §4.8 invite step 2's
// has_previous_flags/previous_flag_count query. Unlike
// models.TrustNetworkState.RegularFlags, this counts every flagger
// regardless of whether they also vouch for target — the invite-time
// query cares that a flag exists at all, not how it feeds the standing
// formula.
func previousFlagCount(s *models.TrustNetworkState, target models.MemberHash) int {
	count := 0
	for _, targets := range s.Flags {
		if targets.Contains(target) {
			count++
		}
	}
	return count
}

func (e *Engine) handleInvite(state *models.TrustNetworkState, cmd Command) ([]models.StateDelta, Result) {
	stamp := e.nextStamp(cmd.Actor)

	sess := admission.NewSession(cmd.Actor, cmd.Target)
	sess.PreviousFlagCount = previousFlagCount(state, cmd.Target)
	sess.HasPreviousFlags = sess.PreviousFlagCount > 0

	// Step 3: the inviter's own vouch is recorded immediately, before the
	// assessor is even chosen.
	vouchDelta := models.AddVouchDelta(stamp, cmd.Actor, cmd.Target)

	cr := graph.Analyze(state)
	outcome := matchmaker.SelectAssessor(state, cr, cmd.Actor, nil)
	if outcome.Stalled {
		sess.Stall()
		e.sessions[cmd.Target] = sess
		return []models.StateDelta{vouchDelta}, Result{Code: ExitOK, Message: "stalled: no eligible assessor"}
	}
	if err := sess.AssignAssessor(outcome.Assessor); err != nil {
		return nil, Result{Code: ExitInvalidState, Message: err.Error()}
	}
	e.sessions[cmd.Target] = sess
	return []models.StateDelta{vouchDelta}, Result{Code: ExitOK, Message: "awaiting vouch from assigned assessor"}
}

func (e *Engine) handleVouch(state *models.TrustNetworkState, cmd Command) ([]models.StateDelta, Result) {
	stamp := e.nextStamp(cmd.Actor)
	vouchDelta := models.AddVouchDelta(stamp, cmd.Actor, cmd.Target)

	// Evaluate the admission threshold against the state as it would
	// look with this vouch already applied, per spec.md §4.8 vouch step
	// 4 — the candidate is ordinarily not yet a member, but
	// EffectiveVouches/Standing read directly off the Vouches/Flags
	// graphs and don't require that.
	candidate, err := trust.ApplyDelta(state, vouchDelta)
	if err != nil {
		return nil, Result{Code: ExitInvalidUpdate, Message: err.Error()}
	}

	deltas := []models.StateDelta{vouchDelta}

	sess, hasSession := e.sessions[cmd.Target]
	if hasSession && !sess.Terminal() {
		// A vouch from anyone but the assigned assessor doesn't resolve
		// the session; that's fine, it's still recorded as an ordinary
		// vouch above.
		_ = sess.Vouch(cmd.Actor)
	}

	meetsThreshold := candidate.EffectiveVouches(cmd.Target) >= int(candidate.Config.MinVouches) &&
		standing.Standing(candidate, cmd.Target) >= 0
	if meetsThreshold && !state.Members.Contains(cmd.Target) {
		claim := proof.VouchClaim{Voucher: cmd.Actor, Target: cmd.Target, AsOf: e.clock.NowSec()}
		vp, perr := e.proof.Prove(claim)
		if perr == nil {
			perr = e.proof.Verify(claim, vp)
		}
		if perr != nil {
			if hasSession {
				_ = sess.FailProof()
			}
			return nil, Result{Code: ExitInvalidState, Message: errors.Wrap(perr, "proof verification failed").Error()}
		}
		deltas = append(deltas, models.AddMemberDelta(stamp, cmd.Target))
	}

	ad, err := audit.Delta(state, stamp, models.AuditVouchAdded, cmd.Actor, cmd.Target, "")
	if err != nil {
		return nil, Result{Code: ExitTransient, Message: err.Error()}
	}
	deltas = append(deltas, ad)
	return deltas, Result{Code: ExitOK}
}

func (e *Engine) handleFlag(state *models.TrustNetworkState, cmd Command) ([]models.StateDelta, Result) {
	stamp := e.nextStamp(cmd.Actor)
	if sess, ok := e.sessions[cmd.Target]; ok && !sess.Terminal() {
		sess.Flag(cmd.Actor)
	}
	d := models.AddFlagDelta(stamp, cmd.Actor, cmd.Target)
	ad, err := audit.Delta(state, stamp, models.AuditFlagAdded, cmd.Actor, cmd.Target, "")
	if err != nil {
		return nil, Result{Code: ExitTransient, Message: err.Error()}
	}
	return []models.StateDelta{d, ad}, Result{Code: ExitOK}
}

// handleRejectIntro implements /reject-intro: the declining assessor
// joins the session's exclusion set and select_assessor re-runs against
// the updated exclusion set, re-matching the session rather than
// terminating it (spec.md §4.8 reject_intro).
func (e *Engine) handleRejectIntro(state *models.TrustNetworkState, cmd Command) ([]models.StateDelta, Result) {
	sess, ok := e.sessions[cmd.Target]
	if !ok {
		return nil, Result{Code: ExitInvalidUpdate, Message: "no session for candidate"}
	}
	if err := sess.RejectIntro(cmd.Actor); err != nil {
		return nil, Result{Code: ExitInvalidState, Message: err.Error()}
	}

	cr := graph.Analyze(state)
	outcome := matchmaker.SelectAssessor(state, cr, sess.Inviter, sess.ExcludedAssessors)
	if outcome.Stalled {
		if err := sess.Stall(); err != nil {
			return nil, Result{Code: ExitInvalidState, Message: err.Error()}
		}
		return nil, Result{Code: ExitOK, Message: "stalled: no remaining eligible assessor"}
	}
	if err := sess.AssignAssessor(outcome.Assessor); err != nil {
		return nil, Result{Code: ExitInvalidState, Message: err.Error()}
	}
	return nil, Result{Code: ExitOK, Message: "re-matched to a new assessor"}
}

func (e *Engine) handlePropose(ctx context.Context, state *models.TrustNetworkState, cmd Command) ([]models.StateDelta, Result) {
	stamp := e.nextStamp(cmd.Actor)
	options := []models.ProposalOption{{Label: "proposed", Value: cmd.ConfigValue}}
	p, err := governance.Open(models.ProposalConfigChange, cmd.Actor, cmd.ConfigKey, options, uint32(len(state.Members)), state.Config, e.clock.NowSec())
	if err != nil {
		return nil, Result{Code: ExitInvalidUpdate, Message: err.Error()}
	}

	labels := make([]string, len(options))
	for i, opt := range options {
		labels[i] = opt.Label
	}
	if err := e.poll.CreatePoll(ctx, e.group, p.ID, "config change: "+cmd.ConfigKey, labels, p.TimeoutAt); err != nil {
		e.log.Warn("create_poll failed", zap.Error(err))
	}
	return []models.StateDelta{models.OpenProposalDelta(stamp, *p)}, Result{Code: ExitOK, Message: "proposal opened"}
}

// handleVote implements /vote: the caller's vote is recorded against an
// open proposal's tally via a keyed HMAC dedup commitment (spec.md
// §4.12's vote-privacy requirement), then the proposal is checked for
// early resolution in case this vote already clears quorum and threshold.
func (e *Engine) handleVote(state *models.TrustNetworkState, cmd Command) ([]models.StateDelta, Result) {
	p, ok := state.ActiveProposals[cmd.ProposalID]
	if !ok {
		return nil, Result{Code: ExitInvalidUpdate, Message: "unknown proposal"}
	}
	if p.Outcome != models.ProposalPending {
		return nil, Result{Code: ExitInvalidState, Message: "proposal already resolved"}
	}
	if cmd.VoteOption < 0 || cmd.VoteOption >= len(p.Tally) {
		return nil, Result{Code: ExitInvalidUpdate, Message: "vote option out of range"}
	}
	commitment := governance.VoteCommitment(e.voteKey, cmd.ProposalID, cmd.Actor)
	if _, dup := p.Votes[commitment]; dup {
		return nil, Result{Code: ExitInvalidState, Message: "member already voted"}
	}

	stamp := e.nextStamp(cmd.Actor)
	return []models.StateDelta{models.CastVoteDelta(stamp, cmd.ProposalID, commitment, cmd.VoteOption)}, Result{Code: ExitOK, Message: "vote recorded"}
}

// ResolveProposal checks one proposal for resolution — quorum and
// threshold both met, or timed out — per spec.md §4.12, and commits the
// resulting SetConfig/AppendAudit deltas through the normal pipeline.
// Called reactively from ReactToPollEvents on a ProposalExpired event,
// and may also be called directly after a vote that might have cleared
// quorum/threshold early.
func (e *Engine) ResolveProposal(ctx context.Context, proposalID models.ProposalId) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.Get(ctx, e.group)
	if err != nil {
		return Result{}, err
	}
	return e.resolveProposalLocked(ctx, state, proposalID)
}

// resolveProposalLocked is ResolveProposal's body, factored out so
// handleVote's caller (Dispatch) can attempt early resolution in the
// same critical section right after a vote lands, instead of only ever
// resolving reactively from a poll-expiry event.
func (e *Engine) resolveProposalLocked(ctx context.Context, state *models.TrustNetworkState, proposalID models.ProposalId) (Result, error) {
	p, ok := state.ActiveProposals[proposalID]
	if !ok {
		return Result{}, errors.New("engine: unknown proposal")
	}

	idx, outcome, resolved := governance.DecideOutcome(p, e.clock.NowSec())
	if !resolved {
		return Result{Code: ExitOK, Message: "not yet resolved"}, nil
	}

	stamp := e.nextStamp(p.Proposer)
	deltas := []models.StateDelta{models.ResolveProposalDelta(stamp, proposalID, outcome)}
	if outcome == models.ProposalAdopted && p.Kind == models.ProposalConfigChange {
		deltas = append(deltas, models.SetConfigDelta(stamp, p.ConfigKey, p.Options[idx].Value))
	}
	ad, err := audit.Delta(state, stamp, models.AuditProposalResolved, p.Proposer, models.MemberHash{}, p.ConfigKey)
	if err != nil {
		return Result{}, err
	}
	deltas = append(deltas, ad)

	for _, d := range deltas {
		state, err = trust.ApplyDelta(state, d)
		if err != nil {
			return Result{}, err
		}
	}
	if err := trust.Validate(state); err != nil {
		return Result{}, err
	}
	for _, d := range deltas {
		if err := e.store.PutDelta(ctx, e.group, d); err != nil {
			return Result{}, err
		}
	}

	aggregate := models.VoteAggregate{VotesPerOption: append([]uint32(nil), p.Tally...), TotalMembers: p.EligibleSize}
	if _, err := e.poll.TerminatePoll(ctx, e.group, proposalID); err != nil {
		e.log.Warn("terminate_poll failed", zap.Error(err))
	}

	return Result{Code: ExitOK, Deltas: deltas, Payload: aggregate}, nil
}

// ReactToPollEvents drains the poll abstraction's event stream and
// resolves any proposal that reports ProposalExpired, per spec.md §6's
// stream<PollEvent>. It runs until ctx is cancelled.
func (e *Engine) ReactToPollEvents(ctx context.Context) error {
	it, err := e.poll.Events(ctx, e.group)
	if err != nil {
		return err
	}
	defer it.Close()
	for {
		ev, ok := it.Next(ctx)
		if !ok {
			return nil
		}
		if ev.Kind != transport.PollEventProposalExpired {
			continue
		}
		if _, err := e.ResolveProposal(ctx, ev.ProposalID); err != nil {
			e.log.Warn("resolve proposal on expiry failed", zap.Error(err))
		}
	}
}

// StatusPayload summarizes a group's current trust-network snapshot for
// the /status command.
type StatusPayload struct {
	Group             string `json:"group"`
	MemberCount       int    `json:"member_count"`
	EjectedCount      int    `json:"ejected_count"`
	ClusterCount      int    `json:"cluster_count"`
	BootstrapCollapse bool   `json:"bootstrap_collapse"`
	ActiveProposals   int    `json:"active_proposals"`
	AuditSeq          uint64 `json:"audit_seq"`
}

func (e *Engine) handleStatus(state *models.TrustNetworkState, cmd Command) Result {
	cr := graph.Analyze(state)
	return Result{Code: ExitOK, Payload: StatusPayload{
		Group:             state.GroupName,
		MemberCount:       len(state.Members),
		EjectedCount:      len(state.Ejected),
		ClusterCount:      len(cr.Members),
		BootstrapCollapse: cr.BootstrapCollapse,
		ActiveProposals:   len(state.ActiveProposals),
		AuditSeq:          state.AuditSeq,
	}}
}

// MeshSuggestion is one Introduction rendered for a JSON response.
type MeshSuggestion struct {
	A      string `json:"a_hash"`
	B      string `json:"b_hash"`
	Reason string `json:"reason"`
}

// MeshPayload is the /mesh command's response body.
type MeshPayload struct {
	Suggestions []MeshSuggestion `json:"suggestions"`
}

func (e *Engine) handleMesh(state *models.TrustNetworkState, cmd Command) Result {
	limit := cmd.MeshLimit
	if limit <= 0 {
		limit = 5
	}
	cr := graph.Analyze(state)
	suggestions := matchmaker.SuggestIntroductions(state, cr, limit)
	out := make([]MeshSuggestion, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, MeshSuggestion{A: s.A.String(), B: s.B.String(), Reason: s.Reason.String()})
	}
	return Result{Code: ExitOK, Payload: MeshPayload{Suggestions: out}}
}

// AuditEntryView is one models.AuditEntry rendered for a JSON response.
type AuditEntryView struct {
	Seq         uint64 `json:"seq"`
	Kind        string `json:"kind"`
	LogicalTime int64  `json:"logical_time"`
	Actor       string `json:"actor_hash"`
	Subject     string `json:"subject_hash"`
	Detail      string `json:"detail"`
}

// AuditPayload is the /audit command's response body. When cmd.AuditOf is
// non-zero, entries are filtered to those naming that member as actor or
// subject; otherwise the full trail is returned.
type AuditPayload struct {
	Entries []AuditEntryView `json:"entries"`
}

func (e *Engine) handleAudit(state *models.TrustNetworkState, cmd Command) Result {
	filter := !cmd.AuditOf.IsZero()
	out := make([]AuditEntryView, 0, len(state.Audit))
	for _, entry := range state.Audit {
		if filter && entry.Actor != cmd.AuditOf && entry.Subject != cmd.AuditOf {
			continue
		}
		out = append(out, AuditEntryView{
			Seq:         entry.Seq,
			Kind:        entry.Kind.String(),
			LogicalTime: entry.LogicalTime,
			Actor:       entry.Actor.String(),
			Subject:     entry.Subject.String(),
			Detail:      entry.Detail,
		})
	}
	return Result{Code: ExitOK, Payload: AuditPayload{Entries: out}}
}

// RunWorkerPool offloads a batch of independent, read-only computations
// (cluster analysis, proof generation, chunk encryption) across a bounded
// pool without holding the Engine's mutex, per spec.md §5's concurrency
// model.
func RunWorkerPool(ctx context.Context, jobs []func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, job := range jobs {
		job := job
		g.Go(func() error { return job(gctx) })
	}
	return g.Wait()
}
