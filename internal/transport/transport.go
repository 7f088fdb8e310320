// Package transport defines the external capabilities Stroma's engine
// depends on but never implements itself (spec.md §1's Non-goals:
// messaging transport and the distributed content-addressable store are
// explicitly out of scope). Every dependency is an explicit interface,
// not a duck-typed mock object — spec.md §9's design note — so a real
// transport and an in-process fake satisfy the exact same contract.
package transport

import (
	"context"

	"github.com/roder/stroma/pkg/models"
)

// StateStore is the replicated-state transport: fetching the current
// TrustNetworkState, publishing a delta, and subscribing to a stream of
// deltas other replicas publish. Subscribe returns a pull-based iterator
// (spec.md §9), never a callback, so the engine's single-threaded event
// loop stays in control of when it consumes the next delta.
type StateStore interface {
	Get(ctx context.Context, group string) (*models.TrustNetworkState, error)
	PutDelta(ctx context.Context, group string, delta models.StateDelta) error
	Subscribe(ctx context.Context, group string) (DeltaIterator, error)
}

// DeltaIterator is a cancellable pull-based stream of deltas. Next blocks
// until a delta is available or ctx passed to Subscribe is cancelled, at
// which point it returns false.
type DeltaIterator interface {
	Next(ctx context.Context) (models.StateDelta, bool)
	Close() error
}

// Messenger delivers command-surface output (command replies, ejection
// announcements, proposal notifications) to a group's members. It is the
// only outbound path the engine uses; it never reaches into a transport
// implementation's internals.
type Messenger interface {
	Send(ctx context.Context, group string, recipient models.MemberHash, body string) error
	Broadcast(ctx context.Context, group string, body string) error
}

// PollEventKind tags a PollEvent's variant.
type PollEventKind uint8

const (
	// PollEventProposalExpired mirrors spec.md §6's StateEvent
	// ProposalExpired(id) for the poll abstraction's own event stream.
	PollEventProposalExpired PollEventKind = iota
)

// PollEvent is one event emitted by a PollService's event stream.
type PollEvent struct {
	Kind       PollEventKind
	ProposalID models.ProposalId
}

// PollEventIterator is a cancellable pull-based stream of PollEvents,
// mirroring DeltaIterator's pull semantics.
type PollEventIterator interface {
	Next(ctx context.Context) (PollEvent, bool)
	Close() error
}

// PollService hosts ephemeral governance polls, per spec.md §6's poll
// abstraction — distinct from the messaging surface's /propose command,
// which only opens and announces a proposal. CreatePoll announces a poll
// already minted by internal/governance.Open under proposalID (this
// deployment treats the domain proposal id and the poll abstraction's id
// as the same identifier rather than reconciling two independently
// minted ones — see DESIGN.md). TerminatePoll closes the poll and
// reports its tally; Events streams PollEvents including
// ProposalExpired.
type PollService interface {
	CreatePoll(ctx context.Context, group string, proposalID models.ProposalId, question string, options []string, expiresAt int64) error
	TerminatePoll(ctx context.Context, group string, proposalID models.ProposalId) (models.VoteAggregate, error)
	Events(ctx context.Context, group string) (PollEventIterator, error)
}
