package transport

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/roder/stroma/internal/trust"
	"github.com/roder/stroma/pkg/models"
)

// FakeStateStore is an in-process StateStore for tests and single-node
// deployments: it holds one TrustNetworkState per group in memory and
// fans out applied deltas to every subscriber, grounded on the teacher's
// pack's general pattern of an explicit in-process mock object standing
// in for a networked dependency rather than a generated interface mock.
type FakeStateStore struct {
	mu      sync.Mutex
	states  map[string]*models.TrustNetworkState
	subs    map[string][]chan models.StateDelta
}

// NewFakeStateStore builds an empty store.
func NewFakeStateStore() *FakeStateStore {
	return &FakeStateStore{
		states: map[string]*models.TrustNetworkState{},
		subs:   map[string][]chan models.StateDelta{},
	}
}

// Seed installs an initial state for group, for test setup.
func (f *FakeStateStore) Seed(group string, s *models.TrustNetworkState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[group] = s
}

func (f *FakeStateStore) Get(ctx context.Context, group string) (*models.TrustNetworkState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[group]
	if !ok {
		s = models.NewTrustNetworkState(group)
		f.states[group] = s
	}
	return s.Clone(), nil
}

func (f *FakeStateStore) PutDelta(ctx context.Context, group string, delta models.StateDelta) error {
	f.mu.Lock()
	current, ok := f.states[group]
	if !ok {
		current = models.NewTrustNetworkState(group)
	}
	next, err := trust.ApplyDelta(current, delta)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.states[group] = next
	subs := append([]chan models.StateDelta(nil), f.subs[group]...)
	f.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- delta:
		case <-ctx.Done():
		}
	}
	return nil
}

func (f *FakeStateStore) Subscribe(ctx context.Context, group string) (DeltaIterator, error) {
	ch := make(chan models.StateDelta, 64)
	f.mu.Lock()
	f.subs[group] = append(f.subs[group], ch)
	f.mu.Unlock()
	return &fakeIterator{ch: ch}, nil
}

type fakeIterator struct {
	ch     chan models.StateDelta
	closed bool
}

func (it *fakeIterator) Next(ctx context.Context) (models.StateDelta, bool) {
	select {
	case d, ok := <-it.ch:
		return d, ok
	case <-ctx.Done():
		return models.StateDelta{}, false
	}
}

func (it *fakeIterator) Close() error {
	if !it.closed {
		it.closed = true
		close(it.ch)
	}
	return nil
}

// FakeMessenger records every Send/Broadcast call for test assertions
// instead of delivering anywhere.
type FakeMessenger struct {
	mu        sync.Mutex
	Sent      []FakeSent
	Broadcasts []FakeBroadcast
}

type FakeSent struct {
	Group     string
	Recipient models.MemberHash
	Body      string
}

type FakeBroadcast struct {
	Group string
	Body  string
}

func NewFakeMessenger() *FakeMessenger { return &FakeMessenger{} }

func (f *FakeMessenger) Send(ctx context.Context, group string, recipient models.MemberHash, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, FakeSent{Group: group, Recipient: recipient, Body: body})
	return nil
}

func (f *FakeMessenger) Broadcast(ctx context.Context, group string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Broadcasts = append(f.Broadcasts, FakeBroadcast{Group: group, Body: body})
	return nil
}

// fakePoll is one in-memory poll's bookkeeping.
type fakePoll struct {
	Question  string
	Options   []string
	ExpiresAt int64
	Closed    bool
}

// FakePollService is an in-process PollService: it tracks open polls per
// group and fires a ProposalExpired PollEvent to every subscriber once a
// poll's ExpiresAt passes, grounded on the same in-process fan-out
// pattern FakeStateStore uses for StateDelta subscribers.
type FakePollService struct {
	mu    sync.Mutex
	polls map[string]map[models.ProposalId]*fakePoll
	subs  map[string][]chan PollEvent
}

// NewFakePollService builds an empty poll service.
func NewFakePollService() *FakePollService {
	return &FakePollService{
		polls: map[string]map[models.ProposalId]*fakePoll{},
		subs:  map[string][]chan PollEvent{},
	}
}

func (f *FakePollService) CreatePoll(ctx context.Context, group string, proposalID models.ProposalId, question string, options []string, expiresAt int64) error {
	f.mu.Lock()
	if f.polls[group] == nil {
		f.polls[group] = map[models.ProposalId]*fakePoll{}
	}
	f.polls[group][proposalID] = &fakePoll{Question: question, Options: options, ExpiresAt: expiresAt}
	f.mu.Unlock()

	delay := time.Until(time.Unix(expiresAt, 0))
	go func() {
		select {
		case <-time.After(delay):
			f.emitExpired(group, proposalID)
		case <-ctx.Done():
		}
	}()
	return nil
}

func (f *FakePollService) emitExpired(group string, proposalID models.ProposalId) {
	f.mu.Lock()
	p, ok := f.polls[group][proposalID]
	if !ok || p.Closed {
		f.mu.Unlock()
		return
	}
	subs := append([]chan PollEvent(nil), f.subs[group]...)
	f.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- PollEvent{Kind: PollEventProposalExpired, ProposalID: proposalID}:
		default:
		}
	}
}

func (f *FakePollService) TerminatePoll(ctx context.Context, group string, proposalID models.ProposalId) (models.VoteAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.polls[group][proposalID]
	if !ok {
		return models.VoteAggregate{}, errors.New("transport: unknown poll")
	}
	p.Closed = true
	return models.VoteAggregate{VotesPerOption: make([]uint32, len(p.Options))}, nil
}

func (f *FakePollService) Events(ctx context.Context, group string) (PollEventIterator, error) {
	ch := make(chan PollEvent, 16)
	f.mu.Lock()
	f.subs[group] = append(f.subs[group], ch)
	f.mu.Unlock()
	return &fakePollEventIterator{ch: ch}, nil
}

type fakePollEventIterator struct {
	ch     chan PollEvent
	closed bool
}

func (it *fakePollEventIterator) Next(ctx context.Context) (PollEvent, bool) {
	select {
	case e, ok := <-it.ch:
		return e, ok
	case <-ctx.Done():
		return PollEvent{}, false
	}
}

func (it *fakePollEventIterator) Close() error {
	if !it.closed {
		it.closed = true
		close(it.ch)
	}
	return nil
}
