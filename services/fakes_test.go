package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gigspot/contract"
	"gigspot/domain"
	"gigspot/domain/event"
	"gigspot/errors"
)

var (
	spotterAlice = domain.EntityRef{ID: "alice", Type: domain.EntitySpotter}
	spotterBob   = domain.EntityRef{ID: "bob", Type: domain.EntitySpotter}
	artistOwls   = domain.EntityRef{ID: "owls", Type: domain.EntityArtist}
	venueLoft    = domain.EntityRef{ID: "loft", Type: domain.EntityVenue}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEntityStore is an in-memory contract.EntityStore backed by maps.
type fakeEntityStore struct {
	accounts map[string]domain.EntityRef
	profiles map[domain.EntityRef]domain.Profile
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{
		accounts: make(map[string]domain.EntityRef),
		profiles: make(map[domain.EntityRef]domain.Profile),
	}
}

func (f *fakeEntityStore) put(p domain.Profile) *fakeEntityStore {
	f.profiles[p.Ref] = p
	if p.AccountID != "" {
		if _, ok := f.accounts[p.AccountID]; !ok || p.Ref.Type == domain.EntitySpotter {
			f.accounts[p.AccountID] = p.Ref
		}
	}
	return f
}

func (f *fakeEntityStore) ActingEntity(_ context.Context, accountID string) (domain.EntityRef, error) {
	ref, ok := f.accounts[accountID]
	if !ok {
		return domain.EntityRef{}, &errors.NotFoundError{AccountID: accountID}
	}
	return ref, nil
}

func (f *fakeEntityStore) Profile(_ context.Context, ref domain.EntityRef) (domain.Profile, error) {
	p, ok := f.profiles[ref]
	if !ok {
		return domain.Profile{}, errors.ErrProfileNotFound
	}
	return p, nil
}

func (f *fakeEntityStore) OwnerSpotter(ctx context.Context, ref domain.EntityRef) (domain.EntityRef, error) {
	if ref.Type == domain.EntitySpotter {
		return ref, nil
	}
	p, err := f.Profile(ctx, ref)
	if err != nil {
		return domain.EntityRef{}, err
	}
	if p.OwnerSpotterID == "" {
		return domain.EntityRef{}, errors.ErrProfileNotFound
	}
	owner := domain.EntityRef{ID: p.OwnerSpotterID, Type: domain.EntitySpotter}
	if _, ok := f.profiles[owner]; !ok {
		return domain.EntityRef{}, errors.ErrProfileNotFound
	}
	return owner, nil
}

// fakeMessageStore is an in-memory contract.MessageStore with scripted
// failures.
type fakeMessageStore struct {
	mu        sync.Mutex
	messages  []domain.Message
	summaries map[string][]domain.Conversation // viewer id -> rows

	failAppend    error
	failSummaries error
	failMarkRead  error
	markReadCalls int
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{summaries: make(map[string][]domain.Conversation)}
}

func (f *fakeMessageStore) Append(_ context.Context, msg domain.Message) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend != nil {
		return domain.Message{}, f.failAppend
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	msg.Read = false
	msg.Status = domain.StatusSent
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeMessageStore) History(_ context.Context, viewer, counterpart domain.EntityRef) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pair := domain.PairKey(viewer.ID, counterpart.ID)
	var out []domain.Message
	for _, msg := range f.messages {
		if msg.ConversationKey() == pair {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) HistoryPage(ctx context.Context, viewer, counterpart domain.EntityRef, _ *string) ([]domain.Message, *string, error) {
	messages, err := f.History(ctx, viewer, counterpart)
	return messages, nil, err
}

func (f *fakeMessageStore) Summaries(_ context.Context, viewer domain.EntityRef) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSummaries != nil {
		return nil, f.failSummaries
	}
	return append([]domain.Conversation(nil), f.summaries[viewer.ID]...), nil
}

func (f *fakeMessageStore) MarkRead(_ context.Context, viewer, counterpart domain.EntityRef) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls++
	if f.failMarkRead != nil {
		return 0, f.failMarkRead
	}
	var flipped int
	for i := range f.messages {
		msg := f.messages[i]
		if msg.Recipient.ID == viewer.ID && msg.Sender.ID == counterpart.ID && !msg.Read {
			f.messages[i].Read = true
			flipped++
		}
	}
	return flipped, nil
}

// fakeFeed records subscriptions and lets tests push events and script
// subscribe failures.
type fakeFeed struct {
	mu         sync.Mutex
	failNext   error
	subscribes int
	active     map[*fakeSubscription]struct{}
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{active: make(map[*fakeSubscription]struct{})}
}

type fakeSubscription struct {
	feed        *fakeFeed
	participant string
	fn          func(event.MessageInserted)
}

func (f *fakeFeed) Subscribe(_ context.Context, participant domain.EntityRef, fn func(event.MessageInserted)) (contract.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	sub := &fakeSubscription{feed: f, participant: participant.ID, fn: fn}
	f.active[sub] = struct{}{}
	return sub, nil
}

func (f *fakeFeed) push(e event.MessageInserted) {
	f.mu.Lock()
	var fns []func(event.MessageInserted)
	for sub := range f.active {
		for _, id := range e.Participants() {
			if sub.participant == id {
				fns = append(fns, sub.fn)
			}
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

func (f *fakeFeed) listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

func (s *fakeSubscription) Unsubscribe() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	delete(s.feed.active, s)
	return nil
}
