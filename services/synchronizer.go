package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"gigspot/contract"
	"gigspot/domain"
	"gigspot/domain/event"
	"gigspot/errors"
)

// SyncState is the explicit lifecycle of the feed subscription. The
// only external transitions are Subscribe and Unsubscribe; everything
// else is internal retry.
type SyncState int

const (
	StateUnsubscribed SyncState = iota
	StateSubscribing
	StateSubscribed
	StateError
)

func (s SyncState) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	}
	return "unknown"
}

// identityTimeout bounds the display-identity lookup done while
// translating a raw feed event.
const identityTimeout = 5 * time.Second

// Synchronizer owns the change-feed subscription of one session and
// converts raw insert events into domain messages. Exactly one feed
// listener is live at any time: subscribing again for the same viewer
// is a no-op, subscribing for a new viewer closes the old feed first,
// and events from a superseded subscription are discarded rather than
// attributed to the wrong viewer.
type Synchronizer struct {
	mu       sync.Mutex
	log      *slog.Logger
	feed     contract.ChangeFeed
	resolver *EntityResolver

	state   SyncState
	viewer  domain.EntityRef
	handler contract.MessageHandler
	sub     contract.Subscription

	// epoch invalidates in-flight subscribe attempts, retries and event
	// deliveries that belong to a previous viewer.
	epoch       int
	retryCancel context.CancelFunc
}

func NewSynchronizer(log *slog.Logger, feed contract.ChangeFeed, resolver *EntityResolver) *Synchronizer {
	return &Synchronizer{log: log, feed: feed, resolver: resolver}
}

func (s *Synchronizer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe establishes the feed scoped to the viewer. Idempotent while
// subscribed for the same viewer. On transport failure it returns a
// *errors.SubscriptionError and keeps retrying with exponential backoff
// in the background; the session meanwhile works pull-only.
func (s *Synchronizer) Subscribe(ctx context.Context, viewer domain.EntityRef, handler contract.MessageHandler) error {
	s.mu.Lock()
	if s.state == StateSubscribed && s.viewer.Equal(viewer) {
		s.mu.Unlock()
		return nil
	}
	s.teardownLocked()
	s.epoch++
	myEpoch := s.epoch
	s.state = StateSubscribing
	s.viewer = viewer
	s.handler = handler
	s.mu.Unlock()

	if err := s.attempt(ctx, myEpoch, viewer); err != nil {
		s.retryLater(ctx, myEpoch, viewer)
		return &errors.SubscriptionError{ViewerID: viewer.ID, Err: err}
	}
	return nil
}

// attempt performs one feed subscription and installs it unless the
// synchronizer moved on to another epoch in the meantime.
func (s *Synchronizer) attempt(ctx context.Context, epoch int, viewer domain.EntityRef) error {
	sub, err := s.feed.Subscribe(ctx, viewer, func(e event.MessageInserted) {
		s.onEvent(epoch, e)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		// Superseded while the subscribe was in flight.
		if err == nil {
			_ = sub.Unsubscribe()
		}
		return nil
	}
	if err != nil {
		s.state = StateError
		return err
	}
	s.sub = sub
	s.state = StateSubscribed
	s.log.Info("Feed subscribed", "viewer", viewer.String())
	return nil
}

// retryLater resubscribes with exponential backoff until it succeeds,
// the context dies, or the subscription is superseded.
func (s *Synchronizer) retryLater(ctx context.Context, epoch int, viewer domain.EntityRef) {
	retryCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		cancel()
		return
	}
	s.retryCancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		policy := backoff.WithContext(backoff.NewExponentialBackOff(), retryCtx)
		err := backoff.Retry(func() error {
			s.mu.Lock()
			superseded := epoch != s.epoch
			s.mu.Unlock()
			if superseded {
				return nil
			}
			if err := s.attempt(retryCtx, epoch, viewer); err != nil {
				s.log.Warn("Feed resubscribe failed, backing off", "viewer", viewer.ID, "error", err)
				return err
			}
			return nil
		}, policy)
		if err != nil {
			s.log.Warn("Feed resubscribe abandoned", "viewer", viewer.ID, "error", err)
		}
	}()
}

// Unsubscribe tears the feed down. Required exactly once when the
// session ends or the viewer changes; a stale subscription would
// attribute messages to the wrong viewer. Extra calls are no-ops.
func (s *Synchronizer) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.teardownLocked()
	s.viewer = domain.EntityRef{}
	s.handler = nil
	s.state = StateUnsubscribed
	return nil
}

func (s *Synchronizer) teardownLocked() {
	if s.retryCancel != nil {
		s.retryCancel()
		s.retryCancel = nil
	}
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
		s.sub = nil
	}
}

// onEvent translates one raw change event into a domain message and
// hands it to the session handler. Events are applied in feed order;
// nothing is reordered here.
func (s *Synchronizer) onEvent(epoch int, e event.MessageInserted) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	viewer := s.viewer
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), identityTimeout)
	defer cancel()
	display, err := s.resolver.DisplayIdentity(ctx, e.Sender)
	if err != nil {
		// A message without a display name still beats a lost message.
		s.log.Warn("Sender identity unresolved", "sender", e.Sender.String(), "error", err)
	}

	handler(domain.Message{
		ID:          e.MessageID,
		Sender:      e.Sender,
		SenderName:  display.Name,
		SenderImage: display.Image,
		Recipient:   e.Recipient,
		Content:     e.Content,
		Type:        e.Type,
		CreatedAt:   e.CreatedAt,
		Status:      domain.StatusSent,
	}.WithOwnership(viewer))
}
