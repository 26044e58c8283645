package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"gigspot/domain"
	"gigspot/errors"
	"gigspot/projection"
)

// Notifier is invoked for messages that arrive outside the open
// conversation, typically to raise a toast. It is injected at session
// construction and scoped to the session's lifetime; there is no
// process-wide notification handle.
type Notifier func(domain.Message)

// markReadTimeout bounds the store write triggered by a live message
// landing in the open conversation.
const markReadTimeout = 5 * time.Second

// Session composes the messaging core for one viewer: identity
// resolution, the grouped conversation cache, the open-conversation
// timeline, the feed subscription and read-state reconciliation. It is
// the entire contract exposed to presentation code.
//
// The session serializes its own cache writers; feed deliveries and
// user-initiated sends both funnel through the timeline and aggregator
// mutexes in arrival order.
type Session struct {
	mu           sync.Mutex
	log          *slog.Logger
	resolver     *EntityResolver
	aggregator   *ConversationAggregator
	adapter      *MessageStoreAdapter
	synchronizer *Synchronizer
	reads        *ReadStateTracker
	notify       Notifier

	viewer   domain.EntityRef
	timeline *projection.Timeline
}

func NewSession(
	log *slog.Logger,
	resolver *EntityResolver,
	aggregator *ConversationAggregator,
	adapter *MessageStoreAdapter,
	synchronizer *Synchronizer,
	reads *ReadStateTracker,
	notify Notifier,
) *Session {
	return &Session{
		log:          log,
		resolver:     resolver,
		aggregator:   aggregator,
		adapter:      adapter,
		synchronizer: synchronizer,
		reads:        reads,
		notify:       notify,
	}
}

// Open resolves the account's acting identity, loads the grouped
// conversations and subscribes to the change feed. An identity failure
// is fatal and the caller must redirect away; aggregation and
// subscription failures are degraded modes, not errors of Open.
func (s *Session) Open(ctx context.Context, accountID string) error {
	viewer, err := s.resolver.ActingEntity(ctx, accountID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.viewer = viewer
	s.timeline = nil
	s.mu.Unlock()

	if _, err := s.aggregator.All(ctx, viewer); err != nil {
		// Recoverable: the UI shows an empty, retryable list.
		s.log.Warn("Conversation load failed on open", "viewer", viewer.ID, "error", err)
	}
	if err := s.synchronizer.Subscribe(ctx, viewer, s.onIncoming); err != nil {
		// Degraded to pull-only; the synchronizer keeps retrying.
		s.log.Warn("Live feed unavailable", "viewer", viewer.ID, "error", err)
	}
	return nil
}

// Viewer returns the acting identity of this session.
func (s *Session) Viewer() domain.EntityRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewer
}

// Conversations refreshes and returns the grouped conversation lists.
func (s *Session) Conversations(ctx context.Context) (map[domain.EntityType][]domain.Conversation, error) {
	return s.aggregator.All(ctx, s.Viewer())
}

// OpenConversation resolves the target to its messageable spotter,
// loads the history and marks it read. A *errors.ResolutionError aborts
// the opening; no conversation is created against a dangling ref.
func (s *Session) OpenConversation(ctx context.Context, target domain.EntityRef) ([]domain.Message, error) {
	viewer := s.Viewer()
	if viewer.IsZero() {
		return nil, errors.ErrNoActiveSession
	}

	counterpart, err := s.resolver.ResolveMessageable(ctx, target)
	if err != nil {
		return nil, err
	}

	history, err := s.adapter.History(ctx, viewer, counterpart)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if !s.viewer.Equal(viewer) {
		// The identity changed while the history load was in flight;
		// the result belongs to a dead view and is discarded.
		s.mu.Unlock()
		return nil, errors.ErrNoActiveSession
	}
	timeline := projection.NewTimeline(viewer, counterpart)
	timeline.Reset(history)
	s.timeline = timeline
	s.mu.Unlock()

	if err := s.reads.MarkRead(ctx, viewer, counterpart); err != nil {
		s.log.Warn("Mark read failed on open", "counterpart", counterpart.ID, "error", err)
	}
	timeline.MarkAllRead()
	return timeline.Messages(), nil
}

// CloseConversation drops the open timeline. History loads still in
// flight for it will be discarded by the viewer/timeline guards.
func (s *Session) CloseConversation() {
	s.mu.Lock()
	s.timeline = nil
	s.mu.Unlock()
}

// Send appends a message to the open conversation. The returned message
// is canonical on success; on failure it is the optimistic one marked
// failed, which stays rendered until the user retries.
func (s *Session) Send(ctx context.Context, content string) (domain.Message, error) {
	s.mu.Lock()
	viewer := s.viewer
	timeline := s.timeline
	s.mu.Unlock()
	if timeline == nil {
		return domain.Message{}, &errors.SendError{Err: errors.ErrNoOpenChat}
	}
	counterpart := timeline.Counterpart()

	optimistic, err := s.adapter.Compose(viewer, counterpart, content)
	if err != nil {
		return domain.Message{}, err
	}
	timeline.Append(optimistic)

	canonical, err := s.adapter.Append(ctx, optimistic)
	if err != nil {
		timeline.MarkFailed(optimistic.ID)
		optimistic.Status = domain.StatusFailed
		return optimistic, err
	}

	timeline.Reconcile(optimistic.ID, canonical)
	s.aggregator.Touch(counterpart, canonical)
	return canonical, nil
}

// Messages returns a snapshot of the open conversation, or nil when no
// conversation is open.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	timeline := s.timeline
	s.mu.Unlock()
	if timeline == nil {
		return nil
	}
	return timeline.Messages()
}

// Close ends the session and tears down the feed subscription. Must be
// called when the session ends or before the identity changes.
func (s *Session) Close() error {
	s.mu.Lock()
	s.viewer = domain.EntityRef{}
	s.timeline = nil
	s.mu.Unlock()
	return s.synchronizer.Unsubscribe()
}

// onIncoming routes one translated feed message: into the open timeline
// with an immediate mark-read when its conversation is on screen,
// otherwise into a targeted aggregator update plus a notification.
func (s *Session) onIncoming(msg domain.Message) {
	s.mu.Lock()
	viewer := s.viewer
	timeline := s.timeline
	s.mu.Unlock()
	if viewer.IsZero() {
		return
	}

	if msg.Own {
		// Echo of this session's own send: dedup/reconcile in the open
		// timeline, refresh the summary, never count unread or notify.
		if timeline != nil && timeline.Counterpart().ID == msg.Recipient.ID {
			timeline.Insert(msg)
		}
		s.aggregator.Touch(msg.Recipient, msg)
		return
	}

	if timeline != nil && timeline.Counterpart().ID == msg.Sender.ID {
		added := timeline.Insert(msg)
		s.aggregator.Touch(msg.Sender, msg)
		if added {
			// The user is looking at this conversation right now.
			ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
			defer cancel()
			if err := s.reads.MarkRead(ctx, viewer, msg.Sender); err != nil {
				s.log.Warn("Live mark read failed", "counterpart", msg.Sender.ID, "error", err)
			}
		}
		return
	}

	// Notify only when the event actually changed the cache; the feed
	// redelivers, the user gets one toast per message.
	if s.aggregator.ApplyIncoming(msg) && s.notify != nil {
		s.notify(msg)
	}
}

// IsResolutionFailure reports whether the error aborts conversation
// creation (dangling target reference).
func IsResolutionFailure(err error) bool {
	var resolution *errors.ResolutionError
	return stderrors.As(err, &resolution)
}
