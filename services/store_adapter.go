package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"gigspot/contract"
	"gigspot/domain"
	"gigspot/errors"
)

var validate = validator.New()

// outgoing carries the append constraints: a body is required and may
// not exceed the single hard limit of 5000 characters.
type outgoing struct {
	Content string `validate:"required,max=5000"`
}

// MessageStoreAdapter loads ordered history and appends new
// locally-composed messages. Sends are optimistic: Compose fabricates
// the immediately-rendered message, Append returns the canonical row to
// reconcile against.
type MessageStoreAdapter struct {
	log   *slog.Logger
	store contract.MessageStore
}

func NewMessageStoreAdapter(log *slog.Logger, store contract.MessageStore) *MessageStoreAdapter {
	return &MessageStoreAdapter{log: log, store: store}
}

// History loads the full conversation ascending by time, with ownership
// derived for the viewer. The load is unbounded, which is the
// historical contract of this operation; use HistoryPage when the
// conversation can be large.
func (s *MessageStoreAdapter) History(ctx context.Context, viewer, counterpart domain.EntityRef) ([]domain.Message, error) {
	messages, err := s.store.History(ctx, viewer, counterpart)
	if err != nil {
		return nil, err
	}
	return withOwnership(messages, viewer), nil
}

// HistoryPage is the keyset-paginated variant: nil cursor loads the
// newest page, the returned cursor continues into older pages.
func (s *MessageStoreAdapter) HistoryPage(ctx context.Context, viewer, counterpart domain.EntityRef, cursor *string) ([]domain.Message, *string, error) {
	messages, next, err := s.store.HistoryPage(ctx, viewer, counterpart, cursor)
	if err != nil {
		return nil, nil, err
	}
	return withOwnership(messages, viewer), next, nil
}

// Compose validates the content and fabricates the optimistic message
// the caller renders immediately. Constraint violations surface as
// *errors.SendError before anything touches the store.
func (s *MessageStoreAdapter) Compose(viewer, counterpart domain.EntityRef, content string) (domain.Message, error) {
	if err := validate.Struct(outgoing{Content: content}); err != nil {
		cause := errors.ErrEmptyContent
		if content != "" {
			cause = errors.ErrContentTooLong
		}
		return domain.Message{}, &errors.SendError{Err: cause}
	}
	return domain.Message{
		ID:        "local-" + uuid.NewString(),
		Sender:    viewer,
		Recipient: counterpart,
		Content:   content,
		Type:      domain.MessageText,
		CreatedAt: time.Now().UTC(),
		Own:       true,
		Status:    domain.StatusPending,
	}, nil
}

// Append performs the remote write and returns the canonical persisted
// message with the store-assigned id and timestamp. On failure the
// optimistic message must be marked failed by the caller, never
// silently dropped.
func (s *MessageStoreAdapter) Append(ctx context.Context, optimistic domain.Message) (domain.Message, error) {
	canonical, err := s.store.Append(ctx, optimistic)
	if err != nil {
		s.log.Warn("Message append failed", "local_id", optimistic.ID, "error", err)
		return domain.Message{}, &errors.SendError{MessageID: optimistic.ID, Err: err}
	}
	return canonical.WithOwnership(optimistic.Sender), nil
}

func withOwnership(messages []domain.Message, viewer domain.EntityRef) []domain.Message {
	out := make([]domain.Message, len(messages))
	for i, msg := range messages {
		out[i] = msg.WithOwnership(viewer)
	}
	return out
}
