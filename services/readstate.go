package services

import (
	"context"
	"fmt"
	"log/slog"

	"gigspot/contract"
	"gigspot/domain"
)

// ReadStateTracker reconciles read state between the store and the
// cached conversation groups. Triggered on opening a conversation and
// on receiving a real-time message while that conversation is open.
type ReadStateTracker struct {
	log        *slog.Logger
	store      contract.MessageStore
	aggregator *ConversationAggregator
}

func NewReadStateTracker(log *slog.Logger, store contract.MessageStore, aggregator *ConversationAggregator) *ReadStateTracker {
	return &ReadStateTracker{log: log, store: store, aggregator: aggregator}
}

// MarkRead transitions every unread message from counterpart to viewer
// into read state and zeroes the counterpart's unread count in all
// cached groups. Idempotent: a second call changes nothing.
func (t *ReadStateTracker) MarkRead(ctx context.Context, viewer, counterpart domain.EntityRef) error {
	flipped, err := t.store.MarkRead(ctx, viewer, counterpart)
	if err != nil {
		return fmt.Errorf("mark read %s: %w", counterpart.String(), err)
	}
	// The cached type for the counterpart may differ from the type the
	// caller holds, so the reset sweeps every group.
	t.aggregator.ResetUnread(counterpart.ID)
	if flipped > 0 {
		t.log.Debug("Conversation marked read", "viewer", viewer.ID, "counterpart", counterpart.ID, "messages", flipped)
	}
	return nil
}
