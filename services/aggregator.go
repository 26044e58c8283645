package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"

	"gigspot/contract"
	"gigspot/domain"
	"gigspot/errors"
)

// ConversationAggregator owns the grouped-conversation cache for the
// active session. Refreshes supersede the cache wholesale; the only
// partial writers are the synchronizer's targeted updates and the
// read-state reset.
type ConversationAggregator struct {
	mu       sync.Mutex
	log      *slog.Logger
	store    contract.MessageStore
	resolver *EntityResolver
	viewer   domain.EntityRef
	groups   map[domain.EntityType][]domain.Conversation

	// applied remembers the message ids already merged by ApplyIncoming.
	// The feed is at-least-once; a redelivered event must not count its
	// message unread twice. Scoped to the session, like the cache itself.
	applied map[string]struct{}
}

func NewConversationAggregator(log *slog.Logger, store contract.MessageStore, resolver *EntityResolver) *ConversationAggregator {
	return &ConversationAggregator{
		log:      log,
		store:    store,
		resolver: resolver,
		groups:   emptyGroups(),
		applied:  make(map[string]struct{}),
	}
}

func emptyGroups() map[domain.EntityType][]domain.Conversation {
	groups := make(map[domain.EntityType][]domain.Conversation, 3)
	for _, t := range domain.EntityTypes() {
		groups[t] = nil
	}
	return groups
}

// All loads every conversation of the viewer, grouped by counterpart
// type and ordered by last activity descending within each group. The
// aggregation itself happens in the store; this only decorates the
// summaries with display identities and caches the result. On store
// failure the cache is left untouched and the caller gets an empty
// grouped map with a *errors.AggregationError; nothing is fabricated.
func (a *ConversationAggregator) All(ctx context.Context, viewer domain.EntityRef) (map[domain.EntityType][]domain.Conversation, error) {
	summaries, err := a.store.Summaries(ctx, viewer)
	if err != nil {
		return emptyGroups(), &errors.AggregationError{ViewerID: viewer.ID, Err: err}
	}

	for i := range summaries {
		display, err := a.resolver.DisplayIdentity(ctx, summaries[i].Other)
		if err != nil {
			// A counterpart without a profile still has messages worth
			// showing; it renders without a name rather than vanishing.
			a.log.Warn("Display identity unavailable", "entity", summaries[i].Other.String(), "error", err)
			continue
		}
		summaries[i].OtherName = display.Name
		summaries[i].OtherImage = display.Image
	}

	groups := lo.GroupBy(summaries, func(c domain.Conversation) domain.EntityType {
		return c.Other.Type
	})
	for _, t := range domain.EntityTypes() {
		if _, ok := groups[t]; !ok {
			groups[t] = nil
		}
		sortByActivity(groups[t])
	}

	a.mu.Lock()
	a.viewer = viewer
	a.groups = groups
	snapshot := a.snapshotLocked()
	a.mu.Unlock()
	return snapshot, nil
}

func sortByActivity(conversations []domain.Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
	})
}

// ApplyIncoming is the synchronizer's targeted update for a message
// whose conversation is not open: bump the counterpart's last-message
// fields and unread count without touching unrelated conversations.
// Last-message fields follow last-write-by-timestamp, so a racing
// refresh and update converge instead of interleaving.
//
// The merge is idempotent per message id: the feed delivers
// at-least-once, and a redelivered event is skipped instead of counting
// its message unread again. It reports whether the event was applied,
// so the caller can gate side effects like notifications on it.
func (a *ConversationAggregator) ApplyIncoming(msg domain.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.viewer.IsZero() || msg.Recipient.ID != a.viewer.ID {
		// Stale event for a previous viewer; never attribute it here.
		a.log.Debug("Dropping update for non-viewer recipient", "recipient", msg.Recipient.ID)
		return false
	}
	if _, ok := a.applied[msg.ID]; ok {
		a.log.Debug("Skipping redelivered event", "message", msg.ID)
		return false
	}
	a.applied[msg.ID] = struct{}{}

	for t, conversations := range a.groups {
		for i := range conversations {
			if conversations[i].Other.ID != msg.Sender.ID {
				continue
			}
			if !msg.CreatedAt.Before(conversations[i].LastMessageAt) {
				conversations[i].LastMessage = msg.Content
				conversations[i].LastMessageAt = msg.CreatedAt
				conversations[i].LastSenderID = msg.Sender.ID
			}
			conversations[i].Unread++
			sortByActivity(a.groups[t])
			return true
		}
	}

	// First message from this counterpart in the session.
	group := msg.Sender.Type
	a.groups[group] = append(a.groups[group], domain.Conversation{
		ConversationID: msg.ConversationKey(),
		Other:          msg.Sender,
		OtherName:      msg.SenderName,
		OtherImage:     msg.SenderImage,
		LastMessage:    msg.Content,
		LastMessageAt:  msg.CreatedAt,
		LastSenderID:   msg.Sender.ID,
		Unread:         1,
	})
	sortByActivity(a.groups[group])
	return true
}

// Touch moves the last-message fields for a counterpart after the
// viewer's own send, leaving unread counts alone.
func (a *ConversationAggregator) Touch(counterpart domain.EntityRef, msg domain.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for t, conversations := range a.groups {
		for i := range conversations {
			if conversations[i].Other.ID != counterpart.ID {
				continue
			}
			if !msg.CreatedAt.Before(conversations[i].LastMessageAt) {
				conversations[i].LastMessage = msg.Content
				conversations[i].LastMessageAt = msg.CreatedAt
				conversations[i].LastSenderID = msg.Sender.ID
			}
			sortByActivity(a.groups[t])
			return
		}
	}
}

// ResetUnread zeroes the counterpart's unread count in every cached
// group. All three groups are swept defensively: the type under which
// the counterpart is cached may not match the type the caller used.
func (a *ConversationAggregator) ResetUnread(counterpartID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, conversations := range a.groups {
		for i := range conversations {
			if conversations[i].Other.ID == counterpartID {
				conversations[i].Unread = 0
			}
		}
	}
}

// Groups returns a copy of the cached grouped conversations.
func (a *ConversationAggregator) Groups() map[domain.EntityType][]domain.Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *ConversationAggregator) snapshotLocked() map[domain.EntityType][]domain.Conversation {
	snapshot := make(map[domain.EntityType][]domain.Conversation, len(a.groups))
	for t, conversations := range a.groups {
		snapshot[t] = append([]domain.Conversation(nil), conversations...)
	}
	return snapshot
}
