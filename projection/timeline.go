// Package projection builds local timelines from observed events.
// Handles ordering, deduplication, and optimistic reconciliation.
// Does not emit events or interact with UI directly.
package projection

import (
	"sync"
	"time"

	"gigspot/domain"
)

// echoWindow bounds how long an optimistic message may claim a feed
// echo by content before the canonical id is known.
const echoWindow = 10 * time.Second

// Timeline is the message list of the one open conversation. Writers
// are the user's own sends and the synchronizer; both are serialized
// behind the internal mutex.
//
// Invariants: messages ascend by CreatedAt with insertion-stable ties,
// and every message id appears at most once.
type Timeline struct {
	mu          sync.Mutex
	viewer      domain.EntityRef
	counterpart domain.EntityRef
	messages    []domain.Message
	known       map[string]struct{}
	pending     []pendingSend
}

// pendingSend tracks an optimistic message until the canonical row is
// known, so the feed echo can be matched by content within echoWindow.
type pendingSend struct {
	localID string
	content string
	at      time.Time
}

func NewTimeline(viewer, counterpart domain.EntityRef) *Timeline {
	return &Timeline{
		viewer:      viewer,
		counterpart: counterpart,
		known:       make(map[string]struct{}),
	}
}

func (t *Timeline) Viewer() domain.EntityRef      { return t.viewer }
func (t *Timeline) Counterpart() domain.EntityRef { return t.counterpart }

// Reset replaces the whole timeline with a freshly loaded history.
func (t *Timeline) Reset(history []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
	t.known = make(map[string]struct{})
	t.pending = nil
	for _, msg := range history {
		if _, ok := t.known[msg.ID]; ok {
			continue
		}
		t.known[msg.ID] = struct{}{}
		t.messages = append(t.messages, msg.WithOwnership(t.viewer))
	}
}

// Append adds the viewer's own optimistic message at the tail and
// registers it for echo suppression.
func (t *Timeline) Append(msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.known[msg.ID]; ok {
		return
	}
	t.known[msg.ID] = struct{}{}
	t.messages = append(t.messages, msg)
	t.pending = append(t.pending, pendingSend{
		localID: msg.ID,
		content: msg.Content,
		at:      msg.CreatedAt,
	})
}

// Insert merges a message arriving from the feed or from a reload.
// Duplicates by id are ignored. An echo of the viewer's own pending
// send reconciles that entry in place instead of adding a new one.
// Everything else is inserted at its chronological position, after any
// equal timestamps already present.
//
// It reports whether a new entry was added.
func (t *Timeline) Insert(msg domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.known[msg.ID]; ok {
		return false
	}

	msg = msg.WithOwnership(t.viewer)
	if msg.Own {
		if local, ok := t.claimPending(msg); ok {
			t.reconcileLocked(local, msg)
			return false
		}
	}

	idx := len(t.messages)
	for idx > 0 && t.messages[idx-1].CreatedAt.After(msg.CreatedAt) {
		idx--
	}
	t.known[msg.ID] = struct{}{}
	t.messages = append(t.messages, domain.Message{})
	copy(t.messages[idx+1:], t.messages[idx:])
	t.messages[idx] = msg
	return true
}

// claimPending matches an own incoming message against pending sends by
// content within the echo window and removes the matched entry. The
// pending list is append-ordered and the scan takes the first match, so
// with identical rapid sends the echoes, arriving in feed order, pair
// with the pending entries oldest to oldest. If echoes of
// identical-content sends ever arrived reordered, the two entries would
// swap canonical ids; count and positions stay correct either way.
func (t *Timeline) claimPending(msg domain.Message) (string, bool) {
	for i, p := range t.pending {
		if p.content != msg.Content {
			continue
		}
		if msg.CreatedAt.Sub(p.at) > echoWindow || p.at.Sub(msg.CreatedAt) > echoWindow {
			continue
		}
		t.pending = append(t.pending[:i], t.pending[i+1:]...)
		return p.localID, true
	}
	return "", false
}

// Reconcile substitutes the canonical row for an optimistic one. The
// entry keeps its position; only identity and delivery fields change,
// so two rapid sends keep their order.
func (t *Timeline) Reconcile(localID string, canonical domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.pending {
		if p.localID == localID {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			break
		}
	}
	t.reconcileLocked(localID, canonical)
}

func (t *Timeline) reconcileLocked(localID string, canonical domain.Message) {
	canonical = canonical.WithOwnership(t.viewer)
	for i := range t.messages {
		if t.messages[i].ID != localID {
			continue
		}
		delete(t.known, localID)
		t.known[canonical.ID] = struct{}{}
		pos := t.messages[i]
		pos.ID = canonical.ID
		pos.CreatedAt = canonical.CreatedAt
		pos.Status = domain.StatusSent
		t.messages[i] = pos
		return
	}
	// The optimistic entry is gone (view was reset); fall back to a
	// plain insert so the canonical message is not lost.
	if _, ok := t.known[canonical.ID]; !ok {
		t.known[canonical.ID] = struct{}{}
		t.messages = append(t.messages, canonical)
	}
}

// MarkFailed flags an optimistic message whose remote write failed.
// The entry stays visible; retry is user-initiated.
func (t *Timeline) MarkFailed(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.pending {
		if p.localID == localID {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			break
		}
	}
	for i := range t.messages {
		if t.messages[i].ID == localID {
			t.messages[i].Status = domain.StatusFailed
			return
		}
	}
}

// MarkAllRead flips the read flag on every message from the
// counterpart, mirroring the store-side transition.
func (t *Timeline) MarkAllRead() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if !t.messages[i].Own {
			t.messages[i].Read = true
		}
	}
}

// Messages returns a snapshot copy of the current list.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}
