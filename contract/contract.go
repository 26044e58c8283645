//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"gigspot/domain"
	"gigspot/domain/event"
)

// MessageStore is the row-store boundary for message data. It owns
// persistence, ordering and the grouped conversation aggregation; the
// core never re-derives summaries message by message.
type MessageStore interface {
	// Append persists a message and returns the canonical row with the
	// store-assigned id and timestamp.
	Append(ctx context.Context, msg domain.Message) (domain.Message, error)
	// History returns the full conversation between viewer and
	// counterpart, ascending by creation time.
	History(ctx context.Context, viewer, counterpart domain.EntityRef) ([]domain.Message, error)
	// HistoryPage returns one page ending at the given cursor (nil for
	// the newest page), ascending within the page, plus the cursor of
	// the next older page.
	HistoryPage(ctx context.Context, viewer, counterpart domain.EntityRef, cursor *string) ([]domain.Message, *string, error)
	// Summaries returns one conversation summary per counterpart that
	// has exchanged at least one message with the viewer.
	Summaries(ctx context.Context, viewer domain.EntityRef) ([]domain.Conversation, error)
	// MarkRead transitions all unread messages from counterpart to
	// viewer into read state and returns how many rows changed.
	MarkRead(ctx context.Context, viewer, counterpart domain.EntityRef) (int, error)
}

// EntityStore is the row-store boundary for identity data.
type EntityStore interface {
	ActingEntity(ctx context.Context, accountID string) (domain.EntityRef, error)
	Profile(ctx context.Context, ref domain.EntityRef) (domain.Profile, error)
	// OwnerSpotter resolves the spotter ref that owns an artist or
	// venue profile. A spotter ref resolves to itself.
	OwnerSpotter(ctx context.Context, ref domain.EntityRef) (domain.EntityRef, error)
}

// Subscription is a live change-feed registration. Unsubscribe must be
// idempotent; a subscription left open past its viewer's session is a
// correctness bug, not just a leak.
type Subscription interface {
	Unsubscribe() error
}

// ChangeFeed is the publish/subscribe boundary. Events are delivered
// at-least-once, in emission order per participant filter, with no
// ordering guarantee across different filters.
type ChangeFeed interface {
	Subscribe(ctx context.Context, participant domain.EntityRef, fn func(event.MessageInserted)) (Subscription, error)
}

// MessageHandler receives translated domain messages from the
// synchronizer.
type MessageHandler func(domain.Message)

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
