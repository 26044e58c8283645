package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gigspot/domain"
	"gigspot/domain/event"
	"gigspot/errors"
)

func newTestSynchronizer(feed *fakeFeed) *Synchronizer {
	entities := newFakeEntityStore().
		put(domain.Profile{Ref: spotterBob, Name: "Bob", Image: "bob.jpg"})
	return NewSynchronizer(testLogger(), feed, NewEntityResolver(testLogger(), entities))
}

func insertedBy(sender, recipient domain.EntityRef) event.MessageInserted {
	return event.MessageInserted{
		MessageID: "m1",
		Sender:    sender,
		Recipient: recipient,
		Content:   "hello",
		Type:      domain.MessageText,
		CreatedAt: time.Now().UTC(),
	}
}

// handlerSink collects messages handed over by the synchronizer.
type handlerSink struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (h *handlerSink) handle(msg domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *handlerSink) all() []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Message(nil), h.messages...)
}

func TestSynchronizer_Subscribe_Reaches_Subscribed_State(t *testing.T) {
	req := require.New(t)
	feed := newFakeFeed()
	synchronizer := newTestSynchronizer(feed)

	req.Equal(StateUnsubscribed, synchronizer.State())
	req.NoError(synchronizer.Subscribe(context.Background(), spotterAlice, func(domain.Message) {}))
	req.Equal(StateSubscribed, synchronizer.State())
	req.Equal(1, feed.listeners())
}

func TestSynchronizer_Subscribe_Same_Viewer_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	feed := newFakeFeed()
	synchronizer := newTestSynchronizer(feed)
	ctx := context.Background()

	req.NoError(synchronizer.Subscribe(ctx, spotterAlice, func(domain.Message) {}))
	req.NoError(synchronizer.Subscribe(ctx, spotterAlice, func(domain.Message) {}))
	req.NoError(synchronizer.Subscribe(ctx, spotterAlice, func(domain.Message) {}))

	// One transport subscribe, one live listener.
	req.Equal(1, feed.subscribes)
	req.Equal(1, feed.listeners())
}

func TestSynchronizer_Subscribe_New_Viewer_Replaces_Listener(t *testing.T) {
	req := require.New(t)
	feed := newFakeFeed()
	synchronizer := newTestSynchronizer(feed)
	ctx := context.Background()

	req.NoError(synchronizer.Subscribe(ctx, spotterAlice, func(domain.Message) {}))
	req.NoError(synchronizer.Subscribe(ctx, spotterBob, func(domain.Message) {}))

	// The old filter is gone; exactly one listener remains.
	req.Equal(1, feed.listeners())
	req.Equal(StateSubscribed, synchronizer.State())
}

func TestSynchronizer_Subscribe_Failure_Degrades_To_Error_State(t *testing.T) {
	req := require.New(t)
	feed := newFakeFeed()
	feed.failNext = errors.ErrFeedClosed
	synchronizer := newTestSynchronizer(feed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := synchronizer.Subscribe(ctx, spotterAlice, func(domain.Message) {})

	var subscription *errors.SubscriptionError
	req.ErrorAs(err, &subscription)
	req.Equal(spotterAlice.ID, subscription.ViewerID)

	// The background retry eventually lands the subscription; the next
	// transport attempt succeeds.
	require.Eventually(t, func() bool { return synchronizer.State() == StateSubscribed },
		5*time.Second, 20*time.Millisecond)
	req.Equal(1, feed.listeners())
}

func TestSynchronizer_Unsubscribe_Resets_State(t *testing.T) {
	req := require.New(t)
	feed := newFakeFeed()
	synchronizer := newTestSynchronizer(feed)

	req.NoError(synchronizer.Subscribe(context.Background(), spotterAlice, func(domain.Message) {}))
	req.NoError(synchronizer.Unsubscribe())

	req.Equal(StateUnsubscribed, synchronizer.State())
	req.Zero(feed.listeners())

	// Extra calls are harmless.
	req.NoError(synchronizer.Unsubscribe())
}

func TestSynchronizer_Translates_Events_With_Display_Identity(t *testing.T) {
	req := require.New(t)
	feed := newFakeFeed()
	synchronizer := newTestSynchronizer(feed)
	sink := &handlerSink{}

	req.NoError(synchronizer.Subscribe(context.Background(), spotterAlice, sink.handle))
	feed.push(insertedBy(spotterBob, spotterAlice))

	messages := sink.all()
	req.Len(messages, 1)
	req.Equal("m1", messages[0].ID)
	req.Equal("Bob", messages[0].SenderName)
	req.Equal("bob.jpg", messages[0].SenderImage)
	req.False(messages[0].Own)
}

func TestSynchronizer_Marks_Own_Echo(t *testing.T) {
	req := require.New(t)
	feed := newFakeFeed()
	synchronizer := newTestSynchronizer(feed)
	sink := &handlerSink{}

	req.NoError(synchronizer.Subscribe(context.Background(), spotterAlice, sink.handle))
	feed.push(insertedBy(spotterAlice, spotterBob))

	messages := sink.all()
	req.Len(messages, 1)
	req.True(messages[0].Own)
}

func TestSynchronizer_Delivers_Despite_Unknown_Sender(t *testing.T) {
	req := require.New(t)
	feed := newFakeFeed()
	synchronizer := newTestSynchronizer(feed)
	sink := &handlerSink{}

	req.NoError(synchronizer.Subscribe(context.Background(), spotterAlice, sink.handle))
	ghost := domain.EntityRef{ID: "ghost", Type: domain.EntitySpotter}
	feed.push(insertedBy(ghost, spotterAlice))

	// The message arrives without a display name instead of vanishing.
	messages := sink.all()
	req.Len(messages, 1)
	req.Empty(messages[0].SenderName)
}

func TestSynchronizer_Drops_Events_Of_Superseded_Subscription(t *testing.T) {
	req := require.New(t)
	feed := newFakeFeed()
	synchronizer := newTestSynchronizer(feed)
	sink := &handlerSink{}
	ctx := context.Background()

	req.NoError(synchronizer.Subscribe(ctx, spotterAlice, sink.handle))

	// Capture the first subscription's callback, then replace the viewer.
	feed.mu.Lock()
	var stale func(event.MessageInserted)
	for sub := range feed.active {
		stale = sub.fn
	}
	feed.mu.Unlock()
	req.NoError(synchronizer.Subscribe(ctx, spotterBob, sink.handle))

	// A delivery still in flight on the old subscription is discarded.
	stale(insertedBy(spotterBob, spotterAlice))
	req.Empty(sink.all())
}

func TestSyncState_String_Covers_All_States(t *testing.T) {
	req := require.New(t)
	req.Equal("unsubscribed", StateUnsubscribed.String())
	req.Equal("subscribing", StateSubscribing.String())
	req.Equal("subscribed", StateSubscribed.String())
	req.Equal("error", StateError.String())
}
