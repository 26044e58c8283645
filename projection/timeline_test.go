package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gigspot/domain"
)

var (
	viewer      = domain.EntityRef{ID: "viewer", Type: domain.EntitySpotter}
	counterpart = domain.EntityRef{ID: "other", Type: domain.EntitySpotter}
)

func incoming(id, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:        id,
		Sender:    counterpart,
		Recipient: viewer,
		Content:   content,
		Type:      domain.MessageText,
		CreatedAt: at,
	}
}

func TestTimeline_Insert_Out_Of_Order_Yields_Ascending(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(viewer, counterpart)
	base := time.Now().UTC()

	// Given three messages arriving t2, t1, t3
	timeline.Insert(incoming("m2", "two", base.Add(2*time.Second)))
	timeline.Insert(incoming("m1", "one", base.Add(1*time.Second)))
	timeline.Insert(incoming("m3", "three", base.Add(3*time.Second)))

	// Then the view reads t1, t2, t3
	messages := timeline.Messages()
	req.Len(messages, 3)
	req.Equal("m1", messages[0].ID)
	req.Equal("m2", messages[1].ID)
	req.Equal("m3", messages[2].ID)
}

func TestTimeline_Insert_Equal_Timestamps_Keep_Arrival_Order(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(viewer, counterpart)
	at := time.Now().UTC()

	timeline.Insert(incoming("first", "a", at))
	timeline.Insert(incoming("second", "b", at))

	messages := timeline.Messages()
	req.Equal("first", messages[0].ID)
	req.Equal("second", messages[1].ID)
}

func TestTimeline_Insert_Duplicate_Id_Is_Ignored(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(viewer, counterpart)
	msg := incoming("m1", "hello", time.Now().UTC())

	req.True(timeline.Insert(msg))
	req.False(timeline.Insert(msg))
	req.Len(timeline.Messages(), 1)
}

func TestTimeline_Reconcile_Keeps_Position_Of_Rapid_Sends(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(viewer, counterpart)
	base := time.Now().UTC()

	// Given two optimistic sends in a row
	timeline.Append(domain.Message{
		ID: "local-1", Sender: viewer, Recipient: counterpart,
		Content: "first", CreatedAt: base, Own: true, Status: domain.StatusPending,
	})
	timeline.Append(domain.Message{
		ID: "local-2", Sender: viewer, Recipient: counterpart,
		Content: "second", CreatedAt: base.Add(time.Millisecond), Own: true, Status: domain.StatusPending,
	})

	// When the second write confirms before the first
	timeline.Reconcile("local-2", domain.Message{
		ID: "canon-2", Sender: viewer, Recipient: counterpart,
		Content: "second", CreatedAt: base.Add(2 * time.Second),
	})
	timeline.Reconcile("local-1", domain.Message{
		ID: "canon-1", Sender: viewer, Recipient: counterpart,
		Content: "first", CreatedAt: base.Add(3 * time.Second),
	})

	// Then both entries stay where they were appended
	messages := timeline.Messages()
	req.Len(messages, 2)
	req.Equal("canon-1", messages[0].ID)
	req.Equal("canon-2", messages[1].ID)
	req.Equal(domain.StatusSent, messages[0].Status)
	req.Equal(domain.StatusSent, messages[1].Status)
}

func TestTimeline_Insert_Own_Echo_Reconciles_Pending_Send(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(viewer, counterpart)
	now := time.Now().UTC()

	// Given an optimistic send whose canonical id is not yet known
	timeline.Append(domain.Message{
		ID: "local-1", Sender: viewer, Recipient: counterpart,
		Content: "on my way", CreatedAt: now, Own: true, Status: domain.StatusPending,
	})

	// When the feed echoes the same content back under the store id
	added := timeline.Insert(domain.Message{
		ID: "canon-1", Sender: viewer, Recipient: counterpart,
		Content: "on my way", CreatedAt: now.Add(50 * time.Millisecond),
	})

	// Then no duplicate appears and the entry carries the canonical id
	req.False(added)
	messages := timeline.Messages()
	req.Len(messages, 1)
	req.Equal("canon-1", messages[0].ID)
	req.Equal(domain.StatusSent, messages[0].Status)
}

func TestTimeline_Identical_Rapid_Sends_Pair_Echoes_In_Order(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(viewer, counterpart)
	base := time.Now().UTC()

	// Given two pending sends with the same content
	timeline.Append(domain.Message{
		ID: "local-1", Sender: viewer, Recipient: counterpart,
		Content: "ok", CreatedAt: base, Own: true, Status: domain.StatusPending,
	})
	timeline.Append(domain.Message{
		ID: "local-2", Sender: viewer, Recipient: counterpart,
		Content: "ok", CreatedAt: base.Add(time.Millisecond), Own: true, Status: domain.StatusPending,
	})

	// When their echoes arrive in feed order
	req.False(timeline.Insert(domain.Message{
		ID: "canon-1", Sender: viewer, Recipient: counterpart,
		Content: "ok", CreatedAt: base.Add(time.Second),
	}))
	req.False(timeline.Insert(domain.Message{
		ID: "canon-2", Sender: viewer, Recipient: counterpart,
		Content: "ok", CreatedAt: base.Add(2 * time.Second),
	}))

	// Then the oldest pending claimed the first echo
	messages := timeline.Messages()
	req.Len(messages, 2)
	req.Equal("canon-1", messages[0].ID)
	req.Equal("canon-2", messages[1].ID)
}

func TestTimeline_Insert_Own_Echo_Outside_Window_Is_Added(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(viewer, counterpart)
	now := time.Now().UTC()

	timeline.Append(domain.Message{
		ID: "local-1", Sender: viewer, Recipient: counterpart,
		Content: "hello", CreatedAt: now, Own: true, Status: domain.StatusPending,
	})

	// An own message with the same content but far in the past is a
	// genuine earlier send, not an echo.
	added := timeline.Insert(domain.Message{
		ID: "canon-old", Sender: viewer, Recipient: counterpart,
		Content: "hello", CreatedAt: now.Add(-time.Minute),
	})

	req.True(added)
	req.Len(timeline.Messages(), 2)
}

func TestTimeline_MarkFailed_Flags_Entry_And_Keeps_It_Visible(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(viewer, counterpart)

	timeline.Append(domain.Message{
		ID: "local-1", Sender: viewer, Recipient: counterpart,
		Content: "lost", CreatedAt: time.Now().UTC(), Own: true, Status: domain.StatusPending,
	})
	timeline.MarkFailed("local-1")

	messages := timeline.Messages()
	req.Len(messages, 1)
	req.Equal(domain.StatusFailed, messages[0].Status)
}

func TestTimeline_MarkAllRead_Only_Touches_Counterpart_Messages(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(viewer, counterpart)
	now := time.Now().UTC()

	timeline.Insert(incoming("m1", "unread", now))
	timeline.Append(domain.Message{
		ID: "local-1", Sender: viewer, Recipient: counterpart,
		Content: "mine", CreatedAt: now.Add(time.Second), Own: true, Status: domain.StatusPending,
	})

	timeline.MarkAllRead()

	messages := timeline.Messages()
	req.True(messages[0].Read)
	req.False(messages[1].Read)
}

func TestTimeline_Reset_Rebuilds_View_And_Drops_Pending(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(viewer, counterpart)
	now := time.Now().UTC()

	timeline.Append(domain.Message{
		ID: "local-1", Sender: viewer, Recipient: counterpart,
		Content: "stale", CreatedAt: now, Own: true, Status: domain.StatusPending,
	})

	timeline.Reset([]domain.Message{
		incoming("m1", "fresh", now),
		{ID: "m2", Sender: viewer, Recipient: counterpart, Content: "mine", CreatedAt: now.Add(time.Second)},
	})

	messages := timeline.Messages()
	req.Len(messages, 2)
	req.False(messages[0].Own)
	req.True(messages[1].Own)
}
